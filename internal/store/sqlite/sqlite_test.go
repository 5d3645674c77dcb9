package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustAccount(t *testing.T, s *Store, id string) *domain.Account {
	t.Helper()
	account, err := domain.NewAccount(id, "owner-1", "Checking", domain.AccountKindBank)
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func mustTxn(t *testing.T, id, accountID string, direction domain.Direction, amount string, externalID string) *domain.Transaction {
	t.Helper()
	txn, err := domain.NewTransaction(id, accountID, direction,
		decimal.RequireFromString(amount), time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), "test entry")
	require.NoError(t, err)
	txn.ExternalID = externalID
	return txn
}

func TestAccountRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := mustAccount(t, s, "acc-1")

	got, err := s.GetAccount(ctx, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = s.GetAccount(ctx, "acc-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	accounts, err := s.ListAccounts(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestInsertTransaction_DuplicateExternalID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAccount(t, s, "acc-1")
	mustAccount(t, s, "acc-2")

	first := mustTxn(t, "t-1", "acc-1", domain.DirectionIncome, "100", "FIT-1")
	require.NoError(t, s.InsertTransaction(ctx, first))

	// Same external id, same account: rejected.
	dup := mustTxn(t, "t-2", "acc-1", domain.DirectionIncome, "100", "FIT-1")
	err := s.InsertTransaction(ctx, dup)
	assert.ErrorIs(t, err, domain.ErrDuplicateExternalID)

	// Same external id in another account: fine, uniqueness is per account.
	other := mustTxn(t, "t-3", "acc-2", domain.DirectionIncome, "100", "FIT-1")
	assert.NoError(t, s.InsertTransaction(ctx, other))

	// Entries without external ids never collide.
	manual1 := mustTxn(t, "t-4", "acc-1", domain.DirectionExpense, "5", "")
	manual2 := mustTxn(t, "t-5", "acc-1", domain.DirectionExpense, "5", "")
	assert.NoError(t, s.InsertTransaction(ctx, manual1))
	assert.NoError(t, s.InsertTransaction(ctx, manual2))
}

func TestTransactionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAccount(t, s, "acc-1")

	txn := mustTxn(t, "t-1", "acc-1", domain.DirectionExpense, "42.17", "FIT-9")
	txn.Payer = "Grocer"
	txn.Synthetic = true
	require.NoError(t, s.InsertTransaction(ctx, txn))

	got, err := s.GetTransaction(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)
	assert.Equal(t, domain.DirectionExpense, got.Direction)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("42.17")), "amount survives exactly")
	assert.Equal(t, "Grocer", got.Payer)
	assert.Equal(t, "FIT-9", got.ExternalID)
	assert.True(t, got.Synthetic)
	assert.True(t, txn.Date.Equal(got.Date))

	byExt, err := s.FindTransactionByExternalID(ctx, "acc-1", "FIT-9")
	require.NoError(t, err)
	assert.Equal(t, "t-1", byExt.ID)

	_, err = s.FindTransactionByExternalID(ctx, "acc-1", "FIT-none")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListTransactions_Ordering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAccount(t, s, "acc-1")

	late := mustTxn(t, "t-late", "acc-1", domain.DirectionIncome, "1", "")
	late.Date = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	early := mustTxn(t, "t-early", "acc-1", domain.DirectionIncome, "1", "")
	early.Date = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertTransaction(ctx, late))
	require.NoError(t, s.InsertTransaction(ctx, early))

	txns, err := s.ListTransactions(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "t-early", txns[0].ID)
	assert.Equal(t, "t-late", txns[1].ID)
}

func TestDeleteAndReclassify(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAccount(t, s, "acc-1")

	txn := mustTxn(t, "t-1", "acc-1", domain.DirectionIncome, "10", "")
	require.NoError(t, s.InsertTransaction(ctx, txn))

	require.NoError(t, s.ReclassifyTransaction(ctx, "t-1", domain.DirectionExpense))
	got, err := s.GetTransaction(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionExpense, got.Direction)

	require.NoError(t, s.DeleteTransaction(ctx, "t-1"))
	_, err = s.GetTransaction(ctx, "t-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, s.DeleteTransaction(ctx, "t-1"), domain.ErrNotFound)
	assert.ErrorIs(t, s.ReclassifyTransaction(ctx, "t-1", domain.DirectionIncome), domain.ErrNotFound)
}

func TestApplyDebtPayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAccount(t, s, "acc-1")

	debt, err := domain.NewDebt("d-1", "owner-1", "acc-1", "loan", decimal.NewFromInt(1000), time.Time{})
	require.NoError(t, err)
	require.NoError(t, s.CreateDebt(ctx, debt))

	entry := mustTxn(t, "t-pay", "acc-1", domain.DirectionExpense, "400", "")
	entry.DebtID = "d-1"
	require.NoError(t, s.ApplyDebtPayment(ctx, "d-1", decimal.NewFromInt(400), entry))

	got, err := s.GetDebt(ctx, "d-1")
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(decimal.NewFromInt(400)))
	assert.Equal(t, domain.DebtPartiallyPaid, got.Status())

	stored, err := s.GetTransaction(ctx, "t-pay")
	require.NoError(t, err)
	assert.Equal(t, "d-1", stored.DebtID)
}

func TestApplyDebtPayment_OverpaymentRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAccount(t, s, "acc-1")

	debt, err := domain.NewDebt("d-1", "owner-1", "acc-1", "loan", decimal.NewFromInt(1000), time.Time{})
	require.NoError(t, err)
	require.NoError(t, s.CreateDebt(ctx, debt))

	first := mustTxn(t, "t-1", "acc-1", domain.DirectionExpense, "900", "")
	require.NoError(t, s.ApplyDebtPayment(ctx, "d-1", decimal.NewFromInt(900), first))

	// 900 + 200 > 1000: conflict, and neither side of the payment lands.
	second := mustTxn(t, "t-2", "acc-1", domain.DirectionExpense, "200", "")
	err = s.ApplyDebtPayment(ctx, "d-1", decimal.NewFromInt(200), second)
	assert.ErrorIs(t, err, domain.ErrOverpayment)

	got, err := s.GetDebt(ctx, "d-1")
	require.NoError(t, err)
	assert.True(t, got.PaidAmount.Equal(decimal.NewFromInt(900)), "paid amount unchanged after conflict")

	_, err = s.GetTransaction(ctx, "t-2")
	assert.ErrorIs(t, err, domain.ErrNotFound, "no expense entry for the rejected payment")

	// Paying exactly the remainder settles the debt.
	exact := mustTxn(t, "t-3", "acc-1", domain.DirectionExpense, "100", "")
	require.NoError(t, s.ApplyDebtPayment(ctx, "d-1", decimal.NewFromInt(100), exact))

	got, err = s.GetDebt(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DebtPaid, got.Status())
}

func TestApplyDebtPayment_MissingDebt(t *testing.T) {
	s := newTestStore(t)
	entry := mustTxn(t, "t-1", "acc-1", domain.DirectionExpense, "5", "")
	err := s.ApplyDebtPayment(context.Background(), "d-missing", decimal.NewFromInt(5), entry)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostYield(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	mustAccount(t, s, "acc-1")

	opened := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	position, err := domain.NewInvestmentPosition("p-1", "owner-1", "acc-1",
		decimal.NewFromInt(10000), decimal.RequireFromString("0.045"), opened)
	require.NoError(t, err)
	require.NoError(t, s.CreatePosition(ctx, position))

	period := domain.NewMonth(2025, time.February)
	entry := mustTxn(t, "t-yield", "acc-1", domain.DirectionIncome, "37.5", "")
	entry.ExternalID = domain.YieldExternalID("p-1", period)
	entry.Synthetic = true
	require.NoError(t, s.PostYield(ctx, "p-1", period, entry))

	got, err := s.GetPosition(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, period, got.LastAccrued)
	assert.True(t, got.CurrentValue.Equal(decimal.RequireFromString("10037.5")))

	// Posting the same period again is rejected and writes nothing.
	again := mustTxn(t, "t-yield-2", "acc-1", domain.DirectionIncome, "37.5", "")
	again.ExternalID = domain.YieldExternalID("p-1", period)
	err = s.PostYield(ctx, "p-1", period, again)
	assert.ErrorIs(t, err, domain.ErrPeriodAlreadyAccrued)

	txns, err := s.ListTransactions(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	// An earlier period is also rejected: the marker is monotonic.
	earlier := mustTxn(t, "t-yield-3", "acc-1", domain.DirectionIncome, "37.5", "")
	err = s.PostYield(ctx, "p-1", domain.NewMonth(2025, time.January), earlier)
	assert.ErrorIs(t, err, domain.ErrPeriodAlreadyAccrued)
}

func TestDebtAndPositionPersistence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	debt, err := domain.NewDebt("d-1", "owner-1", "acc-1", "car loan", decimal.RequireFromString("1234.56"), due)
	require.NoError(t, err)
	require.NoError(t, s.CreateDebt(ctx, debt))

	got, err := s.GetDebt(ctx, "d-1")
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(debt.TotalAmount))
	assert.True(t, got.DueDate.Equal(due))

	debts, err := s.ListDebts(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, debts, 1)

	position, err := domain.NewInvestmentPosition("p-1", "owner-1", "acc-1",
		decimal.NewFromInt(5000), decimal.RequireFromString("0.03"),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, s.CreatePosition(ctx, position))

	positions, err := s.ListPositions(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, domain.NewMonth(2025, time.February), positions[0].LastAccrued)
}
