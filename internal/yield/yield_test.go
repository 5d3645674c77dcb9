package yield

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
	"github.com/rumor-ml/commons.systems/ledger/internal/store/sqlite"
)

func newTestProcessor(t *testing.T) (*Processor, *sqlite.Store) {
	t.Helper()
	s, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	account, err := domain.NewAccount("acc-1", "owner-1", "Brokerage", domain.AccountKindInvestment)
	require.NoError(t, err)
	require.NoError(t, s.CreateAccount(context.Background(), account))

	return NewProcessor(s), s
}

func TestMonthlyYield(t *testing.T) {
	tests := []struct {
		name      string
		principal string
		rate      string
		want      string
	}{
		{"typical savings", "10000", "0.045", "37.5"},
		{"zero rate", "10000", "0", "0"},
		// Banker's rounding on the exact half-cent: 0.125 lands on the even
		// cent below, 0.135 on the even cent above.
		{"round half to even down", "25", "0.06", "0.12"},
		{"round half to even up", "27", "0.06", "0.14"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			position := &domain.InvestmentPosition{
				Principal:  decimal.RequireFromString(tt.principal),
				AnnualRate: decimal.RequireFromString(tt.rate),
			}
			got := MonthlyYield(position)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("MonthlyYield() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestProcessor_Accrue(t *testing.T) {
	p, s := newTestProcessor(t)
	ctx := context.Background()

	opened := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	position, err := p.OpenPosition(ctx, "owner-1", "acc-1",
		decimal.NewFromInt(10000), decimal.RequireFromString("0.045"), opened)
	require.NoError(t, err)

	// Run in mid-April: February and March are complete, April is not, and
	// January is the opening month.
	asOf := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	results, err := p.Accrue(ctx, "owner-1", asOf)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.Equal(t, StatusPosted, r.Status)
		require.NotNil(t, r.Entry)
		assert.Equal(t, domain.DirectionIncome, r.Entry.Direction)
		assert.True(t, r.Entry.Amount.Equal(decimal.RequireFromString("37.5")))
		assert.True(t, r.Entry.Synthetic)
	}
	assert.Equal(t, domain.NewMonth(2025, time.February), results[0].Period)
	assert.Equal(t, domain.NewMonth(2025, time.March), results[1].Period)
	assert.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), results[0].Entry.Date,
		"yield entry is dated at month end")

	updated, err := s.GetPosition(ctx, position.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.NewMonth(2025, time.March), updated.LastAccrued)
	assert.True(t, updated.CurrentValue.Equal(decimal.RequireFromString("10075")),
		"current value grows by each posted yield")
}

func TestProcessor_Accrue_Rerun(t *testing.T) {
	p, s := newTestProcessor(t)
	ctx := context.Background()

	opened := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	_, err := p.OpenPosition(ctx, "owner-1", "acc-1",
		decimal.NewFromInt(10000), decimal.RequireFromString("0.045"), opened)
	require.NoError(t, err)

	asOf := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	_, err = p.Accrue(ctx, "owner-1", asOf)
	require.NoError(t, err)

	// Same asOf again: nothing to do.
	results, err := p.Accrue(ctx, "owner-1", asOf)
	require.NoError(t, err)
	assert.Empty(t, results)

	txns, err := s.ListTransactions(ctx, "acc-1")
	require.NoError(t, err)
	assert.Len(t, txns, 2, "rerun posts no additional entries")

	// A later asOf picks up exactly the newly completed month.
	results, err = p.Accrue(ctx, "owner-1", asOf.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, StatusPosted, results[0].Status)
	assert.Equal(t, domain.NewMonth(2025, time.April), results[0].Period)
}

func TestProcessor_Accrue_DeterministicExternalIDs(t *testing.T) {
	p, s := newTestProcessor(t)
	ctx := context.Background()

	opened := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	position, err := p.OpenPosition(ctx, "owner-1", "acc-1",
		decimal.NewFromInt(10000), decimal.RequireFromString("0.045"), opened)
	require.NoError(t, err)

	results, err := p.Accrue(ctx, "owner-1", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, results, 1)

	want := domain.YieldExternalID(position.ID, domain.NewMonth(2025, time.February))
	assert.Equal(t, want, results[0].Entry.ExternalID)

	stored, err := s.FindTransactionByExternalID(ctx, "acc-1", want)
	require.NoError(t, err)
	assert.Equal(t, results[0].Entry.ID, stored.ID)
}

func TestProcessor_Accrue_NoPositions(t *testing.T) {
	p, _ := newTestProcessor(t)

	results, err := p.Accrue(context.Background(), "owner-1", time.Now())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestProcessor_OpenPosition_Ownership(t *testing.T) {
	p, _ := newTestProcessor(t)

	_, err := p.OpenPosition(context.Background(), "owner-2", "acc-1",
		decimal.NewFromInt(100), decimal.Zero, time.Now())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}
