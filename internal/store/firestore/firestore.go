// Package firestore implements the ledger store on Cloud Firestore for
// shared deployments. Documents are keyed by entity id; external-id dedup is
// enforced by a marker collection keyed "{accountID}|{externalID}" written
// with Create, so the uniqueness guarantee is the datastore's, not ours.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
)

const (
	accountsCollection     = "ledger-accounts"
	debtsCollection        = "ledger-debts"
	positionsCollection    = "ledger-positions"
	transactionsCollection = "ledger-transactions"
	externalIDsCollection  = "ledger-external-ids"
)

// Store implements store.Store on Firestore.
type Store struct {
	client    *firestore.Client
	projectID string
}

// New creates a Firestore-backed store for the given project. Credentials
// come from Application Default Credentials unless credsPath is set.
func New(ctx context.Context, projectID, credsPath string) (*Store, error) {
	var opts []option.ClientOption
	if credsPath != "" {
		opts = append(opts, option.WithCredentialsFile(credsPath))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Store{client: client, projectID: projectID}, nil
}

// Close closes the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

func isNotFoundErr(err error) bool {
	return status.Code(err) == codes.NotFound
}

// externalIDKey builds the dedup marker document id. External ids are unique
// per account, so the account id is part of the key.
func externalIDKey(accountID, externalID string) string {
	return accountID + "|" + externalID
}

// accountDoc is the Firestore shape of a domain.Account.
type accountDoc struct {
	ID      string `firestore:"id"`
	OwnerID string `firestore:"ownerId"`
	Name    string `firestore:"name"`
	Kind    string `firestore:"kind"`
}

func toAccountDoc(a *domain.Account) accountDoc {
	return accountDoc{ID: a.ID, OwnerID: a.OwnerID, Name: a.Name, Kind: string(a.Kind)}
}

func (d accountDoc) toDomain() *domain.Account {
	return &domain.Account{ID: d.ID, OwnerID: d.OwnerID, Name: d.Name, Kind: domain.AccountKind(d.Kind)}
}

// debtDoc is the Firestore shape of a domain.Debt. Money fields are exact
// decimal strings.
type debtDoc struct {
	ID          string    `firestore:"id"`
	OwnerID     string    `firestore:"ownerId"`
	AccountID   string    `firestore:"accountId"`
	Description string    `firestore:"description"`
	TotalAmount string    `firestore:"totalAmount"`
	PaidAmount  string    `firestore:"paidAmount"`
	DueDate     time.Time `firestore:"dueDate"`
}

func toDebtDoc(d *domain.Debt) debtDoc {
	return debtDoc{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		AccountID:   d.AccountID,
		Description: d.Description,
		TotalAmount: d.TotalAmount.String(),
		PaidAmount:  d.PaidAmount.String(),
		DueDate:     d.DueDate,
	}
}

func (d debtDoc) toDomain() (*domain.Debt, error) {
	total, err := decimal.NewFromString(d.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt total amount %q: %w", d.TotalAmount, err)
	}
	paid, err := decimal.NewFromString(d.PaidAmount)
	if err != nil {
		return nil, fmt.Errorf("corrupt paid amount %q: %w", d.PaidAmount, err)
	}
	return &domain.Debt{
		ID:          d.ID,
		OwnerID:     d.OwnerID,
		AccountID:   d.AccountID,
		Description: d.Description,
		TotalAmount: total,
		PaidAmount:  paid,
		DueDate:     d.DueDate,
	}, nil
}

// positionDoc is the Firestore shape of a domain.InvestmentPosition.
type positionDoc struct {
	ID           string `firestore:"id"`
	OwnerID      string `firestore:"ownerId"`
	AccountID    string `firestore:"accountId"`
	Principal    string `firestore:"principal"`
	CurrentValue string `firestore:"currentValue"`
	AnnualRate   string `firestore:"annualRate"`
	LastAccrued  string `firestore:"lastAccrued"`
}

func toPositionDoc(p *domain.InvestmentPosition) positionDoc {
	return positionDoc{
		ID:           p.ID,
		OwnerID:      p.OwnerID,
		AccountID:    p.AccountID,
		Principal:    p.Principal.String(),
		CurrentValue: p.CurrentValue.String(),
		AnnualRate:   p.AnnualRate.String(),
		LastAccrued:  p.LastAccrued.String(),
	}
}

func (d positionDoc) toDomain() (*domain.InvestmentPosition, error) {
	principal, err := decimal.NewFromString(d.Principal)
	if err != nil {
		return nil, fmt.Errorf("corrupt principal %q: %w", d.Principal, err)
	}
	value, err := decimal.NewFromString(d.CurrentValue)
	if err != nil {
		return nil, fmt.Errorf("corrupt current value %q: %w", d.CurrentValue, err)
	}
	rate, err := decimal.NewFromString(d.AnnualRate)
	if err != nil {
		return nil, fmt.Errorf("corrupt annual rate %q: %w", d.AnnualRate, err)
	}
	accrued, err := domain.ParseMonth(d.LastAccrued)
	if err != nil {
		return nil, fmt.Errorf("corrupt accrual marker %q: %w", d.LastAccrued, err)
	}
	return &domain.InvestmentPosition{
		ID:           d.ID,
		OwnerID:      d.OwnerID,
		AccountID:    d.AccountID,
		Principal:    principal,
		CurrentValue: value,
		AnnualRate:   rate,
		LastAccrued:  accrued,
	}, nil
}

// txnDoc is the Firestore shape of a domain.Transaction.
type txnDoc struct {
	ID          string    `firestore:"id"`
	AccountID   string    `firestore:"accountId"`
	Direction   string    `firestore:"direction"`
	Amount      string    `firestore:"amount"`
	Date        time.Time `firestore:"date"`
	Description string    `firestore:"description"`
	Payer       string    `firestore:"payer"`
	ExternalID  string    `firestore:"externalId"`
	DebtID      string    `firestore:"debtId"`
	Synthetic   bool      `firestore:"synthetic"`
	CreatedAt   time.Time `firestore:"createdAt"`
}

func toTxnDoc(t *domain.Transaction) txnDoc {
	return txnDoc{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Direction:   string(t.Direction),
		Amount:      t.Amount.String(),
		Date:        t.Date,
		Description: t.Description,
		Payer:       t.Payer,
		ExternalID:  t.ExternalID,
		DebtID:      t.DebtID,
		Synthetic:   t.Synthetic,
		CreatedAt:   t.CreatedAt,
	}
}

func (d txnDoc) toDomain() (*domain.Transaction, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", d.Amount, err)
	}
	return &domain.Transaction{
		ID:          d.ID,
		AccountID:   d.AccountID,
		Direction:   domain.Direction(d.Direction),
		Amount:      amount,
		Date:        d.Date,
		Description: d.Description,
		Payer:       d.Payer,
		ExternalID:  d.ExternalID,
		DebtID:      d.DebtID,
		Synthetic:   d.Synthetic,
		CreatedAt:   d.CreatedAt,
	}, nil
}

// CreateAccount persists a new account.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	_, err := s.client.Collection(accountsCollection).Doc(account.ID).Create(ctx, toAccountDoc(account))
	if err != nil {
		return fmt.Errorf("failed to create account %s: %w", account.ID, err)
	}
	return nil
}

// GetAccount returns the account or domain.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	snap, err := s.client.Collection(accountsCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFoundErr(err) {
			return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}

	var doc accountDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse account %s: %w", id, err)
	}
	return doc.toDomain(), nil
}

// ListAccounts returns all accounts for an owner.
func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	iter := s.client.Collection(accountsCollection).
		Where("ownerId", "==", ownerID).
		Documents(ctx)

	var accounts []*domain.Account
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate accounts for owner %s: %w", ownerID, err)
		}

		var doc accountDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse account: %w", err)
		}
		accounts = append(accounts, doc.toDomain())
	}
	return accounts, nil
}

// CreateDebt persists a new debt.
func (s *Store) CreateDebt(ctx context.Context, debt *domain.Debt) error {
	_, err := s.client.Collection(debtsCollection).Doc(debt.ID).Create(ctx, toDebtDoc(debt))
	if err != nil {
		return fmt.Errorf("failed to create debt %s: %w", debt.ID, err)
	}
	return nil
}

// GetDebt returns the debt or domain.ErrNotFound.
func (s *Store) GetDebt(ctx context.Context, id string) (*domain.Debt, error) {
	snap, err := s.client.Collection(debtsCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFoundErr(err) {
			return nil, fmt.Errorf("%w: debt %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get debt %s: %w", id, err)
	}

	var doc debtDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse debt %s: %w", id, err)
	}
	return doc.toDomain()
}

// ListDebts returns all debts for an owner.
func (s *Store) ListDebts(ctx context.Context, ownerID string) ([]*domain.Debt, error) {
	iter := s.client.Collection(debtsCollection).
		Where("ownerId", "==", ownerID).
		Documents(ctx)

	var debts []*domain.Debt
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate debts for owner %s: %w", ownerID, err)
		}

		var doc debtDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse debt: %w", err)
		}
		debt, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		debts = append(debts, debt)
	}
	return debts, nil
}

// CreatePosition persists a new investment position.
func (s *Store) CreatePosition(ctx context.Context, position *domain.InvestmentPosition) error {
	_, err := s.client.Collection(positionsCollection).Doc(position.ID).Create(ctx, toPositionDoc(position))
	if err != nil {
		return fmt.Errorf("failed to create position %s: %w", position.ID, err)
	}
	return nil
}

// GetPosition returns the position or domain.ErrNotFound.
func (s *Store) GetPosition(ctx context.Context, id string) (*domain.InvestmentPosition, error) {
	snap, err := s.client.Collection(positionsCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFoundErr(err) {
			return nil, fmt.Errorf("%w: position %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get position %s: %w", id, err)
	}

	var doc positionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse position %s: %w", id, err)
	}
	return doc.toDomain()
}

// ListPositions returns all positions for an owner.
func (s *Store) ListPositions(ctx context.Context, ownerID string) ([]*domain.InvestmentPosition, error) {
	iter := s.client.Collection(positionsCollection).
		Where("ownerId", "==", ownerID).
		Documents(ctx)

	var positions []*domain.InvestmentPosition
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate positions for owner %s: %w", ownerID, err)
		}

		var doc positionDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse position: %w", err)
		}
		position, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, nil
}

// InsertTransaction persists a new ledger entry. The external-id marker and
// the entry document are created in one Firestore transaction; the marker's
// Create fails with AlreadyExists when the dedup key is taken.
func (s *Store) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return s.insertTxnInTx(tx, txn)
	})
	if err != nil {
		if isAlreadyExists(err) && txn.ExternalID != "" {
			return fmt.Errorf("%w: external id %s in account %s",
				domain.ErrDuplicateExternalID, txn.ExternalID, txn.AccountID)
		}
		return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
	}
	return nil
}

// insertTxnInTx stages the entry document and, when the entry carries an
// external id, its dedup marker.
func (s *Store) insertTxnInTx(tx *firestore.Transaction, txn *domain.Transaction) error {
	if txn.ExternalID != "" {
		marker := s.client.Collection(externalIDsCollection).Doc(externalIDKey(txn.AccountID, txn.ExternalID))
		if err := tx.Create(marker, map[string]any{
			"accountId":     txn.AccountID,
			"externalId":    txn.ExternalID,
			"transactionId": txn.ID,
		}); err != nil {
			return err
		}
	}
	return tx.Create(s.client.Collection(transactionsCollection).Doc(txn.ID), toTxnDoc(txn))
}

// GetTransaction returns the entry or domain.ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	snap, err := s.client.Collection(transactionsCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFoundErr(err) {
			return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}

	var doc txnDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse transaction %s: %w", id, err)
	}
	return doc.toDomain()
}

// FindTransactionByExternalID resolves the dedup marker and loads the entry
// it points to.
func (s *Store) FindTransactionByExternalID(ctx context.Context, accountID, externalID string) (*domain.Transaction, error) {
	snap, err := s.client.Collection(externalIDsCollection).
		Doc(externalIDKey(accountID, externalID)).Get(ctx)
	if err != nil {
		if isNotFoundErr(err) {
			return nil, fmt.Errorf("%w: external id %s in account %s", domain.ErrNotFound, externalID, accountID)
		}
		return nil, fmt.Errorf("failed to resolve external id %s: %w", externalID, err)
	}

	txnID, err := snap.DataAt("transactionId")
	if err != nil {
		return nil, fmt.Errorf("failed to read external id marker: %w", err)
	}
	id, ok := txnID.(string)
	if !ok {
		return nil, fmt.Errorf("corrupt external id marker for %s", externalID)
	}
	return s.GetTransaction(ctx, id)
}

// ListTransactions returns all entries for an account, ordered by date then
// creation time.
func (s *Store) ListTransactions(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	iter := s.client.Collection(transactionsCollection).
		Where("accountId", "==", accountID).
		OrderBy("date", firestore.Asc).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)

	var txns []*domain.Transaction
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate transactions for account %s: %w", accountID, err)
		}

		var doc txnDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse transaction: %w", err)
		}
		txn, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// DeleteTransaction removes an entry and its dedup marker together.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.client.Collection(transactionsCollection).Doc(id)
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		var doc txnDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("failed to parse transaction %s: %w", id, err)
		}

		if doc.ExternalID != "" {
			marker := s.client.Collection(externalIDsCollection).Doc(externalIDKey(doc.AccountID, doc.ExternalID))
			if err := tx.Delete(marker); err != nil {
				return err
			}
		}
		return tx.Delete(ref)
	})
	if err != nil {
		if isNotFoundErr(err) {
			return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	return nil
}

// ReclassifyTransaction rewrites the direction of an entry.
func (s *Store) ReclassifyTransaction(ctx context.Context, id string, direction domain.Direction) error {
	_, err := s.client.Collection(transactionsCollection).Doc(id).Update(ctx,
		[]firestore.Update{{Path: "direction", Value: string(direction)}})
	if err != nil {
		if isNotFoundErr(err) {
			return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
		}
		return fmt.Errorf("failed to reclassify transaction %s: %w", id, err)
	}
	return nil
}

// ApplyDebtPayment runs the paid-total update and the entry insert in one
// Firestore transaction, re-reading the debt for the overpayment check.
func (s *Store) ApplyDebtPayment(ctx context.Context, debtID string, amount decimal.Decimal, entry *domain.Transaction) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.client.Collection(debtsCollection).Doc(debtID)
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFoundErr(err) {
				return fmt.Errorf("%w: debt %s", domain.ErrNotFound, debtID)
			}
			return err
		}

		var doc debtDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("failed to parse debt %s: %w", debtID, err)
		}
		debt, err := doc.toDomain()
		if err != nil {
			return err
		}

		newPaid := debt.PaidAmount.Add(amount)
		if newPaid.GreaterThan(debt.TotalAmount) {
			return fmt.Errorf("%w: paying %s would exceed debt total %s (already paid %s)",
				domain.ErrOverpayment, amount, debt.TotalAmount, debt.PaidAmount)
		}

		if err := tx.Update(ref, []firestore.Update{
			{Path: "paidAmount", Value: newPaid.String()},
		}); err != nil {
			return err
		}
		return s.insertTxnInTx(tx, entry)
	})
	if err != nil {
		if isAlreadyExists(err) && entry.ExternalID != "" {
			return fmt.Errorf("%w: external id %s in account %s",
				domain.ErrDuplicateExternalID, entry.ExternalID, entry.AccountID)
		}
		return err
	}
	return nil
}

// PostYield runs the accrual-marker advance and the entry insert in one
// Firestore transaction.
func (s *Store) PostYield(ctx context.Context, positionID string, period domain.Month, entry *domain.Transaction) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.client.Collection(positionsCollection).Doc(positionID)
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFoundErr(err) {
				return fmt.Errorf("%w: position %s", domain.ErrNotFound, positionID)
			}
			return err
		}

		var doc positionDoc
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("failed to parse position %s: %w", positionID, err)
		}
		position, err := doc.toDomain()
		if err != nil {
			return err
		}

		if !position.LastAccrued.Before(period) {
			return fmt.Errorf("%w: position %s already accrued through %s",
				domain.ErrPeriodAlreadyAccrued, positionID, position.LastAccrued)
		}

		newValue := position.CurrentValue.Add(entry.Amount)
		if err := tx.Update(ref, []firestore.Update{
			{Path: "lastAccrued", Value: period.String()},
			{Path: "currentValue", Value: newValue.String()},
		}); err != nil {
			return err
		}
		return s.insertTxnInTx(tx, entry)
	})
	if err != nil {
		if isAlreadyExists(err) && entry.ExternalID != "" {
			return fmt.Errorf("%w: external id %s in account %s",
				domain.ErrDuplicateExternalID, entry.ExternalID, entry.AccountID)
		}
		return err
	}
	return nil
}
