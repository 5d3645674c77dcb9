// Package debt manages obligations and their payments. A payment is a
// two-sided fact: the debt's paid total advances and a linked expense entry
// lands in the ledger, atomically, or neither happens.
package debt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
	"github.com/rumor-ml/commons.systems/ledger/internal/store"
)

// Processor runs debt operations for authenticated owners.
type Processor struct {
	store store.Store
}

// NewProcessor creates a debt processor over the given store.
func NewProcessor(s store.Store) *Processor {
	return &Processor{store: s}
}

// Create registers a new debt for the owner. The account becomes the default
// payment source.
func (p *Processor) Create(ctx context.Context, ownerID, accountID, description string, total decimal.Decimal, due time.Time) (*domain.Debt, error) {
	account, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: account %s does not belong to owner %s", domain.ErrUnauthorized, accountID, ownerID)
	}

	debt, err := domain.NewDebt(uuid.NewString(), ownerID, accountID, description, total, due)
	if err != nil {
		return nil, err
	}
	if err := p.store.CreateDebt(ctx, debt); err != nil {
		return nil, err
	}
	return debt, nil
}

// Get returns the debt after an ownership check.
func (p *Processor) Get(ctx context.Context, debtID, ownerID string) (*domain.Debt, error) {
	debt, err := p.store.GetDebt(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if debt.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: debt %s does not belong to owner %s", domain.ErrUnauthorized, debtID, ownerID)
	}
	return debt, nil
}

// List returns all debts for the owner.
func (p *Processor) List(ctx context.Context, ownerID string) ([]*domain.Debt, error) {
	return p.store.ListDebts(ctx, ownerID)
}

// Pay applies a partial or final payment. The amount must be positive and
// must not push the paid total past the debt total; a conflicting payment
// returns domain.ErrOverpayment and changes nothing. On success the returned
// expense entry is already committed and linked to the debt.
//
// sourceAccountID may be empty, in which case the debt's default payment
// account is charged.
func (p *Processor) Pay(ctx context.Context, debtID, ownerID string, amount decimal.Decimal, sourceAccountID string, date time.Time) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive, got %s", domain.ErrValidation, amount)
	}

	debt, err := p.Get(ctx, debtID, ownerID)
	if err != nil {
		return nil, err
	}

	accountID := sourceAccountID
	if accountID == "" {
		accountID = debt.AccountID
	}
	account, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: account %s does not belong to owner %s", domain.ErrUnauthorized, accountID, ownerID)
	}

	if date.IsZero() {
		date = time.Now().UTC()
	}

	entry, err := domain.NewTransaction(uuid.NewString(), accountID, domain.DirectionExpense,
		amount, date, fmt.Sprintf("debt payment: %s", debt.Description))
	if err != nil {
		return nil, err
	}
	entry.DebtID = debtID

	if err := p.store.ApplyDebtPayment(ctx, debtID, amount, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
