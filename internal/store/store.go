// Package store defines the persistence contract for the ledger. Two
// backends implement it: an embedded SQLite database for local use and a
// Firestore client for shared deployments. All uniqueness and atomicity
// guarantees live behind this interface so the callers above it stay
// backend-agnostic.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
)

// Store persists ledger state. Implementations must enforce external-id
// uniqueness per account at the storage layer, not in memory, so concurrent
// writers cannot race past the check.
type Store interface {
	// CreateAccount persists a new account.
	CreateAccount(ctx context.Context, account *domain.Account) error

	// GetAccount returns the account or domain.ErrNotFound.
	GetAccount(ctx context.Context, id string) (*domain.Account, error)

	// ListAccounts returns all accounts for an owner.
	ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error)

	// CreateDebt persists a new debt.
	CreateDebt(ctx context.Context, debt *domain.Debt) error

	// GetDebt returns the debt or domain.ErrNotFound.
	GetDebt(ctx context.Context, id string) (*domain.Debt, error)

	// ListDebts returns all debts for an owner.
	ListDebts(ctx context.Context, ownerID string) ([]*domain.Debt, error)

	// CreatePosition persists a new investment position.
	CreatePosition(ctx context.Context, position *domain.InvestmentPosition) error

	// GetPosition returns the position or domain.ErrNotFound.
	GetPosition(ctx context.Context, id string) (*domain.InvestmentPosition, error)

	// ListPositions returns all positions for an owner.
	ListPositions(ctx context.Context, ownerID string) ([]*domain.InvestmentPosition, error)

	// InsertTransaction persists a new ledger entry. When the entry carries
	// an external id already present for the same account, it returns
	// domain.ErrDuplicateExternalID and writes nothing.
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error

	// GetTransaction returns the entry or domain.ErrNotFound.
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)

	// FindTransactionByExternalID returns the entry with the given external
	// id in the account, or domain.ErrNotFound.
	FindTransactionByExternalID(ctx context.Context, accountID, externalID string) (*domain.Transaction, error)

	// ListTransactions returns all entries for an account, ordered by date
	// then creation time.
	ListTransactions(ctx context.Context, accountID string) ([]*domain.Transaction, error)

	// DeleteTransaction removes an entry, or returns domain.ErrNotFound.
	DeleteTransaction(ctx context.Context, id string) error

	// ReclassifyTransaction rewrites the direction of an entry.
	ReclassifyTransaction(ctx context.Context, id string, direction domain.Direction) error

	// ApplyDebtPayment atomically adds amount to the debt's paid total and
	// inserts the linked expense entry. If the payment would push the paid
	// total past the debt total it returns domain.ErrOverpayment and both
	// writes are discarded. The overpayment check re-reads the debt inside
	// the transaction, so concurrent payments serialize correctly.
	ApplyDebtPayment(ctx context.Context, debtID string, amount decimal.Decimal, entry *domain.Transaction) error

	// PostYield atomically advances the position's accrual marker to period
	// and inserts the yield income entry. If the marker already covers the
	// period it returns domain.ErrPeriodAlreadyAccrued and writes nothing.
	PostYield(ctx context.Context, positionID string, period domain.Month, entry *domain.Transaction) error

	// Close releases backend resources.
	Close() error
}
