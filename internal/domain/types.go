package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction carries the sign of a ledger entry. Amounts are always stored as
// non-negative magnitudes; the direction alone decides whether an entry adds
// to or subtracts from the account balance.
type Direction string

const (
	DirectionIncome  Direction = "INCOME"
	DirectionExpense Direction = "EXPENSE"
)

// ValidateDirection checks if direction is valid.
func ValidateDirection(d Direction) bool {
	return d == DirectionIncome || d == DirectionExpense
}

// AccountKind represents the account kind enum.
type AccountKind string

const (
	AccountKindBank       AccountKind = "bank"
	AccountKindCash       AccountKind = "cash"
	AccountKindCredit     AccountKind = "credit"
	AccountKindInvestment AccountKind = "investment"
)

var validAccountKinds = map[AccountKind]struct{}{
	AccountKindBank: {}, AccountKindCash: {},
	AccountKindCredit: {}, AccountKindInvestment: {},
}

// ValidateAccountKind checks if kind is valid.
func ValidateAccountKind(k AccountKind) bool {
	_, ok := validAccountKinds[k]
	return ok
}

// Account is a money container. The engine never mutates accounts; their
// balance is a pure function over their transactions (see audit.Balance).
type Account struct {
	ID      string
	OwnerID string
	Name    string
	Kind    AccountKind
}

// NewAccount creates a validated account.
func NewAccount(id, ownerID, name string, kind AccountKind) (*Account, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: account ID cannot be empty", ErrValidation)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID cannot be empty", ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: account name cannot be empty", ErrValidation)
	}
	if !ValidateAccountKind(kind) {
		return nil, fmt.Errorf("%w: invalid account kind %q", ErrValidation, kind)
	}
	return &Account{ID: id, OwnerID: ownerID, Name: name, Kind: kind}, nil
}

// Transaction is one committed ledger entry. Once stored it is immutable
// except for the bounded correction fields (Direction via reclassification,
// Description), and is deleted only by explicit user action or by adjustment
// removal.
type Transaction struct {
	ID          string
	AccountID   string
	Direction   Direction
	Amount      decimal.Decimal // non-negative magnitude; sign lives in Direction
	Date        time.Time
	Description string
	Payer       string // optional counterparty name
	ExternalID  string // optional statement-issued dedup key
	DebtID      string // set when the entry settles a debt payment
	Synthetic   bool   // set on engine-generated entries (yield, adjustment)
	CreatedAt   time.Time
}

// NewTransaction creates a validated ledger entry. The amount must be a
// non-negative magnitude; a negative amount is rejected rather than folded
// into the direction, so the sign convention cannot be encoded twice.
func NewTransaction(id, accountID string, direction Direction, amount decimal.Decimal, date time.Time, description string) (*Transaction, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: transaction ID cannot be empty", ErrValidation)
	}
	if accountID == "" {
		return nil, fmt.Errorf("%w: account ID cannot be empty", ErrValidation)
	}
	if !ValidateDirection(direction) {
		return nil, fmt.Errorf("%w: invalid direction %q", ErrValidation, direction)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must be a non-negative magnitude, got %s", ErrValidation, amount)
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: transaction date cannot be zero", ErrValidation)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: description cannot be empty", ErrValidation)
	}
	return &Transaction{
		ID:          id,
		AccountID:   accountID,
		Direction:   direction,
		Amount:      amount,
		Date:        date,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Signed returns the amount with the direction applied: positive for income,
// negative for expense.
func (t *Transaction) Signed() decimal.Decimal {
	if t.Direction == DirectionExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// DebtStatus is derived from the paid and total amounts, never stored, so the
// flag can never drift from the numbers underneath it.
type DebtStatus string

const (
	DebtOpen          DebtStatus = "OPEN"
	DebtPartiallyPaid DebtStatus = "PARTIALLY_PAID"
	DebtPaid          DebtStatus = "PAID"
)

// Debt is an obligation with a target amount and the amount paid so far.
// Every successful payment creates exactly one linked EXPENSE entry.
type Debt struct {
	ID          string
	OwnerID     string
	AccountID   string // default payment source
	Description string
	TotalAmount decimal.Decimal
	PaidAmount  decimal.Decimal
	DueDate     time.Time
}

// NewDebt creates a validated debt with nothing paid yet.
func NewDebt(id, ownerID, accountID, description string, total decimal.Decimal, due time.Time) (*Debt, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: debt ID cannot be empty", ErrValidation)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID cannot be empty", ErrValidation)
	}
	if accountID == "" {
		return nil, fmt.Errorf("%w: account ID cannot be empty", ErrValidation)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: description cannot be empty", ErrValidation)
	}
	if total.IsNegative() {
		return nil, fmt.Errorf("%w: total amount cannot be negative, got %s", ErrValidation, total)
	}
	return &Debt{
		ID:          id,
		OwnerID:     ownerID,
		AccountID:   accountID,
		Description: description,
		TotalAmount: total,
		PaidAmount:  decimal.Zero,
		DueDate:     due,
	}, nil
}

// Status derives the settlement state from the two amounts.
func (d *Debt) Status() DebtStatus {
	switch {
	case d.PaidAmount.IsZero():
		return DebtOpen
	case d.PaidAmount.LessThan(d.TotalAmount):
		return DebtPartiallyPaid
	default:
		return DebtPaid
	}
}

// Remaining returns the amount still owed.
func (d *Debt) Remaining() decimal.Decimal {
	return d.TotalAmount.Sub(d.PaidAmount)
}

// InvestmentPosition is a yield-bearing holding. LastAccrued marks the most
// recent month for which a yield entry has been posted; advancing it is the
// idempotency key for the yield processor.
type InvestmentPosition struct {
	ID           string
	OwnerID      string
	AccountID    string
	Principal    decimal.Decimal
	CurrentValue decimal.Decimal
	AnnualRate   decimal.Decimal // e.g. 0.045 for 4.5% p.a.
	LastAccrued  Month
}

// NewInvestmentPosition creates a validated position. LastAccrued starts at
// the month the position is opened, so yield accrues only for full months
// after it.
func NewInvestmentPosition(id, ownerID, accountID string, principal, rate decimal.Decimal, opened time.Time) (*InvestmentPosition, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: position ID cannot be empty", ErrValidation)
	}
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner ID cannot be empty", ErrValidation)
	}
	if accountID == "" {
		return nil, fmt.Errorf("%w: account ID cannot be empty", ErrValidation)
	}
	if principal.IsNegative() {
		return nil, fmt.Errorf("%w: principal cannot be negative, got %s", ErrValidation, principal)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("%w: annual rate cannot be negative, got %s", ErrValidation, rate)
	}
	if opened.IsZero() {
		return nil, fmt.Errorf("%w: opened date cannot be zero", ErrValidation)
	}
	return &InvestmentPosition{
		ID:           id,
		OwnerID:      ownerID,
		AccountID:    accountID,
		Principal:    principal,
		CurrentValue: principal,
		AnnualRate:   rate,
		LastAccrued:  MonthOf(opened),
	}, nil
}
