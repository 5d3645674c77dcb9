// Package yield posts periodic investment income. Accrual is monthly and
// idempotent twice over: the position's accrual marker advances atomically
// with the entry insert, and the entry's deterministic external id lets the
// ledger's dedup guarantee catch anything that slips past the marker.
package yield

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
	"github.com/rumor-ml/commons.systems/ledger/internal/store"
)

// Status classifies one accrual attempt.
type Status string

const (
	StatusPosted  Status = "posted"
	StatusSkipped Status = "skipped" // period already accrued
	StatusFailed  Status = "failed"
)

// Result reports one position-period accrual attempt.
type Result struct {
	PositionID string
	Period     domain.Month
	Status     Status
	Entry      *domain.Transaction // set when posted
	Err        error               // set when failed
}

// Processor accrues yield across an owner's positions.
type Processor struct {
	store store.Store
}

// NewProcessor creates a yield processor over the given store.
func NewProcessor(s store.Store) *Processor {
	return &Processor{store: s}
}

// MonthlyYield returns the income for one month on a position: one twelfth
// of the simple annual yield on principal, rounded to cents with banker's
// rounding so repeated accruals do not drift.
func MonthlyYield(position *domain.InvestmentPosition) decimal.Decimal {
	return position.AnnualRate.
		Mul(position.Principal).
		Div(decimal.NewFromInt(12)).
		RoundBank(2)
}

// Accrue posts yield for every complete month each of the owner's positions
// has not yet accrued, up to but excluding the month containing asOf. Reruns
// with the same asOf post nothing new. The batch error is non-nil only when
// the positions cannot be listed; per-period outcomes land in the results.
func (p *Processor) Accrue(ctx context.Context, ownerID string, asOf time.Time) ([]Result, error) {
	positions, err := p.store.ListPositions(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	cutoff := domain.MonthOf(asOf)
	results := []Result{}
	for _, position := range positions {
		for period := position.LastAccrued.Next(); period.Before(cutoff); period = period.Next() {
			results = append(results, p.accrueOne(ctx, position, period))
		}
	}
	return results, nil
}

// accrueOne posts the yield entry for one position and one period.
func (p *Processor) accrueOne(ctx context.Context, position *domain.InvestmentPosition, period domain.Month) Result {
	amount := MonthlyYield(position)

	entry, err := domain.NewTransaction(uuid.NewString(), position.AccountID,
		domain.DirectionIncome, amount, period.End(), domain.YieldDescription)
	if err != nil {
		return Result{PositionID: position.ID, Period: period, Status: StatusFailed, Err: err}
	}
	entry.ExternalID = domain.YieldExternalID(position.ID, period)
	entry.Synthetic = true

	if err := p.store.PostYield(ctx, position.ID, period, entry); err != nil {
		if errors.Is(err, domain.ErrPeriodAlreadyAccrued) || errors.Is(err, domain.ErrDuplicateExternalID) {
			return Result{PositionID: position.ID, Period: period, Status: StatusSkipped}
		}
		return Result{PositionID: position.ID, Period: period, Status: StatusFailed, Err: err}
	}
	return Result{PositionID: position.ID, Period: period, Status: StatusPosted, Entry: entry}
}

// OpenPosition registers a new yield-bearing position for the owner.
func (p *Processor) OpenPosition(ctx context.Context, ownerID, accountID string, principal, rate decimal.Decimal, opened time.Time) (*domain.InvestmentPosition, error) {
	account, err := p.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: account %s does not belong to owner %s", domain.ErrUnauthorized, accountID, ownerID)
	}

	position, err := domain.NewInvestmentPosition(uuid.NewString(), ownerID, accountID, principal, rate, opened)
	if err != nil {
		return nil, err
	}
	if err := p.store.CreatePosition(ctx, position); err != nil {
		return nil, err
	}
	return position, nil
}
