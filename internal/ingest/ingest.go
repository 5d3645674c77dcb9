// Package ingest is the single gate through which statement candidates
// become ledger entries. The gate never fails a whole batch: each candidate
// is committed, skipped as a duplicate, or reported failed on its own.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
	"github.com/rumor-ml/commons.systems/ledger/internal/statement"
	"github.com/rumor-ml/commons.systems/ledger/internal/store"
)

// Status classifies the outcome of one candidate.
type Status string

const (
	StatusImported  Status = "imported"
	StatusDuplicate Status = "duplicate"
	StatusFailed    Status = "failed"
)

// Result reports the outcome of one candidate. Exactly one of Transaction or
// Err is set for imported and failed candidates; duplicates carry neither.
type Result struct {
	Candidate   statement.Candidate
	Status      Status
	Transaction *domain.Transaction // set when imported
	Err         error               // set when failed
}

// Summary counts outcomes across a batch.
type Summary struct {
	Imported   int
	Duplicates int
	Failed     int
}

// Summarize tallies a batch of results.
func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case StatusImported:
			s.Imported++
		case StatusDuplicate:
			s.Duplicates++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Gate validates candidates and commits them through the store's dedup
// guarantee.
type Gate struct {
	store store.Store
}

// NewGate creates an ingestion gate over the given store.
func NewGate(s store.Store) *Gate {
	return &Gate{store: s}
}

// Import commits a batch of candidates into the account. The batch error is
// non-nil only when the account itself cannot be resolved; per-candidate
// failures land in the result list. Re-importing the same statement yields
// all duplicates and zero new entries.
func (g *Gate) Import(ctx context.Context, accountID string, candidates []statement.Candidate) ([]Result, error) {
	if _, err := g.store.GetAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("cannot import into account %s: %w", accountID, err)
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, g.importOne(ctx, accountID, c))
	}
	return results, nil
}

// importOne commits a single candidate.
func (g *Gate) importOne(ctx context.Context, accountID string, c statement.Candidate) Result {
	if c.ExternalID == "" {
		return Result{
			Candidate: c,
			Status:    StatusFailed,
			Err:       fmt.Errorf("%w: statement candidate has no external id", domain.ErrValidation),
		}
	}

	txn, err := domain.NewTransaction(uuid.NewString(), accountID, c.Direction, c.Amount, c.Date, c.Description)
	if err != nil {
		return Result{Candidate: c, Status: StatusFailed, Err: err}
	}
	txn.Payer = c.Payer
	txn.ExternalID = c.ExternalID

	if err := g.store.InsertTransaction(ctx, txn); err != nil {
		if errors.Is(err, domain.ErrDuplicateExternalID) {
			return Result{Candidate: c, Status: StatusDuplicate}
		}
		return Result{Candidate: c, Status: StatusFailed, Err: err}
	}
	return Result{Candidate: c, Status: StatusImported, Transaction: txn}
}

// Enter commits one manual ledger entry. Manual entries carry no external id,
// so identical entries are allowed to repeat; dedup applies only to
// statement-issued and engine-issued ids.
func (g *Gate) Enter(ctx context.Context, accountID string, direction domain.Direction, amount decimal.Decimal, date time.Time, description, payer string) (*domain.Transaction, error) {
	if _, err := g.store.GetAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("cannot enter into account %s: %w", accountID, err)
	}

	txn, err := domain.NewTransaction(uuid.NewString(), accountID, direction, amount, date, description)
	if err != nil {
		return nil, err
	}
	txn.Payer = payer

	if err := g.store.InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}
