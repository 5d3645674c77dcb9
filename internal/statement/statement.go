// Package statement decodes raw bank exports into normalized transaction
// candidates. Parsing is lenient: a malformed record is skipped, never fatal,
// because a single corrupt block must not void an entire statement.
package statement

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
)

// FallbackDescription is used when a record carries neither a name nor a memo.
const FallbackDescription = "Unknown transaction"

// Candidate is one normalized transaction candidate, ready for the ingestion
// gate. The direction is derived from the statement amount's numeric sign;
// the source format's type hint is retained for diagnostics only and is never
// trusted, because it is frequently absent or inconsistent across banks.
type Candidate struct {
	Direction   domain.Direction
	Amount      decimal.Decimal // non-negative magnitude
	Date        time.Time
	Description string
	Payer       string // counterparty name, may be empty
	ExternalID  string // statement-issued dedup key, always set by parsers
	TypeHint    string // raw type field from the source, informational
	Memo        string
}

// newCandidate builds a Candidate from a signed statement amount: negative
// means expense, non-negative means income, and the stored amount is the
// absolute value.
func newCandidate(signed decimal.Decimal, date time.Time, description, payer, externalID string) Candidate {
	direction := domain.DirectionIncome
	if signed.IsNegative() {
		direction = domain.DirectionExpense
	}
	if description == "" {
		description = FallbackDescription
	}
	return Candidate{
		Direction:   direction,
		Amount:      signed.Abs(),
		Date:        date,
		Description: description,
		Payer:       payer,
		ExternalID:  externalID,
	}
}

// Parser is the strategy interface for all export format parsers.
type Parser interface {
	// Name returns the parser identifier (e.g., "ofx", "csv").
	Name() string

	// CanParse checks if this parser should be used for the file, based on
	// its path and the first bytes of its content.
	CanParse(path string, header []byte) bool

	// Parse extracts candidates from the export. Entirely unparsable input
	// yields an empty slice and a nil error: "nothing importable" is not a
	// failure.
	Parse(ctx context.Context, r io.Reader) ([]Candidate, error)
}
