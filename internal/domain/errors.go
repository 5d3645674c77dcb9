package domain

import "errors"

// Sentinel errors shared across the engine. Callers classify failures with
// errors.Is rather than matching message text.
var (
	// ErrValidation marks input rejected before any write. Safe to retry
	// after correcting the input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a lookup of an entity that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks an operation on an entity the caller does not own.
	ErrUnauthorized = errors.New("not owned by caller")

	// ErrDuplicateExternalID marks an insert whose external identifier already
	// exists on the account. The ingestion gate treats this as a duplicate
	// skip, never as a failure.
	ErrDuplicateExternalID = errors.New("duplicate external id")

	// ErrOverpayment marks a debt payment that would push the paid amount
	// past the total owed. Nothing is written.
	ErrOverpayment = errors.New("payment exceeds remaining debt")

	// ErrPeriodAlreadyAccrued marks a yield posting for a period the position
	// has already accrued.
	ErrPeriodAlreadyAccrued = errors.New("yield period already accrued")

	// ErrAdjustmentExists marks an attempt to insert a second unresolved
	// adjustment marker on the same account.
	ErrAdjustmentExists = errors.New("unresolved adjustment already exists")
)
