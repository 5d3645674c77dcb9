package domain

import "fmt"

// Reserved description markers for engine-generated entries. The adjustment
// description doubles as the lookup convention for adjustment removal.
const (
	AdjustmentDescription = "balance adjustment"
	YieldDescription      = "accrued yield credit"
)

// AdjustmentExternalID returns the deterministic external id of the
// adjustment marker for an account. Because external ids are unique per
// account, this enforces at most one unresolved marker at a time.
// Example: AdjustmentExternalID("acc-7") → "adjust-acc-7"
func AdjustmentExternalID(accountID string) string {
	return fmt.Sprintf("adjust-%s", accountID)
}

// YieldExternalID returns the deterministic external id of the yield entry
// for one position and one accrual period. The ingestion path's dedup key
// backs up the position's period marker: even if two yield runs race past the
// marker, only one entry per period can ever be committed.
// Example: YieldExternalID("pos-3", NewMonth(2025, 1)) → "yield-pos-3-2025-01"
func YieldExternalID(positionID string, period Month) string {
	return fmt.Sprintf("yield-%s-%s", positionID, period)
}

// IsAdjustment reports whether the entry is an adjustment marker, by the
// reserved description/external-id convention.
func IsAdjustment(t *Transaction) bool {
	return t.Synthetic && t.ExternalID == AdjustmentExternalID(t.AccountID)
}
