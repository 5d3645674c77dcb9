// Package audit derives account balances, flags suspect entries, and manages
// the one bounded escape hatch from ledger immutability: the adjustment
// marker that forces a balance to match observed reality.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
	"github.com/rumor-ml/commons.systems/ledger/internal/store"
)

// Auditor runs reconciliation operations over the ledger store.
type Auditor struct {
	store store.Store
}

// NewAuditor creates an auditor over the given store.
func NewAuditor(s store.Store) *Auditor {
	return &Auditor{store: s}
}

// Balance computes the account balance as the signed sum of its entries.
// The balance is never stored; it cannot drift from the entries underneath.
func (a *Auditor) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	txns, err := a.store.ListTransactions(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, t := range txns {
		balance = balance.Add(t.Signed())
	}
	return balance, nil
}

// Anomaly is one suspect ledger entry with the reason it was flagged.
type Anomaly struct {
	Transaction *domain.Transaction
	Reason      string
}

// payerFolder strips diacritics and lowercases, so "Jérôme" and "jerome"
// compare equal.
var payerFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldName normalizes a personal name for comparison: diacritics stripped,
// lowercased, runs of whitespace collapsed.
func foldName(name string) string {
	folded, _, err := transform.String(payerFolder, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(strings.Join(strings.Fields(folded), " "))
}

// FindAnomalies flags income entries whose payer is the owner under any of
// the given names: money cannot genuinely arrive from the account's own
// owner, so such entries are almost always misclassified transfers.
// Engine-generated entries are exempt.
func (a *Auditor) FindAnomalies(ctx context.Context, accountID string, ownerNames []string) ([]Anomaly, error) {
	txns, err := a.store.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	folded := make(map[string]struct{}, len(ownerNames))
	for _, name := range ownerNames {
		if f := foldName(name); f != "" {
			folded[f] = struct{}{}
		}
	}

	var anomalies []Anomaly
	for _, t := range txns {
		if t.Synthetic || t.Direction != domain.DirectionIncome || t.Payer == "" {
			continue
		}
		if _, ok := folded[foldName(t.Payer)]; ok {
			anomalies = append(anomalies, Anomaly{
				Transaction: t,
				Reason:      fmt.Sprintf("income entry paid by account owner %q", t.Payer),
			})
		}
	}
	return anomalies, nil
}

// Reclassify corrects a misclassified income entry to an expense. That is
// the only permitted rewrite: flipping expenses to income would let the
// correction path fabricate money, and engine-generated entries are never
// misclassified.
func (a *Auditor) Reclassify(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, err := a.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Synthetic {
		return nil, fmt.Errorf("%w: cannot reclassify engine-generated entry %s", domain.ErrValidation, transactionID)
	}
	if txn.Direction != domain.DirectionIncome {
		return nil, fmt.Errorf("%w: entry %s is already an expense", domain.ErrValidation, transactionID)
	}

	if err := a.store.ReclassifyTransaction(ctx, transactionID, domain.DirectionExpense); err != nil {
		return nil, err
	}
	txn.Direction = domain.DirectionExpense
	return txn, nil
}

// InsertAdjustment posts the synthetic entry that moves the account balance
// to target. Its deterministic external id allows at most one unresolved
// adjustment per account; a second insert returns domain.ErrAdjustmentExists.
// A target equal to the current balance is rejected, because a zero-delta
// marker would record nothing.
func (a *Auditor) InsertAdjustment(ctx context.Context, accountID string, target decimal.Decimal) (*domain.Transaction, error) {
	balance, err := a.Balance(ctx, accountID)
	if err != nil {
		return nil, err
	}

	delta := target.Sub(balance)
	if delta.IsZero() {
		return nil, fmt.Errorf("%w: account %s balance already equals %s", domain.ErrValidation, accountID, target)
	}

	direction := domain.DirectionIncome
	if delta.IsNegative() {
		direction = domain.DirectionExpense
	}

	entry, err := domain.NewTransaction(uuid.NewString(), accountID, direction,
		delta.Abs(), time.Now().UTC(), domain.AdjustmentDescription)
	if err != nil {
		return nil, err
	}
	entry.ExternalID = domain.AdjustmentExternalID(accountID)
	entry.Synthetic = true

	if err := a.store.InsertTransaction(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicateExternalID) {
			return nil, fmt.Errorf("%w: account %s has an unresolved adjustment", domain.ErrAdjustmentExists, accountID)
		}
		return nil, err
	}
	return entry, nil
}

// RemoveAdjustment deletes the account's unresolved adjustment marker,
// restoring the pre-adjustment balance. Returns domain.ErrNotFound when no
// marker exists.
func (a *Auditor) RemoveAdjustment(ctx context.Context, accountID string) error {
	marker, err := a.store.FindTransactionByExternalID(ctx, accountID, domain.AdjustmentExternalID(accountID))
	if err != nil {
		return err
	}
	if !domain.IsAdjustment(marker) {
		return fmt.Errorf("%w: entry %s is not an adjustment marker", domain.ErrValidation, marker.ID)
	}
	return a.store.DeleteTransaction(ctx, marker.ID)
}
