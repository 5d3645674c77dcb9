// Package output serializes account snapshots to JSON for export to other
// tools.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
)

// Snapshot is a point-in-time JSON export of one account: its metadata, its
// full entry list, and the balance derived from them.
type Snapshot struct {
	Account      *domain.Account       `json:"account"`
	Balance      decimal.Decimal       `json:"balance"`
	Transactions []*domain.Transaction `json:"transactions"`
	ExportedAt   time.Time             `json:"exportedAt"`
}

// NewSnapshot assembles a snapshot, deriving the balance from the entries so
// the exported number can never disagree with the exported list.
func NewSnapshot(account *domain.Account, transactions []*domain.Transaction) (*Snapshot, error) {
	if account == nil {
		return nil, fmt.Errorf("account cannot be nil")
	}

	balance := decimal.Zero
	for _, t := range transactions {
		balance = balance.Add(t.Signed())
	}

	if transactions == nil {
		transactions = []*domain.Transaction{}
	}
	return &Snapshot{
		Account:      account,
		Balance:      balance,
		Transactions: transactions,
		ExportedAt:   time.Now().UTC(),
	}, nil
}

// WriteSnapshot serializes the snapshot as indented JSON.
func WriteSnapshot(snap *Snapshot, w io.Writer) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot as JSON: %w", err)
	}
	return nil
}

// WriteSnapshotToFile writes the snapshot to filePath, or to stdout when the
// path is empty. File writes go through a temp file and rename, so a crash
// never leaves a half-written export behind.
func WriteSnapshotToFile(snap *Snapshot, filePath string) error {
	if filePath == "" {
		return WriteSnapshot(snap, os.Stdout)
	}

	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", tempFile, err)
	}

	if err := WriteSnapshot(snap, f); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close output file %s: %w", tempFile, err)
	}

	if err := os.Rename(tempFile, filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// LoadSnapshot reads a previously exported snapshot.
func LoadSnapshot(filePath string) (*Snapshot, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var snap Snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot JSON: %w", err)
	}
	return &snap, nil
}
