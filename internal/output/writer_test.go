package output

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
)

func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	account, err := domain.NewAccount("acc-1", "owner-1", "Checking", domain.AccountKindBank)
	require.NoError(t, err)

	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	in, err := domain.NewTransaction("t-1", "acc-1", domain.DirectionIncome,
		decimal.RequireFromString("1500.00"), date, "salary")
	require.NoError(t, err)
	out, err := domain.NewTransaction("t-2", "acc-1", domain.DirectionExpense,
		decimal.RequireFromString("42.17"), date, "groceries")
	require.NoError(t, err)

	snap, err := NewSnapshot(account, []*domain.Transaction{in, out})
	require.NoError(t, err)
	return snap
}

func TestNewSnapshot_DerivesBalance(t *testing.T) {
	snap := testSnapshot(t)
	assert.True(t, snap.Balance.Equal(decimal.RequireFromString("1457.83")))
	assert.False(t, snap.ExportedAt.IsZero())

	_, err := NewSnapshot(nil, nil)
	assert.Error(t, err)
}

func TestNewSnapshot_EmptyAccount(t *testing.T) {
	account, err := domain.NewAccount("acc-1", "owner-1", "Checking", domain.AccountKindBank)
	require.NoError(t, err)

	snap, err := NewSnapshot(account, nil)
	require.NoError(t, err)
	assert.True(t, snap.Balance.IsZero())
	assert.NotNil(t, snap.Transactions, "exports an empty array, not null")
}

func TestWriteSnapshot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(testSnapshot(t), &buf))

	got := buf.String()
	assert.True(t, strings.Contains(got, `"balance": "1457.83"`), "balance serialized exactly: %s", got)
	assert.True(t, strings.Contains(got, `"acc-1"`))

	assert.Error(t, WriteSnapshot(nil, &buf))
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.json")
	snap := testSnapshot(t)

	require.NoError(t, WriteSnapshotToFile(snap, path))

	loaded, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap.Account, loaded.Account)
	assert.True(t, snap.Balance.Equal(loaded.Balance))
	require.Len(t, loaded.Transactions, 2)
	assert.True(t, loaded.Transactions[0].Amount.Equal(decimal.RequireFromString("1500.00")))
}

func TestLoadSnapshot_Missing(t *testing.T) {
	_, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	_, err = LoadSnapshot("")
	assert.Error(t, err)
}
