// Package sqlite implements the ledger store on an embedded SQLite database
// (modernc.org/sqlite, no cgo). Money columns are stored as exact decimal
// text, never floats. External-id uniqueness per account is a partial unique
// index, so the dedup guarantee holds across processes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	sqlite3 "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id       TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	name     TEXT NOT NULL,
	kind     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS debts (
	id           TEXT PRIMARY KEY,
	owner_id     TEXT NOT NULL,
	account_id   TEXT NOT NULL,
	description  TEXT NOT NULL,
	total_amount TEXT NOT NULL,
	paid_amount  TEXT NOT NULL,
	due_date     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS positions (
	id            TEXT PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	account_id    TEXT NOT NULL,
	principal     TEXT NOT NULL,
	current_value TEXT NOT NULL,
	annual_rate   TEXT NOT NULL,
	last_accrued  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transactions (
	id          TEXT PRIMARY KEY,
	account_id  TEXT NOT NULL,
	direction   TEXT NOT NULL,
	amount      TEXT NOT NULL,
	date        TEXT NOT NULL,
	description TEXT NOT NULL,
	payer       TEXT NOT NULL DEFAULT '',
	external_id TEXT,
	debt_id     TEXT NOT NULL DEFAULT '',
	synthetic   INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_txn_account_external
	ON transactions(account_id, external_id)
	WHERE external_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS idx_txn_account_date
	ON transactions(account_id, date, created_at);
`

// Store implements store.Store on SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a ledger database at path. Use ":memory:"
// for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// A single connection avoids SQLITE_BUSY under concurrent writers and
	// keeps :memory: databases from silently splitting per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a SQLite unique constraint error.
func isUniqueViolation(err error) bool {
	var sqlErr *sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// timeToDB serializes a time for storage; zero times become "".
func timeToDB(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// timeFromDB parses a stored time; "" comes back as the zero time.
func timeFromDB(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// CreateAccount persists a new account.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, owner_id, name, kind) VALUES (?, ?, ?, ?)`,
		account.ID, account.OwnerID, account.Name, string(account.Kind))
	if err != nil {
		return fmt.Errorf("failed to create account %s: %w", account.ID, err)
	}
	return nil
}

// GetAccount returns the account or domain.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, kind FROM accounts WHERE id = ?`, id)

	var a domain.Account
	var kind string
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &kind); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	a.Kind = domain.AccountKind(kind)
	return &a, nil
}

// ListAccounts returns all accounts for an owner.
func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, kind FROM accounts WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		var a domain.Account
		var kind string
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Name, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.Kind = domain.AccountKind(kind)
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// CreateDebt persists a new debt.
func (s *Store) CreateDebt(ctx context.Context, debt *domain.Debt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO debts (id, owner_id, account_id, description, total_amount, paid_amount, due_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		debt.ID, debt.OwnerID, debt.AccountID, debt.Description,
		debt.TotalAmount.String(), debt.PaidAmount.String(), timeToDB(debt.DueDate))
	if err != nil {
		return fmt.Errorf("failed to create debt %s: %w", debt.ID, err)
	}
	return nil
}

func scanDebt(row interface{ Scan(...any) error }) (*domain.Debt, error) {
	var d domain.Debt
	var total, paid, due string
	if err := row.Scan(&d.ID, &d.OwnerID, &d.AccountID, &d.Description, &total, &paid, &due); err != nil {
		return nil, err
	}

	var err error
	if d.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("corrupt total amount %q: %w", total, err)
	}
	if d.PaidAmount, err = decimal.NewFromString(paid); err != nil {
		return nil, fmt.Errorf("corrupt paid amount %q: %w", paid, err)
	}
	if d.DueDate, err = timeFromDB(due); err != nil {
		return nil, fmt.Errorf("corrupt due date %q: %w", due, err)
	}
	return &d, nil
}

const debtColumns = `id, owner_id, account_id, description, total_amount, paid_amount, due_date`

// GetDebt returns the debt or domain.ErrNotFound.
func (s *Store) GetDebt(ctx context.Context, id string) (*domain.Debt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE id = ?`, id)

	d, err := scanDebt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: debt %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get debt %s: %w", id, err)
	}
	return d, nil
}

// ListDebts returns all debts for an owner.
func (s *Store) ListDebts(ctx context.Context, ownerID string) ([]*domain.Debt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list debts for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var debts []*domain.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan debt: %w", err)
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

// CreatePosition persists a new investment position.
func (s *Store) CreatePosition(ctx context.Context, position *domain.InvestmentPosition) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO positions (id, owner_id, account_id, principal, current_value, annual_rate, last_accrued)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		position.ID, position.OwnerID, position.AccountID,
		position.Principal.String(), position.CurrentValue.String(),
		position.AnnualRate.String(), position.LastAccrued.String())
	if err != nil {
		return fmt.Errorf("failed to create position %s: %w", position.ID, err)
	}
	return nil
}

func scanPosition(row interface{ Scan(...any) error }) (*domain.InvestmentPosition, error) {
	var p domain.InvestmentPosition
	var principal, value, rate, accrued string
	if err := row.Scan(&p.ID, &p.OwnerID, &p.AccountID, &principal, &value, &rate, &accrued); err != nil {
		return nil, err
	}

	var err error
	if p.Principal, err = decimal.NewFromString(principal); err != nil {
		return nil, fmt.Errorf("corrupt principal %q: %w", principal, err)
	}
	if p.CurrentValue, err = decimal.NewFromString(value); err != nil {
		return nil, fmt.Errorf("corrupt current value %q: %w", value, err)
	}
	if p.AnnualRate, err = decimal.NewFromString(rate); err != nil {
		return nil, fmt.Errorf("corrupt annual rate %q: %w", rate, err)
	}
	if p.LastAccrued, err = domain.ParseMonth(accrued); err != nil {
		return nil, fmt.Errorf("corrupt accrual marker %q: %w", accrued, err)
	}
	return &p, nil
}

const positionColumns = `id, owner_id, account_id, principal, current_value, annual_rate, last_accrued`

// GetPosition returns the position or domain.ErrNotFound.
func (s *Store) GetPosition(ctx context.Context, id string) (*domain.InvestmentPosition, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = ?`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: position %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get position %s: %w", id, err)
	}
	return p, nil
}

// ListPositions returns all positions for an owner.
func (s *Store) ListPositions(ctx context.Context, ownerID string) ([]*domain.InvestmentPosition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var positions []*domain.InvestmentPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

const txnColumns = `id, account_id, direction, amount, date, description, payer, external_id, debt_id, synthetic, created_at`

// insertTxn runs the transaction insert against any execer (db or tx).
func insertTxn(ctx context.Context, execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, txn *domain.Transaction) error {
	var externalID any
	if txn.ExternalID != "" {
		externalID = txn.ExternalID
	}

	_, err := execer.ExecContext(ctx,
		`INSERT INTO transactions (`+txnColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.AccountID, string(txn.Direction), txn.Amount.String(),
		timeToDB(txn.Date), txn.Description, txn.Payer, externalID,
		txn.DebtID, txn.Synthetic, timeToDB(txn.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) && txn.ExternalID != "" {
			return fmt.Errorf("%w: external id %s in account %s",
				domain.ErrDuplicateExternalID, txn.ExternalID, txn.AccountID)
		}
		return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
	}
	return nil
}

// InsertTransaction persists a new ledger entry, enforcing external-id
// uniqueness per account.
func (s *Store) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	return insertTxn(ctx, s.db, txn)
}

func scanTxn(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var t domain.Transaction
	var amount, date, created, direction string
	var externalID sql.NullString
	if err := row.Scan(&t.ID, &t.AccountID, &direction, &amount, &date,
		&t.Description, &t.Payer, &externalID, &t.DebtID, &t.Synthetic, &created); err != nil {
		return nil, err
	}

	t.Direction = domain.Direction(direction)
	t.ExternalID = externalID.String

	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
	}
	if t.Date, err = timeFromDB(date); err != nil {
		return nil, fmt.Errorf("corrupt date %q: %w", date, err)
	}
	if t.CreatedAt, err = timeFromDB(created); err != nil {
		return nil, fmt.Errorf("corrupt created time %q: %w", created, err)
	}
	return &t, nil
}

// GetTransaction returns the entry or domain.ErrNotFound.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE id = ?`, id)

	t, err := scanTxn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", id, err)
	}
	return t, nil
}

// FindTransactionByExternalID returns the entry carrying the external id in
// the account, or domain.ErrNotFound.
func (s *Store) FindTransactionByExternalID(ctx context.Context, accountID, externalID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE account_id = ? AND external_id = ?`,
		accountID, externalID)

	t, err := scanTxn(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: external id %s in account %s", domain.ErrNotFound, externalID, accountID)
		}
		return nil, fmt.Errorf("failed to find transaction by external id %s: %w", externalID, err)
	}
	return t, nil
}

// ListTransactions returns all entries for an account, ordered by date then
// creation time.
func (s *Store) ListTransactions(ctx context.Context, accountID string) ([]*domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE account_id = ? ORDER BY date, created_at, id`,
		accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// DeleteTransaction removes an entry.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete transaction %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	return nil
}

// ReclassifyTransaction rewrites the direction of an entry.
func (s *Store) ReclassifyTransaction(ctx context.Context, id string, direction domain.Direction) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE transactions SET direction = ? WHERE id = ?`, string(direction), id)
	if err != nil {
		return fmt.Errorf("failed to reclassify transaction %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reclassify transaction %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: transaction %s", domain.ErrNotFound, id)
	}
	return nil
}

// ApplyDebtPayment atomically adds amount to the debt's paid total and
// inserts the linked expense entry. The overpayment check runs on the debt
// row as read inside this transaction.
func (s *Store) ApplyDebtPayment(ctx context.Context, debtID string, amount decimal.Decimal, entry *domain.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE id = ?`, debtID)
	debt, err := scanDebt(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: debt %s", domain.ErrNotFound, debtID)
		}
		return fmt.Errorf("failed to get debt %s: %w", debtID, err)
	}

	newPaid := debt.PaidAmount.Add(amount)
	if newPaid.GreaterThan(debt.TotalAmount) {
		return fmt.Errorf("%w: paying %s would exceed debt total %s (already paid %s)",
			domain.ErrOverpayment, amount, debt.TotalAmount, debt.PaidAmount)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE debts SET paid_amount = ? WHERE id = ?`, newPaid.String(), debtID); err != nil {
		return fmt.Errorf("failed to update debt %s: %w", debtID, err)
	}

	if err := insertTxn(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit debt payment: %w", err)
	}
	return nil
}

// PostYield atomically advances the position's accrual marker and inserts
// the yield income entry.
func (s *Store) PostYield(ctx context.Context, positionID string, period domain.Month, entry *domain.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE id = ?`, positionID)
	position, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: position %s", domain.ErrNotFound, positionID)
		}
		return fmt.Errorf("failed to get position %s: %w", positionID, err)
	}

	if !position.LastAccrued.Before(period) {
		return fmt.Errorf("%w: position %s already accrued through %s",
			domain.ErrPeriodAlreadyAccrued, positionID, position.LastAccrued)
	}

	newValue := position.CurrentValue.Add(entry.Amount)
	if _, err := tx.ExecContext(ctx,
		`UPDATE positions SET last_accrued = ?, current_value = ? WHERE id = ?`,
		period.String(), newValue.String(), positionID); err != nil {
		return fmt.Errorf("failed to update position %s: %w", positionID, err)
	}

	if err := insertTxn(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit yield posting: %w", err)
	}
	return nil
}
