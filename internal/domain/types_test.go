package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewAccount(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		ownerID string
		accName string
		kind    AccountKind
		wantErr bool
	}{
		{"valid bank account", "acc-1", "owner-1", "Checking", AccountKindBank, false},
		{"valid investment account", "acc-2", "owner-1", "Brokerage", AccountKindInvestment, false},
		{"empty id", "", "owner-1", "Checking", AccountKindBank, true},
		{"empty owner", "acc-1", "", "Checking", AccountKindBank, true},
		{"empty name", "acc-1", "owner-1", "", AccountKindBank, true},
		{"invalid kind", "acc-1", "owner-1", "Checking", AccountKind("stocks"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewAccount(tt.id, tt.ownerID, tt.accName, tt.kind)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewAccount() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("NewAccount() error should wrap ErrValidation, got %v", err)
			}
		})
	}
}

func TestNewTransaction(t *testing.T) {
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		id          string
		accountID   string
		direction   Direction
		amount      decimal.Decimal
		date        time.Time
		description string
		wantErr     bool
	}{
		{"valid income", "t-1", "acc-1", DirectionIncome, decimal.NewFromInt(100), date, "salary", false},
		{"valid zero amount", "t-2", "acc-1", DirectionExpense, decimal.Zero, date, "nothing", false},
		{"negative amount", "t-3", "acc-1", DirectionIncome, decimal.NewFromInt(-5), date, "bad", true},
		{"invalid direction", "t-4", "acc-1", Direction("TRANSFER"), decimal.NewFromInt(5), date, "bad", true},
		{"zero date", "t-5", "acc-1", DirectionIncome, decimal.NewFromInt(5), time.Time{}, "bad", true},
		{"empty description", "t-6", "acc-1", DirectionIncome, decimal.NewFromInt(5), date, "", true},
		{"empty account", "t-7", "", DirectionIncome, decimal.NewFromInt(5), date, "bad", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, err := NewTransaction(tt.id, tt.accountID, tt.direction, tt.amount, tt.date, tt.description)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewTransaction() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && txn.CreatedAt.IsZero() {
				t.Error("NewTransaction() should set CreatedAt")
			}
		})
	}
}

func TestTransactionSigned(t *testing.T) {
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	income, err := NewTransaction("t-1", "acc-1", DirectionIncome, decimal.NewFromFloat(12.50), date, "in")
	if err != nil {
		t.Fatal(err)
	}
	if got := income.Signed(); !got.Equal(decimal.NewFromFloat(12.50)) {
		t.Errorf("income Signed() = %s, want 12.5", got)
	}

	expense, err := NewTransaction("t-2", "acc-1", DirectionExpense, decimal.NewFromFloat(12.50), date, "out")
	if err != nil {
		t.Fatal(err)
	}
	if got := expense.Signed(); !got.Equal(decimal.NewFromFloat(-12.50)) {
		t.Errorf("expense Signed() = %s, want -12.5", got)
	}
}

func TestDebtStatus(t *testing.T) {
	tests := []struct {
		name string
		paid string
		want DebtStatus
	}{
		{"nothing paid", "0", DebtOpen},
		{"partially paid", "400", DebtPartiallyPaid},
		{"exactly paid", "1000", DebtPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDebt("d-1", "owner-1", "acc-1", "loan", decimal.NewFromInt(1000), time.Time{})
			if err != nil {
				t.Fatal(err)
			}
			d.PaidAmount = decimal.RequireFromString(tt.paid)

			if got := d.Status(); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDebtRemaining(t *testing.T) {
	d, err := NewDebt("d-1", "owner-1", "acc-1", "loan", decimal.NewFromInt(1000), time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	d.PaidAmount = decimal.NewFromInt(400)

	if got := d.Remaining(); !got.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Remaining() = %s, want 600", got)
	}
}

func TestNewDebtValidation(t *testing.T) {
	if _, err := NewDebt("", "o", "a", "x", decimal.NewFromInt(1), time.Time{}); !errors.Is(err, ErrValidation) {
		t.Errorf("empty id should fail validation, got %v", err)
	}
	if _, err := NewDebt("d", "o", "a", "x", decimal.NewFromInt(-1), time.Time{}); !errors.Is(err, ErrValidation) {
		t.Errorf("negative total should fail validation, got %v", err)
	}
}

func TestNewInvestmentPosition(t *testing.T) {
	opened := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	p, err := NewInvestmentPosition("p-1", "owner-1", "acc-1",
		decimal.NewFromInt(10000), decimal.NewFromFloat(0.045), opened)
	if err != nil {
		t.Fatal(err)
	}

	if p.LastAccrued != MonthOf(opened) {
		t.Errorf("LastAccrued = %s, want %s", p.LastAccrued, MonthOf(opened))
	}
	if !p.CurrentValue.Equal(p.Principal) {
		t.Errorf("CurrentValue should start at principal, got %s", p.CurrentValue)
	}

	if _, err := NewInvestmentPosition("p-2", "owner-1", "acc-1",
		decimal.NewFromInt(-1), decimal.Zero, opened); !errors.Is(err, ErrValidation) {
		t.Errorf("negative principal should fail validation, got %v", err)
	}
	if _, err := NewInvestmentPosition("p-3", "owner-1", "acc-1",
		decimal.NewFromInt(1), decimal.NewFromFloat(-0.01), opened); !errors.Is(err, ErrValidation) {
		t.Errorf("negative rate should fail validation, got %v", err)
	}
}

func TestIsAdjustment(t *testing.T) {
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	marker, err := NewTransaction("t-1", "acc-1", DirectionIncome, decimal.NewFromInt(5), date, AdjustmentDescription)
	if err != nil {
		t.Fatal(err)
	}
	marker.Synthetic = true
	marker.ExternalID = AdjustmentExternalID("acc-1")

	if !IsAdjustment(marker) {
		t.Error("IsAdjustment() should be true for a marker entry")
	}

	regular, err := NewTransaction("t-2", "acc-1", DirectionIncome, decimal.NewFromInt(5), date, "salary")
	if err != nil {
		t.Fatal(err)
	}
	if IsAdjustment(regular) {
		t.Error("IsAdjustment() should be false for a regular entry")
	}
}
