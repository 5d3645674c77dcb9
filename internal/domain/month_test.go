package domain

import (
	"testing"
	"time"
)

func TestMonthString(t *testing.T) {
	tests := []struct {
		name  string
		month Month
		want  string
	}{
		{"regular month", NewMonth(2025, time.January), "2025-01"},
		{"december", NewMonth(2025, time.December), "2025-12"},
		{"zero month", Month{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.month.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2025-07")
	if err != nil {
		t.Fatal(err)
	}
	if m != NewMonth(2025, time.July) {
		t.Errorf("ParseMonth(2025-07) = %s", m)
	}

	zero, err := ParseMonth("")
	if err != nil {
		t.Fatal(err)
	}
	if !zero.IsZero() {
		t.Error("ParseMonth(\"\") should yield the zero Month")
	}

	if _, err := ParseMonth("July 2025"); err == nil {
		t.Error("ParseMonth should reject non YYYY-MM input")
	}
}

func TestMonthNext(t *testing.T) {
	tests := []struct {
		name string
		in   Month
		want Month
	}{
		{"mid-year", NewMonth(2025, time.June), NewMonth(2025, time.July)},
		{"year rollover", NewMonth(2025, time.December), NewMonth(2026, time.January)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Next(); got != tt.want {
				t.Errorf("Next() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMonthBefore(t *testing.T) {
	jan := NewMonth(2025, time.January)
	feb := NewMonth(2025, time.February)

	if !jan.Before(feb) {
		t.Error("January should be before February")
	}
	if feb.Before(jan) {
		t.Error("February should not be before January")
	}
	if jan.Before(jan) {
		t.Error("a month is not before itself")
	}
	if !NewMonth(2024, time.December).Before(jan) {
		t.Error("December 2024 should be before January 2025")
	}
	if !(Month{}).Before(jan) {
		t.Error("the zero Month should be before every real month")
	}
}

func TestMonthEnd(t *testing.T) {
	tests := []struct {
		month Month
		want  time.Time
	}{
		{NewMonth(2025, time.January), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)},
		{NewMonth(2025, time.February), time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)},
		{NewMonth(2024, time.February), time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{NewMonth(2025, time.December), time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			if got := tt.month.End(); !got.Equal(tt.want) {
				t.Errorf("End() = %s, want %s", got, tt.want)
			}
		})
	}
}
