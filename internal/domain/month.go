package domain

import (
	"fmt"
	"time"
)

// Month is the yield accrual period: a calendar month with no finer
// granularity. The zero value means "never accrued".
type Month struct {
	year  int
	month time.Month
}

// NewMonth returns a normalized Month (month 13 rolls into the next year).
func NewMonth(year int, month time.Month) Month {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Month{year: t.Year(), month: t.Month()}
}

// MonthOf returns the Month containing t.
func MonthOf(t time.Time) Month {
	return Month{year: t.Year(), month: t.Month()}
}

// ParseMonth parses the YYYY-MM form produced by String. An empty string
// parses to the zero Month.
func ParseMonth(s string) (Month, error) {
	if s == "" {
		return Month{}, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q (expected YYYY-MM): %w", s, err)
	}
	return MonthOf(t), nil
}

// Year returns the calendar year.
func (m Month) Year() int { return m.year }

// Mon returns the calendar month.
func (m Month) Mon() time.Month { return m.month }

// IsZero reports whether m is the zero Month.
func (m Month) IsZero() bool { return m.year == 0 && m.month == 0 }

// Next returns the month after m.
func (m Month) Next() Month { return NewMonth(m.year, m.month+1) }

// Before reports whether m is strictly earlier than x. The zero Month is
// before every non-zero Month.
func (m Month) Before(x Month) bool {
	if m.year != x.year {
		return m.year < x.year
	}
	return m.month < x.month
}

// End returns the last instant of the month at day granularity, used to date
// synthesized yield entries.
func (m Month) End() time.Time {
	return time.Date(m.year, m.month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// String returns the YYYY-MM form, or "" for the zero Month.
func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.year, int(m.month))
}
