package statement

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CSVParser decodes generic CSV exports with a header row. It is stateless
// and safe for concurrent use.
//
// Expected columns (case-insensitive header match): Date, Amount, and
// optionally Description, Payer, Reference. Amounts are signed: positive for
// money in, negative for money out. Rows that fail to parse are skipped.
type CSVParser struct{}

var csvInstance = &CSVParser{}

// NewCSVParser returns the shared CSV parser instance.
func NewCSVParser() *CSVParser {
	return csvInstance
}

// Name returns the parser identifier.
func (p *CSVParser) Name() string {
	return "csv"
}

// CanParse checks for a .csv extension and a header row naming at least the
// date and amount columns.
func (p *CSVParser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".csv" {
		return false
	}

	r := csv.NewReader(strings.NewReader(string(header)))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	record, err := r.Read()
	if err != nil {
		return false
	}

	cols := columnIndex(record)
	_, hasDate := cols["date"]
	_, hasAmount := cols["amount"]
	return hasDate && hasAmount
}

// Parse extracts candidates from a CSV export. Malformed rows are skipped;
// only a missing or unusable header row is an error.
func (p *CSVParser) Parse(ctx context.Context, r io.Reader) ([]Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV content: %w", err)
	}

	if len(records) < 1 {
		return []Candidate{}, nil
	}

	cols := columnIndex(records[0])
	dateCol, hasDate := cols["date"]
	amountCol, hasAmount := cols["amount"]
	if !hasDate || !hasAmount {
		return nil, fmt.Errorf("CSV header must name date and amount columns, got %v", records[0])
	}

	out := []Candidate{}
	for _, record := range records[1:] {
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}

		c, ok := p.parseRow(record, cols, dateCol, amountCol)
		if !ok {
			continue
		}
		out = append(out, c)
	}

	return out, nil
}

// columnIndex maps lowercased header names to their positions.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

// field returns the trimmed value of the named column, or "" when the column
// is absent or the row is short.
func field(record []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// csvDateLayouts lists accepted date formats, tried in order.
var csvDateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006"}

// parseRow converts a single data row to a candidate.
func (p *CSVParser) parseRow(record []string, cols map[string]int, dateCol, amountCol int) (Candidate, bool) {
	if dateCol >= len(record) || amountCol >= len(record) {
		return Candidate{}, false
	}

	dateStr := strings.TrimSpace(record[dateCol])
	var date time.Time
	var err error
	for _, layout := range csvDateLayouts {
		if date, err = time.Parse(layout, dateStr); err == nil {
			break
		}
	}
	if err != nil {
		return Candidate{}, false
	}

	signed, err := parseAmount(record[amountCol])
	if err != nil {
		return Candidate{}, false
	}

	description := field(record, cols, "description")
	payer := field(record, cols, "payer")
	reference := field(record, cols, "reference")

	externalID := generateExternalID(date, reference, signed)
	return newCandidate(signed, date, description, payer, externalID), true
}

// generateExternalID builds a deterministic external id from date, reference,
// and amount so re-importing the same CSV file deduplicates.
// Format: csv-{YYYY-MM-DD}-{reference}-{amount}
func generateExternalID(date time.Time, reference string, signed decimal.Decimal) string {
	refStr := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, reference)

	if len(refStr) > 20 {
		refStr = refStr[:20]
	}
	if refStr == "" {
		refStr = "noref"
	}

	amountStr := signed.StringFixed(2)
	amountStr = strings.ReplaceAll(amountStr, ".", "")
	amountStr = strings.ReplaceAll(amountStr, "-", "n")

	return fmt.Sprintf("csv-%s-%s-%s", date.Format("2006-01-02"), refStr, amountStr)
}
