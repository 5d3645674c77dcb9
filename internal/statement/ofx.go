package statement

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"path/filepath"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

// OFXParser decodes OFX/QFX exports. A well-formed file goes through the
// ofxgo response parser; when that fails (truncated downloads, banks emitting
// dialect SGML) the parser degrades to a block scanner that salvages every
// individually parseable STMTTRN record. Stateless, safe for concurrent use.
type OFXParser struct{}

var ofxInstance = &OFXParser{}

// NewOFXParser returns the shared OFX parser instance.
func NewOFXParser() *OFXParser {
	return ofxInstance
}

// Name returns the parser identifier.
func (p *OFXParser) Name() string {
	return "ofx"
}

// CanParse checks extension and header markers for both OFX v1 SGML and
// v2 XML variants.
func (p *OFXParser) CanParse(path string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return false
	}

	headerUpper := strings.ToUpper(string(header))
	return strings.Contains(headerUpper, "OFXHEADER") ||
		strings.Contains(headerUpper, "<?OFX") ||
		strings.Contains(headerUpper, "<OFX>")
}

// Parse extracts candidates from an OFX/QFX export. Unparsable input yields
// an empty slice, not an error.
func (p *OFXParser) Parse(ctx context.Context, r io.Reader) ([]Candidate, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	// ofxgo.ParseResponse does not support cancellation, so check once
	// between reading and parsing.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if len(bytes.TrimSpace(content)) == 0 {
		return []Candidate{}, nil
	}

	if response, err := ofxgo.ParseResponse(bytes.NewReader(content)); err == nil {
		return candidatesFromResponse(response), nil
	}

	// Strict parse failed. Salvage whatever records survive a block scan.
	return scanBlocks(string(content)), nil
}

// candidatesFromResponse converts every statement in a parsed OFX response.
// Individual records that miss required fields are skipped, matching the
// lenient contract of the block scanner.
func candidatesFromResponse(resp *ofxgo.Response) []Candidate {
	out := []Candidate{}

	appendList := func(list *ofxgo.TransactionList) {
		if list == nil {
			return
		}
		for _, txn := range list.Transactions {
			if c, ok := candidateFromOFX(txn); ok {
				out = append(out, c)
			}
		}
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			appendList(stmt.BankTranList)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			appendList(stmt.BankTranList)
		}
	}
	for _, msg := range resp.InvStmt {
		stmt, ok := msg.(*ofxgo.InvStatementResponse)
		if !ok || stmt.InvTranList == nil {
			continue
		}
		// Cash movements only; security transactions carry no signed cash
		// amount to ingest.
		for _, invBank := range stmt.InvTranList.BankTransactions {
			for _, txn := range invBank.Transactions {
				if c, ok := candidateFromOFX(txn); ok {
					out = append(out, c)
				}
			}
		}
	}

	return out
}

// candidateFromOFX maps one ofxgo transaction, requiring the same three
// fields as the block scanner: posted date, amount, and external id.
func candidateFromOFX(txn ofxgo.Transaction) (Candidate, bool) {
	externalID := txn.FiTID.String()
	if externalID == "" {
		return Candidate{}, false
	}

	date := txn.DtPosted.Time
	if date.IsZero() {
		return Candidate{}, false
	}

	signed := decimal.NewFromBigRat(new(big.Rat).Set(&txn.TrnAmt.Rat), 2)

	name := strings.TrimSpace(txn.Name.String())
	memo := strings.TrimSpace(txn.Memo.String())
	description := name
	if description == "" {
		description = memo
	}

	c := newCandidate(signed, date, description, name, externalID)
	c.TypeHint = txn.TrnType.String()
	c.Memo = memo
	return c, true
}

const (
	openTag  = "<STMTTRN>"
	closeTag = "</STMTTRN>"
)

// scanBlocks locates top-level STMTTRN blocks and extracts the six fields
// {type hint, posted date, amount, external id, name, memo} from each.
// Records missing a posted date, amount, or external id are discarded.
func scanBlocks(content string) []Candidate {
	upper := strings.ToUpper(content)
	out := []Candidate{}

	pos := 0
	for {
		i := strings.Index(upper[pos:], openTag)
		if i < 0 {
			break
		}
		start := pos + i + len(openTag)

		// A block ends at its close tag or, in sloppy SGML that omits close
		// tags, at the next open tag or end of input.
		end := len(content)
		next := start
		if j := strings.Index(upper[start:], closeTag); j >= 0 {
			end = start + j
			next = end + len(closeTag)
		} else if j := strings.Index(upper[start:], openTag); j >= 0 {
			end = start + j
			next = end
		} else {
			next = end
		}

		if c, ok := parseBlock(content[start:end]); ok {
			out = append(out, c)
		}
		pos = next
	}

	return out
}

// parseBlock extracts one candidate from a single STMTTRN block body.
func parseBlock(block string) (Candidate, bool) {
	posted := fieldValue(block, "DTPOSTED")
	rawAmount := fieldValue(block, "TRNAMT")
	externalID := fieldValue(block, "FITID")
	if posted == "" || rawAmount == "" || externalID == "" {
		return Candidate{}, false
	}

	date, ok := parsePostedDate(posted)
	if !ok {
		return Candidate{}, false
	}

	signed, err := parseAmount(rawAmount)
	if err != nil {
		return Candidate{}, false
	}

	name := fieldValue(block, "NAME")
	memo := fieldValue(block, "MEMO")
	description := name
	if description == "" {
		description = memo
	}

	c := newCandidate(signed, date, description, name, externalID)
	c.TypeHint = fieldValue(block, "TRNTYPE")
	c.Memo = memo
	return c, true
}

// fieldValue returns the trimmed value of <TAG> inside the block, handling
// both SGML (value terminated by newline or next tag) and XML (explicit close
// tag) forms. Returns "" if the tag is absent.
func fieldValue(block, tag string) string {
	marker := "<" + tag + ">"
	i := strings.Index(strings.ToUpper(block), marker)
	if i < 0 {
		return ""
	}
	rest := block[i+len(marker):]
	if j := strings.IndexAny(rest, "<\r\n"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

// parsePostedDate reads the fixed-width YYYYMMDD prefix. OFX timestamps may
// carry time, fractional seconds, and a timezone suffix; all of that is
// ignored for ledger purposes.
func parsePostedDate(s string) (time.Time, bool) {
	if len(s) < 8 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", s[:8])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// parseAmount parses a signed decimal amount, accepting a comma decimal
// separator from banks that emit locale-formatted numbers.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}
