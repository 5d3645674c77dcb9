package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledger/internal/audit"
	"github.com/rumor-ml/commons.systems/ledger/internal/config"
	"github.com/rumor-ml/commons.systems/ledger/internal/debt"
	"github.com/rumor-ml/commons.systems/ledger/internal/domain"
	"github.com/rumor-ml/commons.systems/ledger/internal/ingest"
	"github.com/rumor-ml/commons.systems/ledger/internal/output"
	"github.com/rumor-ml/commons.systems/ledger/internal/scanner"
	"github.com/rumor-ml/commons.systems/ledger/internal/statement"
	"github.com/rumor-ml/commons.systems/ledger/internal/store"
	firestorestore "github.com/rumor-ml/commons.systems/ledger/internal/store/firestore"
	sqlitestore "github.com/rumor-ml/commons.systems/ledger/internal/store/sqlite"
	"github.com/rumor-ml/commons.systems/ledger/internal/ui"
	"github.com/rumor-ml/commons.systems/ledger/internal/yield"
)

const version = "0.1.0"

func usage() {
	fmt.Fprint(os.Stderr, `ledger - Personal ledger reconciliation engine

Usage:
  ledger <command> [flags]

Commands:
  account    Create a ledger account
  import     Import statement files into an account
  enter      Record a manual ledger entry
  debt       Register a debt
  pay        Pay down a debt
  position   Open a yield-bearing investment position
  accrue     Post pending monthly yield for all positions
  balance    Show the derived balance of an account
  audit      Flag suspect entries in an account
  reclassify Correct a misclassified income entry to an expense
  adjust     Force an account balance to an observed target
  unadjust   Remove an account's adjustment marker
  export     Export an account snapshot as JSON
  version    Show version

Global flags (every command):
  -config    Path to YAML config file

Examples:
  # Import a statement download
  ledger import -account checking -file ~/Downloads/statement.qfx

  # Pay 600 off a debt
  ledger pay -debt 4f1c... -amount 600

  # Post yield for all complete months
  ledger accrue

`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "version" || cmd == "-version" || cmd == "--version" {
		fmt.Printf("ledger version %s\n", version)
		return
	}
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		usage()
		return
	}

	if err := run(cmd, args); err != nil {
		ui.Error(err.Error())
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	ctx := context.Background()

	switch cmd {
	case "account":
		return cmdAccount(ctx, args)
	case "import":
		return cmdImport(ctx, args)
	case "enter":
		return cmdEnter(ctx, args)
	case "debt":
		return cmdDebt(ctx, args)
	case "pay":
		return cmdPay(ctx, args)
	case "position":
		return cmdPosition(ctx, args)
	case "accrue":
		return cmdAccrue(ctx, args)
	case "balance":
		return cmdBalance(ctx, args)
	case "audit":
		return cmdAudit(ctx, args)
	case "reclassify":
		return cmdReclassify(ctx, args)
	case "adjust":
		return cmdAdjust(ctx, args)
	case "unadjust":
		return cmdUnadjust(ctx, args)
	case "export":
		return cmdExport(ctx, args)
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// newFlagSet creates a flag set with the shared -config flag wired in.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	return fs, configPath
}

// openStore loads configuration and opens the selected backend.
func openStore(ctx context.Context, configPath string) (*config.Config, store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Store.Backend {
	case "sqlite":
		s, err := sqlitestore.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return cfg, s, nil
	case "firestore":
		s, err := firestorestore.New(ctx, cfg.Store.ProjectID, cfg.Store.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return cfg, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// parseDate parses a YYYY-MM-DD flag value; empty means now.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}

// parseMoney parses a required decimal flag value.
func parseMoney(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("-%s is required", name)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid -%s value %q: %w", name, s, err)
	}
	return d, nil
}

func cmdAccount(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("account")
	id := fs.String("id", "", "Account id (required)")
	name := fs.String("name", "", "Account display name (required)")
	kind := fs.String("kind", "bank", "Account kind: bank, cash, credit, investment")
	fs.Parse(args)

	cfg, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	account, err := domain.NewAccount(*id, cfg.Owner.ID, *name, domain.AccountKind(*kind))
	if err != nil {
		return err
	}
	if err := s.CreateAccount(ctx, account); err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Created %s account %s (%s)", account.Kind, account.ID, account.Name))
	return nil
}

func cmdImport(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("import")
	accountID := fs.String("account", "", "Target account id (required with -file)")
	file := fs.String("file", "", "Statement file to import")
	dir := fs.String("dir", "", "Directory tree of statements ({institution}/{account}/file)")
	dryRun := fs.Bool("dry-run", false, "Parse and report without writing")
	fs.Parse(args)

	if (*file == "") == (*dir == "") {
		return fmt.Errorf("exactly one of -file or -dir is required")
	}

	_, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	reg := statement.NewRegistry()
	gate := ingest.NewGate(s)

	if *file != "" {
		if *accountID == "" {
			return fmt.Errorf("-account is required with -file")
		}
		return importFile(ctx, reg, gate, *file, *accountID, *dryRun)
	}

	ui.Header("Importing Statements")
	files, err := scanner.New(*dir).Scan()
	if err != nil {
		return err
	}
	ui.Info(fmt.Sprintf("Found %d statement files", len(files)))

	for _, f := range files {
		target := f.AccountHint
		if target == "" {
			ui.Warning(fmt.Sprintf("Skipping %s: no account directory in path", f.Path))
			continue
		}
		if err := importFile(ctx, reg, gate, f.Path, target, *dryRun); err != nil {
			ui.Warning(fmt.Sprintf("%s: %v", f.Path, err))
		}
	}
	return nil
}

// importFile parses one statement file and pushes its candidates through the
// ingestion gate.
func importFile(ctx context.Context, reg *statement.Registry, gate *ingest.Gate, path, accountID string, dryRun bool) error {
	p, err := reg.FindParser(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	candidates, err := p.Parse(ctx, f)
	if err != nil {
		return err
	}

	if dryRun {
		ui.Info(fmt.Sprintf("%s: %d candidates (%s parser, dry run)", path, len(candidates), p.Name()))
		return nil
	}

	results, err := gate.Import(ctx, accountID, candidates)
	if err != nil {
		return err
	}

	summary := ingest.Summarize(results)
	ui.Success(fmt.Sprintf("%s: %d imported, %d duplicates, %d failed",
		path, summary.Imported, summary.Duplicates, summary.Failed))
	for _, r := range results {
		if r.Status == ingest.StatusFailed {
			ui.Warning(fmt.Sprintf("  %s: %v", r.Candidate.ExternalID, r.Err))
		}
	}
	return nil
}

func cmdEnter(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("enter")
	accountID := fs.String("account", "", "Account id (required)")
	direction := fs.String("direction", "", "INCOME or EXPENSE (required)")
	amountStr := fs.String("amount", "", "Non-negative amount (required)")
	dateStr := fs.String("date", "", "Entry date YYYY-MM-DD (default today)")
	description := fs.String("description", "", "Entry description (required)")
	payer := fs.String("payer", "", "Counterparty name")
	fs.Parse(args)

	amount, err := parseMoney("amount", *amountStr)
	if err != nil {
		return err
	}
	date, err := parseDate(*dateStr)
	if err != nil {
		return err
	}

	_, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	gate := ingest.NewGate(s)
	txn, err := gate.Enter(ctx, *accountID, domain.Direction(*direction), amount, date, *description, *payer)
	if err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Recorded %s %s in %s (%s)", txn.Direction, txn.Amount, txn.AccountID, txn.ID))
	return nil
}

func cmdDebt(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("debt")
	accountID := fs.String("account", "", "Default payment account id (required)")
	description := fs.String("description", "", "What is owed (required)")
	totalStr := fs.String("total", "", "Total amount owed (required)")
	dueStr := fs.String("due", "", "Due date YYYY-MM-DD")
	fs.Parse(args)

	total, err := parseMoney("total", *totalStr)
	if err != nil {
		return err
	}
	var due time.Time
	if *dueStr != "" {
		if due, err = parseDate(*dueStr); err != nil {
			return err
		}
	}

	cfg, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := debt.NewProcessor(s).Create(ctx, cfg.Owner.ID, *accountID, *description, total, due)
	if err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Registered debt %s: %s for %s", d.ID, d.Description, d.TotalAmount))
	return nil
}

func cmdPay(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("pay")
	debtID := fs.String("debt", "", "Debt id (required)")
	amountStr := fs.String("amount", "", "Payment amount (required)")
	accountID := fs.String("account", "", "Source account (default: debt's account)")
	dateStr := fs.String("date", "", "Payment date YYYY-MM-DD (default today)")
	fs.Parse(args)

	amount, err := parseMoney("amount", *amountStr)
	if err != nil {
		return err
	}
	date, err := parseDate(*dateStr)
	if err != nil {
		return err
	}

	cfg, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	processor := debt.NewProcessor(s)
	entry, err := processor.Pay(ctx, *debtID, cfg.Owner.ID, amount, *accountID, date)
	if err != nil {
		if errors.Is(err, domain.ErrOverpayment) {
			return fmt.Errorf("payment rejected: %w", err)
		}
		return err
	}

	d, err := processor.Get(ctx, *debtID, cfg.Owner.ID)
	if err != nil {
		return err
	}
	ui.Success(fmt.Sprintf("Paid %s (entry %s); debt is %s, %s remaining",
		entry.Amount, entry.ID, d.Status(), d.Remaining()))
	return nil
}

func cmdPosition(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("position")
	accountID := fs.String("account", "", "Holding account id (required)")
	principalStr := fs.String("principal", "", "Invested principal (required)")
	rateStr := fs.String("rate", "", "Annual yield rate, e.g. 0.045 (required)")
	openedStr := fs.String("opened", "", "Open date YYYY-MM-DD (default today)")
	fs.Parse(args)

	principal, err := parseMoney("principal", *principalStr)
	if err != nil {
		return err
	}
	rate, err := parseMoney("rate", *rateStr)
	if err != nil {
		return err
	}
	opened, err := parseDate(*openedStr)
	if err != nil {
		return err
	}

	cfg, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	position, err := yield.NewProcessor(s).OpenPosition(ctx, cfg.Owner.ID, *accountID, principal, rate, opened)
	if err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Opened position %s: %s at %s p.a.", position.ID, position.Principal, position.AnnualRate))
	return nil
}

func cmdAccrue(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("accrue")
	asOfStr := fs.String("as-of", "", "Accrue through the month before this date (default today)")
	fs.Parse(args)

	asOf, err := parseDate(*asOfStr)
	if err != nil {
		return err
	}

	cfg, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	results, err := yield.NewProcessor(s).Accrue(ctx, cfg.Owner.ID, asOf)
	if err != nil {
		return err
	}

	posted, skipped := 0, 0
	for _, r := range results {
		switch r.Status {
		case yield.StatusPosted:
			posted++
			ui.Info(fmt.Sprintf("%s %s: +%s", r.PositionID, r.Period, r.Entry.Amount))
		case yield.StatusSkipped:
			skipped++
		case yield.StatusFailed:
			ui.Warning(fmt.Sprintf("%s %s: %v", r.PositionID, r.Period, r.Err))
		}
	}
	ui.Success(fmt.Sprintf("Accrual complete: %d posted, %d already accrued", posted, skipped))
	return nil
}

func cmdBalance(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("balance")
	accountID := fs.String("account", "", "Account id (required)")
	fs.Parse(args)

	_, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	balance, err := audit.NewAuditor(s).Balance(ctx, *accountID)
	if err != nil {
		return err
	}

	fmt.Printf("%s\t%s\n", *accountID, balance)
	return nil
}

func cmdAudit(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("audit")
	accountID := fs.String("account", "", "Account id (required)")
	fs.Parse(args)

	cfg, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	anomalies, err := audit.NewAuditor(s).FindAnomalies(ctx, *accountID, cfg.OwnerNames())
	if err != nil {
		return err
	}

	if len(anomalies) == 0 {
		ui.Success("No anomalies found")
		return nil
	}
	for _, a := range anomalies {
		ui.Warning(fmt.Sprintf("%s %s %s %s: %s",
			a.Transaction.ID, a.Transaction.Date.Format("2006-01-02"),
			a.Transaction.Direction, a.Transaction.Amount, a.Reason))
	}
	ui.Info(fmt.Sprintf("%d suspect entries; use 'ledger reclassify -id <id>' to correct", len(anomalies)))
	return nil
}

func cmdReclassify(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("reclassify")
	id := fs.String("id", "", "Transaction id (required)")
	fs.Parse(args)

	_, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	txn, err := audit.NewAuditor(s).Reclassify(ctx, *id)
	if err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Reclassified %s to %s", txn.ID, txn.Direction))
	return nil
}

func cmdAdjust(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("adjust")
	accountID := fs.String("account", "", "Account id (required)")
	targetStr := fs.String("target", "", "Observed real-world balance (required)")
	fs.Parse(args)

	target, err := parseMoney("target", *targetStr)
	if err != nil {
		return err
	}

	_, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	entry, err := audit.NewAuditor(s).InsertAdjustment(ctx, *accountID, target)
	if err != nil {
		if errors.Is(err, domain.ErrAdjustmentExists) {
			return fmt.Errorf("adjustment rejected: %w (remove it first with 'ledger unadjust')", err)
		}
		return err
	}

	ui.Success(fmt.Sprintf("Adjusted %s by %s %s to reach %s", *accountID, entry.Direction, entry.Amount, target))
	return nil
}

func cmdExport(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("export")
	accountID := fs.String("account", "", "Account id (required)")
	outFile := fs.String("output", "", "Output JSON file (default: stdout)")
	fs.Parse(args)

	_, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	account, err := s.GetAccount(ctx, *accountID)
	if err != nil {
		return err
	}
	txns, err := s.ListTransactions(ctx, *accountID)
	if err != nil {
		return err
	}

	snap, err := output.NewSnapshot(account, txns)
	if err != nil {
		return err
	}
	if err := output.WriteSnapshotToFile(snap, *outFile); err != nil {
		return err
	}
	if *outFile != "" {
		ui.Success(fmt.Sprintf("Exported %d entries to %s", len(txns), *outFile))
	}
	return nil
}

func cmdUnadjust(ctx context.Context, args []string) error {
	fs, configPath := newFlagSet("unadjust")
	accountID := fs.String("account", "", "Account id (required)")
	fs.Parse(args)

	_, s, err := openStore(ctx, *configPath)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := audit.NewAuditor(s).RemoveAdjustment(ctx, *accountID); err != nil {
		return err
	}

	ui.Success(fmt.Sprintf("Removed adjustment marker from %s", *accountID))
	return nil
}
