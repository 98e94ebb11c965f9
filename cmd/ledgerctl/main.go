package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Mo-Nouir/database-tests/internal/app"
	"github.com/Mo-Nouir/database-tests/internal/core/config"
	"github.com/Mo-Nouir/database-tests/internal/core/migration"
	"github.com/Mo-Nouir/database-tests/internal/core/notifications"
	"github.com/Mo-Nouir/database-tests/internal/core/reconcile"
	"github.com/Mo-Nouir/database-tests/internal/core/security"
)

const usage = `ledgerctl - operator commands for the ledger

Usage:
  ledgerctl <command> [options]

Commands:
  reconcile            Recompute every balance from the transaction log
  validate-migration   Compare the migrated ledger against the legacy dataset
  gen-token            Print a new operator token and its hash

Both checks print a JSON report and exit 1 when they find anything.
Configuration comes from the environment or a .env file.

Examples:
  ledgerctl reconcile --timeout=2m
  ledgerctl validate-migration --csv=legacy_export.csv --alert
  LEGACY_DATABASE_URL=postgres://... ledgerctl validate-migration
`

const (
	exitFindings = 1
	exitError    = 2
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(exitError)
	}

	switch os.Args[1] {
	case "reconcile":
		os.Exit(runReconcile(os.Args[2:]))
	case "validate-migration":
		os.Exit(runValidateMigration(os.Args[2:]))
	case "gen-token":
		os.Exit(runGenToken())
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		fmt.Print(usage)
		os.Exit(exitError)
	}
}

func runReconcile(args []string) int {
	fs := flag.NewFlagSet("reconcile", flag.ExitOnError)
	timeout := fs.Duration("timeout", 5*time.Minute, "Abort after this long")
	alert := fs.Bool("alert", false, "Send divergences to the configured alert sinks")
	fs.Parse(args)

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitError
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		slog.Error("open store", "error", err)
		return exitError
	}
	defer backend.Close()

	report, err := reconcile.New(backend.Store, slog.Default(), nil).Reconcile(ctx)
	if err != nil {
		slog.Error("reconciliation failed", "error", err)
		return exitError
	}
	if err := printJSON(report); err != nil {
		return exitError
	}
	if report.Clean() {
		return 0
	}

	if *alert {
		raise(ctx, cfg, notifications.NewAlert(notifications.KindReconciliationDivergence,
			fmt.Sprintf("%d divergent accounts, %d orphan transactions", len(report.Divergences), len(report.OrphanTransactions)),
			report))
	}
	return exitFindings
}

func runValidateMigration(args []string) int {
	fs := flag.NewFlagSet("validate-migration", flag.ExitOnError)
	csvPath := fs.String("csv", "", "Legacy CSV export (overrides LEGACY_CSV_PATH)")
	legacyURL := fs.String("legacy-url", "", "Legacy PostgreSQL DSN (overrides LEGACY_DATABASE_URL)")
	table := fs.String("table", "", "Migrated table to check (overrides MIGRATION_TARGET_TABLE)")
	timeout := fs.Duration("timeout", 10*time.Minute, "Abort after this long")
	alert := fs.Bool("alert", false, "Send a failed report to the configured alert sinks")
	fs.Parse(args)

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		return exitError
	}
	if *csvPath != "" {
		cfg.LegacyCSVPath = *csvPath
	}
	if *legacyURL != "" {
		cfg.LegacyDatabaseURL = *legacyURL
	}
	if *table != "" {
		cfg.MigrationTargetTable = *table
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		slog.Error("open store", "error", err)
		return exitError
	}
	defer backend.Close()

	src, closeSrc, err := app.OpenLegacy(ctx, cfg)
	if err != nil {
		slog.Error("open legacy source", "error", err)
		return exitError
	}
	defer closeSrc()

	report, err := migration.NewValidator(backend.Target, slog.Default()).Validate(ctx, src)
	if err != nil {
		slog.Error("validation failed", "error", err)
		return exitError
	}
	if err := printJSON(report); err != nil {
		return exitError
	}
	if report.Passed() {
		return 0
	}

	if *alert {
		raise(ctx, cfg, notifications.NewAlert(notifications.KindMigrationFailed,
			fmt.Sprintf("legacy %d rows, migrated %d rows, %d duplicates, %d missing",
				report.LegacyCount, report.MigratedCount, len(report.DuplicateTransactionIDs), len(report.MissingFromLedger)),
			report))
	}
	return exitFindings
}

func runGenToken() int {
	token, hash, err := security.GenerateToken()
	if err != nil {
		slog.Error("generate token", "error", err)
		return exitError
	}
	fmt.Printf("OPERATOR_TOKEN=%s\n", token)
	fmt.Printf("# sha256: %s\n", hash)
	fmt.Println("# Save this now! It is not stored anywhere else.")
	return 0
}

func raise(ctx context.Context, cfg *config.Config, alert notifications.Alert) {
	sink, closeSink := app.AlertSinks(cfg)
	defer closeSink()
	if err := sink.Send(ctx, alert); err != nil {
		slog.Error("alert delivery failed", "alert_id", alert.ID, "error", err)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("write report", "error", err)
		return err
	}
	return nil
}
