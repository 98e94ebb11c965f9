// Package migration checks a migrated transaction set against the legacy
// system it was copied from. Findings are report fields; nothing is repaired.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
)

// LegacySource yields the transaction ids of the legacy dataset, one entry
// per legacy row.
type LegacySource interface {
	TransactionIDs(ctx context.Context) ([]string, error)
}

// Target is the migrated side. MigratedTransactions returns one entry per
// stored row, so repeated ids stay visible.
type Target interface {
	MigratedTransactions(ctx context.Context) ([]domain.Transaction, error)
	Accounts(ctx context.Context) ([]domain.Account, error)
}

type Report struct {
	RanAt                   time.Time `json:"ran_at"`
	LegacyCount             int       `json:"legacy_count"`
	MigratedCount           int       `json:"migrated_count"`
	CountMismatch           bool      `json:"count_mismatch"`
	DuplicateTransactionIDs []string  `json:"duplicate_transaction_ids"`
	OrphanTransactions      []string  `json:"orphan_transactions"`
	MissingExchangeRate     []string  `json:"missing_exchange_rate"`
	MissingFromLedger       []string  `json:"missing_from_ledger"`
}

// Passed reports whether every check came back empty.
func (r Report) Passed() bool {
	return !r.CountMismatch &&
		len(r.DuplicateTransactionIDs) == 0 &&
		len(r.OrphanTransactions) == 0 &&
		len(r.MissingExchangeRate) == 0 &&
		len(r.MissingFromLedger) == 0
}

type Validator struct {
	target Target
	log    *slog.Logger
	now    func() time.Time
}

func NewValidator(target Target, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{target: target, log: log, now: time.Now}
}

// Validate reads the legacy ids, the migrated rows and the accounts
// concurrently and compares them.
func (v *Validator) Validate(ctx context.Context, legacy LegacySource) (Report, error) {
	var (
		legacyIDs []string
		migrated  []domain.Transaction
		accounts  []domain.Account
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		legacyIDs, err = legacy.TransactionIDs(gctx)
		if err != nil {
			return fmt.Errorf("read legacy ids: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		migrated, err = v.target.MigratedTransactions(gctx)
		if err != nil {
			return fmt.Errorf("read migrated transactions: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		accounts, err = v.target.Accounts(gctx)
		if err != nil {
			return fmt.Errorf("read accounts: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		v.log.Error("migration validation failed", "error", err)
		return Report{}, err
	}

	report := Compare(legacyIDs, migrated, accounts)
	report.RanAt = v.now().UTC()

	if report.Passed() {
		v.log.Info("migration validation passed", "rows", report.MigratedCount)
	} else {
		v.log.Warn("migration validation failed",
			"legacy_count", report.LegacyCount,
			"migrated_count", report.MigratedCount,
			"duplicates", len(report.DuplicateTransactionIDs),
			"orphans", len(report.OrphanTransactions),
			"missing_rate", len(report.MissingExchangeRate),
			"missing_from_ledger", len(report.MissingFromLedger),
		)
	}
	return report, nil
}

// Compare is the pure part of Validate.
func Compare(legacyIDs []string, migrated []domain.Transaction, accounts []domain.Account) Report {
	byID := make(map[string]domain.Account, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
	}

	seen := make(map[string]int, len(migrated))
	var duplicates, orphans, missingRate []string
	for _, tx := range migrated {
		seen[tx.ID]++
		if seen[tx.ID] == 2 {
			duplicates = append(duplicates, tx.ID)
		}

		from, fromOK := byID[tx.FromAccount]
		to, toOK := byID[tx.ToAccount]
		if !fromOK || !toOK {
			orphans = append(orphans, tx.ID)
		}
		if tx.ExchangeRate == nil && needsRate(tx, from, fromOK, to, toOK) {
			missingRate = append(missingRate, tx.ID)
		}
	}

	var missing []string
	for _, id := range legacyIDs {
		if seen[id] == 0 {
			missing = append(missing, id)
		}
	}

	return Report{
		LegacyCount:             len(legacyIDs),
		MigratedCount:           len(migrated),
		CountMismatch:           len(legacyIDs) != len(migrated),
		DuplicateTransactionIDs: sortedUnique(duplicates),
		OrphanTransactions:      sortedUnique(orphans),
		MissingExchangeRate:     sortedUnique(missingRate),
		MissingFromLedger:       sortedUnique(missing),
	}
}

// needsRate reports whether a row crossed currencies, judged against
// whichever of its accounts are known.
func needsRate(tx domain.Transaction, from domain.Account, fromOK bool, to domain.Account, toOK bool) bool {
	if fromOK && tx.Currency != from.Currency {
		return true
	}
	return fromOK && toOK && from.Currency != to.Currency
}

func sortedUnique(ids []string) []string {
	if len(ids) == 0 {
		return []string{}
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
