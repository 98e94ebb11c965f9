// Package reconcile recomputes every balance from the transaction log and
// reports where the stored value disagrees. It never repairs anything.
package reconcile

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Mo-Nouir/database-tests/internal/core/domain"
	"github.com/Mo-Nouir/database-tests/internal/core/ledger"
	"github.com/Mo-Nouir/database-tests/internal/core/telemetry"
)

// Divergence is an account whose stored balance does not match
// opening balance + credits in - debits out.
type Divergence struct {
	AccountID       string          `json:"account_id"`
	Currency        domain.Currency `json:"currency"`
	StoredBalance   int64           `json:"stored_balance"`
	ComputedBalance int64           `json:"computed_balance"`
}

func (d Divergence) Delta() int64 {
	return d.StoredBalance - d.ComputedBalance
}

type Report struct {
	RanAt               time.Time    `json:"ran_at"`
	SnapshotAt          time.Time    `json:"snapshot_at"`
	CheckedAccounts     int          `json:"checked_accounts"`
	CheckedTransactions int          `json:"checked_transactions"`
	Divergences         []Divergence `json:"divergences"`
	// OrphanTransactions lists transaction ids naming an account that does not exist.
	OrphanTransactions []string `json:"orphan_transactions"`
}

func (r Report) Clean() bool {
	return len(r.Divergences) == 0 && len(r.OrphanTransactions) == 0
}

type Engine struct {
	store   ledger.Store
	log     *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

func New(store ledger.Store, log *slog.Logger, metrics *telemetry.Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: store, log: log, metrics: metrics, now: time.Now}
}

// Reconcile reads one snapshot and compares each stored balance against the
// balance implied by the transactions in it.
func (e *Engine) Reconcile(ctx context.Context) (Report, error) {
	report, err := e.reconcile(ctx)
	e.metrics.ObserveReconcile(len(report.Divergences), len(report.OrphanTransactions), err)
	if err != nil {
		e.log.Error("reconciliation failed", "error", err)
		return Report{}, err
	}

	if report.Clean() {
		e.log.Info("reconciliation clean",
			"accounts", report.CheckedAccounts,
			"transactions", report.CheckedTransactions,
		)
	} else {
		e.log.Warn("reconciliation found divergences",
			"divergent_accounts", len(report.Divergences),
			"orphan_transactions", len(report.OrphanTransactions),
		)
	}
	return report, nil
}

func (e *Engine) reconcile(ctx context.Context) (Report, error) {
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("snapshot: %w", err)
	}
	report := Compare(snap)
	report.RanAt = e.now().UTC()
	return report, nil
}

// Compare is the pure part of Reconcile.
func Compare(snap ledger.Snapshot) Report {
	computed := make(map[string]int64, len(snap.Accounts))
	for _, a := range snap.Accounts {
		computed[a.ID] = a.OpeningBalance
	}

	var orphans []string
	for _, tx := range snap.Transactions {
		_, fromKnown := computed[tx.FromAccount]
		_, toKnown := computed[tx.ToAccount]
		if !fromKnown || !toKnown {
			orphans = append(orphans, tx.ID)
		}
		if fromKnown {
			computed[tx.FromAccount] -= tx.Amount
		}
		if toKnown {
			computed[tx.ToAccount] += tx.CreditedAmount
		}
	}

	var divergences []Divergence
	for _, a := range snap.Accounts {
		if want := computed[a.ID]; want != a.Balance {
			divergences = append(divergences, Divergence{
				AccountID:       a.ID,
				Currency:        a.Currency,
				StoredBalance:   a.Balance,
				ComputedBalance: want,
			})
		}
	}
	slices.SortFunc(divergences, func(a, b Divergence) int { return cmp.Compare(a.AccountID, b.AccountID) })
	slices.Sort(orphans)

	if divergences == nil {
		divergences = []Divergence{}
	}
	if orphans == nil {
		orphans = []string{}
	}
	return Report{
		SnapshotAt:          snap.TakenAt,
		CheckedAccounts:     len(snap.Accounts),
		CheckedTransactions: len(snap.Transactions),
		Divergences:         divergences,
		OrphanTransactions:  slices.Compact(orphans),
	}
}
