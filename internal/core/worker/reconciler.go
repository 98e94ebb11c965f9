package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mo-Nouir/database-tests/internal/core/notifications"
	"github.com/Mo-Nouir/database-tests/internal/core/reconcile"
)

type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.Report, error)
}

// ReconcileWorker runs reconciliation on a fixed interval and raises an
// alert for every report that is not clean.
type ReconcileWorker struct {
	reconciler Reconciler
	sink       notifications.Sink
	interval   time.Duration
	log        *slog.Logger
}

func NewReconcileWorker(r Reconciler, sink notifications.Sink, interval time.Duration, log *slog.Logger) *ReconcileWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ReconcileWorker{reconciler: r, sink: sink, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. A failed run is logged and retried on
// the next tick.
func (w *ReconcileWorker) Run(ctx context.Context) {
	w.log.Info("👷 reconcile worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("reconcile worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
				w.log.Error("reconcile run failed", "error", err)
			}
		}
	}
}

func (w *ReconcileWorker) RunOnce(ctx context.Context) (reconcile.Report, error) {
	report, err := w.reconciler.Reconcile(ctx)
	if err != nil {
		return reconcile.Report{}, err
	}
	if report.Clean() || w.sink == nil {
		return report, nil
	}

	alert := notifications.NewAlert(
		notifications.KindReconciliationDivergence,
		fmt.Sprintf("%d divergent accounts, %d orphan transactions", len(report.Divergences), len(report.OrphanTransactions)),
		report,
	)
	if err := w.sink.Send(ctx, alert); err != nil {
		return report, fmt.Errorf("send alert %s: %w", alert.ID, err)
	}
	w.log.Info("divergence alert sent", "alert_id", alert.ID)
	return report, nil
}
