package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mo-Nouir/database-tests/internal/core/notifications"
	"github.com/Mo-Nouir/database-tests/internal/core/reconcile"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubReconciler struct {
	mu     sync.Mutex
	calls  int
	report reconcile.Report
	err    error
}

func (s *stubReconciler) Reconcile(context.Context) (reconcile.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.report, s.err
}

func (s *stubReconciler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type captureSink struct {
	mu     sync.Mutex
	alerts []notifications.Alert
	err    error
}

func (c *captureSink) Send(_ context.Context, a notifications.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.err
}

func TestRunOnce_CleanReportSendsNothing(t *testing.T) {
	sink := &captureSink{}
	w := NewReconcileWorker(&stubReconciler{report: reconcile.Report{CheckedAccounts: 3}}, sink, time.Minute, discard)

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Clean())
	assert.Empty(t, sink.alerts)
}

func TestRunOnce_DivergenceRaisesAlert(t *testing.T) {
	dirty := reconcile.Report{
		Divergences:        []reconcile.Divergence{{AccountID: "ACC100", StoredBalance: 700, ComputedBalance: 600}},
		OrphanTransactions: []string{"T9"},
	}
	sink := &captureSink{}
	w := NewReconcileWorker(&stubReconciler{report: dirty}, sink, time.Minute, discard)

	_, err := w.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.alerts, 1)
	got := sink.alerts[0]
	assert.Equal(t, notifications.KindReconciliationDivergence, got.Kind)
	assert.Equal(t, "1 divergent accounts, 1 orphan transactions", got.Summary)
	assert.Equal(t, dirty, got.Details)
}

func TestRunOnce_Errors(t *testing.T) {
	boom := errors.New("snapshot failed")
	w := NewReconcileWorker(&stubReconciler{err: boom}, &captureSink{}, time.Minute, discard)
	_, err := w.RunOnce(context.Background())
	assert.ErrorIs(t, err, boom)

	down := errors.New("webhook down")
	dirty := reconcile.Report{OrphanTransactions: []string{"T1"}}
	w = NewReconcileWorker(&stubReconciler{report: dirty}, &captureSink{err: down}, time.Minute, discard)
	report, err := w.RunOnce(context.Background())
	assert.ErrorIs(t, err, down)
	assert.Equal(t, dirty, report, "the report is still returned when alerting fails")
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	r := &stubReconciler{}
	w := NewReconcileWorker(r, nil, 5*time.Millisecond, discard)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return r.Calls() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}
