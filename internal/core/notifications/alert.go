package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindReconciliationDivergence Kind = "reconciliation.divergence"
	KindMigrationFailed          Kind = "migration.failed"
)

// Alert is an operator notification. Details carries the full report.
type Alert struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	RaisedAt time.Time `json:"raised_at"`
	Summary  string    `json:"summary"`
	Details  any       `json:"details,omitempty"`
}

func NewAlert(kind Kind, summary string, details any) Alert {
	return Alert{
		ID:       uuid.NewString(),
		Kind:     kind,
		RaisedAt: time.Now().UTC(),
		Summary:  summary,
		Details:  details,
	}
}

// Sink delivers alerts somewhere an operator will see them.
type Sink interface {
	Send(ctx context.Context, alert Alert) error
}

// Fanout sends every alert to each sink, continuing past failures.
type Fanout []Sink

func (f Fanout) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, s := range f {
		if err := s.Send(ctx, alert); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// LogSink writes alerts to the default slog logger.
type LogSink struct{}

func (LogSink) Send(_ context.Context, alert Alert) error {
	slog.Warn("🚨 operator alert", "alert_id", alert.ID, "kind", alert.Kind, "summary", alert.Summary)
	return nil
}
