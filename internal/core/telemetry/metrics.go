// Package telemetry holds the Prometheus collectors and tracing setup shared by
// the transfer engine, the reconciliation worker and the HTTP layer.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const namespace = "ledger"

// TracerName is the instrumentation scope used for every span this module emits.
const TracerName = "github.com/Mo-Nouir/database-tests"

type Metrics struct {
	transfersTotal      *prometheus.CounterVec
	transferDuration    *prometheus.HistogramVec
	reconcileRuns       *prometheus.CounterVec
	divergentAccounts   prometheus.Gauge
	orphanTransactions  prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated from the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transfersTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfers processed, by outcome code.",
		}, []string{"outcome"}),
		transferDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_duration_seconds",
			Help:      "Transfer latency in seconds including lock wait.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"outcome"}),
		reconcileRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_runs_total",
			Help:      "Reconciliation runs, by result.",
		}, []string{"result"}),
		divergentAccounts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconciliation_divergent_accounts",
			Help:      "Accounts whose stored balance disagreed with the ledger on the last run.",
		}),
		orphanTransactions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconciliation_orphan_transactions",
			Help:      "Transactions referencing unknown accounts on the last run.",
		}),
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
	}
}

// ObserveTransfer is safe to call on a nil *Metrics.
func (m *Metrics) ObserveTransfer(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(outcome).Inc()
	m.transferDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveReconcile(divergent, orphans int, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.reconcileRuns.WithLabelValues("error").Inc()
		return
	case divergent > 0 || orphans > 0:
		m.reconcileRuns.WithLabelValues("divergent").Inc()
	default:
		m.reconcileRuns.WithLabelValues("clean").Inc()
	}
	m.divergentAccounts.Set(float64(divergent))
	m.orphanTransactions.Set(float64(orphans))
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// NewTracerProvider builds an always-sampling provider tagged with the service
// name and environment. Exporters are attached with opts.
func NewTracerProvider(service, env string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(
		semconv.ServiceName(service),
		semconv.DeploymentEnvironment(env),
	)

	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}, opts...)
	return sdktrace.NewTracerProvider(opts...)
}
