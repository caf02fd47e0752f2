// Package metrics provides Prometheus metrics for the registry exchange jobs.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MessagesBuilt       *prometheus.CounterVec
	Submissions         *prometheus.CounterVec
	TransportFailures   prometheus.Counter
	SubmitDuration      prometheus.Histogram
	LedgerWrites        *prometheus.CounterVec
	LedgerConflicts     prometheus.Counter
	ResultFiles         *prometheus.CounterVec
	PatientMatches      *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all metrics on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iis_messages_built_total",
			Help: "HL7 messages built, by message type",
		}, []string{"type"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iis_submissions_total",
			Help: "Registry submissions, by message type and ack code",
		}, []string{"type", "ack"}),
		TransportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iis_transport_failures_total",
			Help: "Submissions that failed before a response was received",
		}),
		SubmitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "iis_submit_duration_seconds",
			Help:    "SOAP submission round trip duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		LedgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iis_ledger_writes_total",
			Help: "hl7log rows written, by message type and result",
		}, []string{"type", "result"}),
		LedgerConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "iis_ledger_conflicts_total",
			Help: "Ledger inserts suppressed by the dedup key",
		}),
		ResultFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iis_result_files_total",
			Help: "Result files archived, by partner",
		}, []string{"partner"}),
		PatientMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "iis_patient_matches_total",
			Help: "Result file patient matches, by result code",
		}, []string{"result"}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "iis_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"name"}),
	}

	m.registry.MustRegister(
		m.MessagesBuilt,
		m.Submissions,
		m.TransportFailures,
		m.SubmitDuration,
		m.LedgerWrites,
		m.LedgerConflicts,
		m.ResultFiles,
		m.PatientMatches,
		m.CircuitBreakerState,
	)

	return m
}

// Registry exposes the underlying registry for tests and custom handlers
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MessageBuilt counts a built message
func (m *Metrics) MessageBuilt(msgType string) {
	if m == nil {
		return
	}
	m.MessagesBuilt.WithLabelValues(msgType).Inc()
}

// Submitted records a completed submission and its duration
func (m *Metrics) Submitted(msgType, ackCode string, d time.Duration) {
	if m == nil {
		return
	}
	m.Submissions.WithLabelValues(msgType, ackCode).Inc()
	m.SubmitDuration.Observe(d.Seconds())
}

// TransportFailed counts a failed submission
func (m *Metrics) TransportFailed() {
	if m == nil {
		return
	}
	m.TransportFailures.Inc()
}

// LedgerWritten counts a ledger row
func (m *Metrics) LedgerWritten(msgType, result string) {
	if m == nil {
		return
	}
	m.LedgerWrites.WithLabelValues(msgType, result).Inc()
}

// LedgerConflict counts a suppressed duplicate insert
func (m *Metrics) LedgerConflict() {
	if m == nil {
		return
	}
	m.LedgerConflicts.Inc()
}

// ResultFile counts an archived result file
func (m *Metrics) ResultFile(partner string) {
	if m == nil {
		return
	}
	m.ResultFiles.WithLabelValues(partner).Inc()
}

// PatientMatch counts a reconciled PID
func (m *Metrics) PatientMatch(result string) {
	if m == nil {
		return
	}
	m.PatientMatches.WithLabelValues(result).Inc()
}

// BreakerState sets the gauge for a named breaker
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Push sends the registry to a Prometheus pushgateway under the given job name.
// An empty gateway URL is a no-op.
func (m *Metrics) Push(ctx context.Context, gateway, job string) error {
	if m == nil || gateway == "" {
		return nil
	}
	if err := push.New(gateway, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gateway, err)
	}
	return nil
}
