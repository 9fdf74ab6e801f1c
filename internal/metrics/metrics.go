// Package metrics instruments passes, fusion sessions, health alerts,
// validation reports and the HTTP surface with Prometheus collectors.
//
// Each Metrics owns its own registry so several engines (and tests) can
// coexist in one process. All methods are safe on a nil receiver.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/codex/internal/ir"
)

const namespace = "codex"

// Pass outcomes used as label values.
const (
	OutcomeComplete  = "complete"
	OutcomePartial   = "partial"
	OutcomeCancelled = "cancelled"
)

// Metrics holds the collectors for one engine.
type Metrics struct {
	reg *prometheus.Registry

	passes          *prometheus.CounterVec
	passDuration    prometheus.Histogram
	pairsScored     prometheus.Counter
	entityFailures  prometheus.Counter
	globalResonance prometheus.Gauge
	sessions        *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	overallHealth   prometheus.Gauge
	reports         *prometheus.CounterVec
	violations      *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates collectors registered on a fresh registry. Go runtime and
// process collectors are included when withRuntime is set.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "passes_total",
				Help:      "Global synchronization passes by outcome.",
			},
			[]string{"outcome"},
		),
		passDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "pass_duration_seconds",
				Help:      "Global pass duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		pairsScored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "pairs_scored_total",
				Help:      "Entity pairs scored across all passes.",
			},
		),
		entityFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "entity_failures_total",
				Help:      "Entities that failed synchronization and were queued for retry.",
			},
		),
		globalResonance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "global_resonance",
				Help:      "Mean resonance of the last completed pass.",
			},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fusion",
				Name:      "session_transitions_total",
				Help:      "Fusion session transitions by resulting state.",
			},
			[]string{"state", "fusion_type"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "alerts_total",
				Help:      "Health alerts raised by severity.",
			},
			[]string{"severity"},
		),
		overallHealth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "health",
				Name:      "overall",
				Help:      "Mean health across all entities.",
			},
		),
		reports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "integrity",
				Name:      "reports_total",
				Help:      "Validation reports by mode and result.",
			},
			[]string{"mode", "pass"},
		),
		violations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "integrity",
				Name:      "violations_total",
				Help:      "Integrity violations by kind.",
			},
			[]string{"mode", "kind"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	m.reg.MustRegister(
		m.passes, m.passDuration, m.pairsScored, m.entityFailures, m.globalResonance,
		m.sessions, m.alerts, m.overallHealth, m.reports, m.violations,
		m.httpRequests, m.httpDuration,
	)
	if withRuntime {
		m.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObservePass records one pass summary.
func (m *Metrics) ObservePass(s ir.PassSummary) {
	if m == nil {
		return
	}
	outcome := OutcomeComplete
	switch {
	case s.Cancelled:
		outcome = OutcomeCancelled
	case s.Partial:
		outcome = OutcomePartial
	}
	m.passes.WithLabelValues(outcome).Inc()
	m.passDuration.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	m.pairsScored.Add(float64(s.PairsScored))
	m.entityFailures.Add(float64(len(s.Failed)))
	if outcome == OutcomeComplete {
		m.globalResonance.Set(s.GlobalResonance)
	}
}

// ObserveSession records a committed session transition.
func (m *Metrics) ObserveSession(s ir.FusionSession) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(string(s.State), s.FusionType).Inc()
}

// ObserveAlert records a raised alert.
func (m *Metrics) ObserveAlert(a ir.Alert) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(string(a.Severity)).Inc()
}

// SetOverallHealth updates the overall health gauge.
func (m *Metrics) SetOverallHealth(v float64) {
	if m == nil {
		return
	}
	m.overallHealth.Set(v)
}

// ObserveReport records a validation report and each of its violations.
func (m *Metrics) ObserveReport(r ir.ValidationReport) {
	if m == nil {
		return
	}
	mode := string(r.Mode)
	m.reports.WithLabelValues(mode, strconv.FormatBool(r.Pass)).Inc()
	for _, v := range r.Violations {
		m.violations.WithLabelValues(mode, string(v.Kind)).Inc()
	}
}

// RecordHTTPRequest records one served request. path should be the route
// template, not the raw URL, to bound label cardinality.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
