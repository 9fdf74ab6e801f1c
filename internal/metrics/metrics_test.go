package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codex/internal/ir"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestObservePass_Outcomes(t *testing.T) {
	m := New(false)

	m.ObservePass(ir.PassSummary{StartedAt: t0, FinishedAt: t0.Add(time.Second), PairsScored: 10, GlobalResonance: 0.6})
	m.ObservePass(ir.PassSummary{StartedAt: t0, FinishedAt: t0, Partial: true, PairsScored: 3, Failed: []string{"node_1"}, GlobalResonance: 0.1})
	m.ObservePass(ir.PassSummary{StartedAt: t0, FinishedAt: t0, Cancelled: true, Partial: true})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(OutcomeComplete)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(OutcomePartial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(OutcomeCancelled)))
	assert.Equal(t, 13.0, testutil.ToFloat64(m.pairsScored))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.entityFailures))
	assert.Equal(t, 0.6, testutil.ToFloat64(m.globalResonance), "partial passes do not move the gauge")
}

func TestObserveSessionAlertReport(t *testing.T) {
	m := New(false)

	m.ObserveSession(ir.FusionSession{State: ir.StateProposed, FusionType: "harmonic"})
	m.ObserveSession(ir.FusionSession{State: ir.StateResolved, FusionType: "harmonic"})
	m.ObserveAlert(ir.Alert{Severity: ir.SeverityCritical})
	m.ObserveAlert(ir.Alert{Severity: ir.SeverityCritical})
	m.SetOverallHealth(0.42)
	m.ObserveReport(ir.ValidationReport{
		Mode: ir.ValidationSoft,
		Pass: true,
		Violations: []ir.Violation{
			{Kind: ir.ViolationMappingMissing},
			{Kind: ir.ViolationCountDiscrepancy},
		},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions.WithLabelValues("resolved", "harmonic")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.alerts.WithLabelValues("critical")))
	assert.Equal(t, 0.42, testutil.ToFloat64(m.overallHealth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reports.WithLabelValues("soft", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.violations.WithLabelValues("soft", "mapping_missing")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New(false)
	m.RecordHTTPRequest(http.MethodGet, "/nodes/:id", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `codex_http_requests_total{method="GET",path="/nodes/:id",status="200"} 1`))
	assert.Contains(t, body, "codex_http_request_duration_seconds")
}

func TestNilMetrics_IsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePass(ir.PassSummary{})
		m.ObserveSession(ir.FusionSession{})
		m.ObserveAlert(ir.Alert{})
		m.ObserveReport(ir.ValidationReport{})
		m.SetOverallHealth(1)
		m.RecordHTTPRequest("GET", "/", 200, 0)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNew_WithRuntimeCollectors(t *testing.T) {
	m := New(true)
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
}
