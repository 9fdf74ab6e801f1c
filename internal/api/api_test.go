package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codex/internal/config"
	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/ir"
	"github.com/roach88/codex/internal/metrics"
	"github.com/roach88/codex/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	cfg := config.MustDefault()
	arts, err := engine.GenerateArtifacts(cfg)
	require.NoError(t, err)

	e, err := engine.New(context.Background(), cfg,
		engine.WithClock(testutil.NewFakeClock(testutil.Epoch)),
		engine.WithSessionIDs(testutil.NewSequenceIDGenerator("session")),
		engine.WithArtifacts(arts),
		engine.WithMetrics(metrics.New(false)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { e.Dispose() })
	return New(e), e
}

func do(t *testing.T, s *Server, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestGetNode(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/nodes/node_12", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 12, decode[ir.LatticeNode](t, w).ID)

	w = do(t, s, http.MethodGet, "/nodes/12", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/nodes/node_0", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, w).Error.Code)
}

func TestGetCardAndEntity(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/cards/card_0_fool", nil)
	require.Equal(t, http.StatusOK, w.Code)
	card := decode[ir.ArcanaCard](t, w)
	assert.Equal(t, "card_0_fool", card.ID)
	assert.NotEmpty(t, card.MirroredNodeIDs)

	w = do(t, s, http.MethodGet, "/entities/card_0_fool", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[ir.EntityView](t, w)
	assert.Equal(t, ir.KindCard, view.Kind)
	assert.NotEmpty(t, view.Related)

	w = do(t, s, http.MethodGet, "/entities/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchCards(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/cards?suit=cups&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Items      []ir.ArcanaCard `json:"items"`
		TotalCount int             `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, 14, res.TotalCount)
	assert.Len(t, res.Items, 5)

	w = do(t, s, http.MethodGet, "/cards?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decode[errorBody](t, w).Error.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s, e := newTestServer(t)

	w := do(t, s, http.MethodPost, "/sessions", createSessionRequest{
		ParticipantIDs: []string{"node_1", "card_0_fool"},
		FusionType:     "harmonic",
	}, ActorHeader, "operator")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sess := decode[ir.FusionSession](t, w)
	assert.Equal(t, "session-1", sess.ID)
	assert.Equal(t, ir.StateProposed, sess.State)

	w = do(t, s, http.MethodPost, "/sessions/session-1/consent", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, ir.StateActive, decode[ir.FusionSession](t, w).State)

	w = do(t, s, http.MethodPost, "/sessions/session-1/resolve", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resolved := decode[ir.FusionSession](t, w)
	assert.Equal(t, ir.StateResolved, resolved.State)
	require.NotNil(t, resolved.Outcome)

	w = do(t, s, http.MethodPost, "/sessions/session-1/abort", abortRequest{Reason: "late"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE_TRANSITION", decode[errorBody](t, w).Error.Code)

	w = do(t, s, http.MethodGet, "/sessions/session-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ir.StateResolved, decode[ir.FusionSession](t, w).State)

	w = do(t, s, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Sessions []ir.FusionSession `json:"sessions"`
	}](t, w)
	assert.Len(t, list.Sessions, 1)

	records, err := e.Audit(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "operator", records[1].Actor)
	assert.Empty(t, records[2].Actor, "actor is per request")
}

func TestAbort_DefaultReason(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodPost, "/sessions", createSessionRequest{
		ParticipantIDs: []string{"node_1", "node_2"},
		FusionType:     "harmonic",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, s, http.MethodPost, "/sessions/session-1/abort", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[ir.FusionSession](t, w)
	assert.Equal(t, ir.StateAborted, got.State)
	assert.Equal(t, DefaultAbortReason, got.AbortReason)
}

func TestCreateSession_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"single participant", createSessionRequest{ParticipantIDs: []string{"node_1"}, FusionType: "harmonic"}, http.StatusBadRequest},
		{"unknown participant", createSessionRequest{ParticipantIDs: []string{"node_1", "node_9999"}, FusionType: "harmonic"}, http.StatusNotFound},
		{"malformed body", "not an object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/sessions", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestResonanceAndSync(t *testing.T) {
	s, _ := newTestServer(t)

	w := do(t, s, http.MethodGet, "/resonance?a=card_0_fool&b=node_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pr := decode[ir.PairResult](t, w)
	assert.Equal(t, "card_0_fool", pr.SourceID)
	assert.Greater(t, pr.Resonance, 0.0)

	w = do(t, s, http.MethodGet, "/resonance?a=card_0_fool", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/sync", syncRequest{SourceID: "card_0_fool", TargetIDs: []string{"node_1", "node_2"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Pairs []ir.PairResult `json:"pairs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Pairs, 2)
}

func TestPassesHealthAndReports(t *testing.T) {
	s, e := newTestServer(t)

	w := do(t, s, http.MethodPost, "/passes", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[ir.PassSummary](t, w)
	assert.Equal(t, 144+78, summary.Processed)
	e.Flush(context.Background())

	w = do(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[ir.HealthReport](t, w)
	assert.Len(t, report.PerEntity, 144+78)

	w = do(t, s, http.MethodGet, "/health/node_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "node_1", decode[ir.HealthRecord](t, w).EntityID)

	w = do(t, s, http.MethodGet, "/reports?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reports := decode[struct {
		Reports []ir.ValidationReport `json:"reports"`
	}](t, w)
	require.Len(t, reports.Reports, 1)
	assert.Equal(t, ir.ValidationSoft, reports.Reports[0].Mode)

	w = do(t, s, http.MethodGet, "/audit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	audit := decode[struct {
		Records []ir.AuditRecord `json:"records"`
	}](t, w)
	assert.Len(t, audit.Records, 3)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	do(t, s, http.MethodGet, "/nodes/node_1", nil)
	do(t, s, http.MethodGet, "/does/not/exist", nil)

	w := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `codex_http_requests_total{method="GET",path="/nodes/:id",status="200"} 1`)
	assert.Contains(t, body, `path="unmatched"`)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ir.NotFound("x"), http.StatusNotFound},
		{ir.InvalidArgument("bad"), http.StatusBadRequest},
		{ir.InvalidStateTransition("s", ir.StateResolved, ir.StateActive), http.StatusConflict},
		{ir.SafetyViolation("s", "consent_timeout"), http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestRespondError_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, errors.New("disk on fire"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, strings.Contains(w.Body.String(), "disk on fire"))
	assert.Equal(t, "INTERNAL", decode[errorBody](t, w).Error.Code)
}
