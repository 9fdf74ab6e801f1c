// Package api renders the engine's query/command surface as HTTP JSON.
//
// Routes:
//
//	GET  /nodes/:id                node by "node_<n>" or bare integer
//	GET  /cards/:id                card with derived mirrors
//	GET  /cards                    search: keyword, suit, element, limit, offset
//	GET  /entities/:id             uniform view of any entity
//	GET  /resonance?a=&b=          pair resonance
//	POST /sessions                 create a fusion session
//	GET  /sessions                 list live sessions
//	GET  /sessions/:id             live or archived session
//	POST /sessions/:id/consent
//	POST /sessions/:id/resolve
//	POST /sessions/:id/abort
//	GET  /health                   health report
//	GET  /health/:id               one entity's health record
//	POST /sync                     score a source against targets
//	POST /passes                   run a global pass now
//	GET  /audit                    audit ledger
//	GET  /reports                  validation reports
//	GET  /metrics                  Prometheus exposition
//
// Error bodies are {"error": {"code", "message", ...}} with NOT_FOUND→404,
// INVALID_ARGUMENT→400, INVALID_STATE_TRANSITION→409 and
// SAFETY_VIOLATION→422.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/codex/internal/catalog"
	"github.com/roach88/codex/internal/engine"
	"github.com/roach88/codex/internal/ir"
)

// DefaultAbortReason is used when an abort request carries no reason.
const DefaultAbortReason = "aborted by client"

// Server serves one engine.
type Server struct {
	engine *engine.Engine
	router *gin.Engine
}

// New builds the router for e. The gin mode is left to the caller.
func New(e *engine.Engine) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(requestMetrics(e.Metrics()))
	r.Use(actor())

	s := &Server{engine: e, router: r}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		slog.Info("http server stopped")
		return nil
	}
}

func (s *Server) routes() {
	r := s.router
	r.GET("/nodes/:id", s.getNode)
	r.GET("/cards/:id", s.getCard)
	r.GET("/cards", s.searchCards)
	r.GET("/entities/:id", s.getEntity)
	r.GET("/resonance", s.getResonance)

	r.POST("/sessions", s.createSession)
	r.GET("/sessions", s.listSessions)
	r.GET("/sessions/:id", s.getSession)
	r.POST("/sessions/:id/consent", s.consent)
	r.POST("/sessions/:id/resolve", s.resolve)
	r.POST("/sessions/:id/abort", s.abort)

	r.GET("/health", s.healthReport)
	r.GET("/health/:id", s.entityHealth)
	r.POST("/sync", s.syncSubset)
	r.POST("/passes", s.runPass)

	r.GET("/audit", s.auditLog)
	r.GET("/reports", s.reports)
	r.GET("/metrics", gin.WrapH(s.engine.Metrics().Handler()))
}

// reply writes v with 200, or the error mapping.
func reply[T any](c *gin.Context, v T, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) getNode(c *gin.Context) {
	n, err := s.engine.GetNode(c.Param("id"))
	reply(c, n, err)
}

func (s *Server) getCard(c *gin.Context) {
	card, err := s.engine.GetCard(c.Param("id"))
	reply(c, card, err)
}

func (s *Server) getEntity(c *gin.Context) {
	v, err := s.engine.GetEntity(c.Param("id"))
	reply(c, v, err)
}

func (s *Server) searchCards(c *gin.Context) {
	q := catalog.Query{Keywords: c.QueryArray("keyword")}
	for _, v := range c.QueryArray("suit") {
		q.Suits = append(q.Suits, ir.Suit(v))
	}
	for _, v := range c.QueryArray("element") {
		q.Elements = append(q.Elements, ir.Element(v))
	}
	var err error
	if q.Limit, err = intQuery(c, "limit"); err != nil {
		respondError(c, err)
		return
	}
	if q.Offset, err = intQuery(c, "offset"); err != nil {
		respondError(c, err)
		return
	}
	res, err := s.engine.SearchCards(q)
	reply(c, res, err)
}

func (s *Server) getResonance(c *gin.Context) {
	a, b := c.Query("a"), c.Query("b")
	if a == "" || b == "" {
		respondError(c, ir.InvalidArgument("query parameters a and b are required"))
		return
	}
	pr, err := s.engine.PairResonance(a, b)
	reply(c, pr, err)
}

type createSessionRequest struct {
	ParticipantIDs []string `json:"participant_ids"`
	FusionType     string   `json:"fusion_type"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ir.InvalidArgument("invalid request body: %v", err))
		return
	}
	sess, err := s.engine.CreateFusionSession(c.Request.Context(), req.ParticipantIDs, req.FusionType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.engine.ListSessions()})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.engine.GetSession(c.Request.Context(), c.Param("id"))
	reply(c, sess, err)
}

func (s *Server) consent(c *gin.Context) {
	sess, err := s.engine.ConfirmConsent(c.Request.Context(), c.Param("id"))
	reply(c, sess, err)
}

func (s *Server) resolve(c *gin.Context) {
	sess, err := s.engine.Resolve(c.Request.Context(), c.Param("id"))
	reply(c, sess, err)
}

type abortRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) abort(c *gin.Context) {
	var req abortRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, ir.InvalidArgument("invalid request body: %v", err))
			return
		}
	}
	if req.Reason == "" {
		req.Reason = DefaultAbortReason
	}
	sess, err := s.engine.Abort(c.Request.Context(), c.Param("id"), req.Reason)
	reply(c, sess, err)
}

func (s *Server) healthReport(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.GetHealthReport())
}

func (s *Server) entityHealth(c *gin.Context) {
	rec, err := s.engine.GetHealth(c.Param("id"))
	reply(c, rec, err)
}

type syncRequest struct {
	SourceID  string   `json:"source_id"`
	TargetIDs []string `json:"target_ids"`
}

func (s *Server) syncSubset(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ir.InvalidArgument("invalid request body: %v", err))
		return
	}
	res, err := s.engine.SyncSubset(c.Request.Context(), req.SourceID, req.TargetIDs)
	reply(c, res, err)
}

func (s *Server) runPass(c *gin.Context) {
	summary, err := s.engine.RunGlobalPass(c.Request.Context())
	reply(c, summary, err)
}

func (s *Server) auditLog(c *gin.Context) {
	records, err := s.engine.Audit(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

func (s *Server) reports(c *gin.Context) {
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	reports, err := s.engine.Reports(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// intQuery parses an optional integer query parameter; absent means 0.
func intQuery(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ir.InvalidArgument("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}
