package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/codex/internal/audit"
	"github.com/roach88/codex/internal/metrics"
)

// ActorHeader names the acting principal recorded in the audit ledger.
const ActorHeader = "X-Codex-Actor"

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", time.Since(start),
			"bytes", c.Writer.Size(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		slog.Log(c.Request.Context(), level, "http request", attrs...)
	}
}

func requestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// actor attaches the caller named in ActorHeader to the request context.
func actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		if name := c.GetHeader(ActorHeader); name != "" {
			c.Request = c.Request.WithContext(audit.WithActor(c.Request.Context(), name))
		}
		c.Next()
	}
}
