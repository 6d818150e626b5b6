package server

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/devorch/internal/metrics"
)

func accessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"client", c.ClientIP(),
		}
		switch {
		case status >= 500:
			log.Warn("request", attrs...)
		default:
			log.Debug("request", attrs...)
		}
	}
}

// observe records request counters keyed by the matched route pattern, so
// proxied and static paths do not explode label cardinality.
func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
