package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/roomforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
)

// RequestLogger writes one access log line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			kv = append(kv, "request_id", td.RequestID, "trace_id", td.TraceID)
		}
		if owner := ctxutil.Owner(c.Request.Context()); owner != "" {
			kv = append(kv, "owner_id", owner)
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "error", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("HTTP request", kv...)
		case c.Writer.Status() >= 400:
			log.Warn("HTTP request", kv...)
		default:
			log.Debug("HTTP request", kv...)
		}
	}
}
