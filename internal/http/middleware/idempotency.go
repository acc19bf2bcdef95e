package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/roomforge-backend/internal/http/response"
	"github.com/yungbote/roomforge-backend/internal/platform/apierr"
	"github.com/yungbote/roomforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/roomforge-backend/internal/platform/logger"
)

const (
	IdempotencyHeader      = "Idempotency-Key"
	IdempotentReplayHeader = "Idempotent-Replay"

	idempotencyPrefix  = "roomforge:idem:"
	idempotencyPending = "pending"
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

type capturingWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a mutation that carried the same
// Idempotency-Key. Requests without the header, and all requests when rdb is nil,
// pass through. Server errors are not stored so the client can retry them.
func Idempotency(log *logger.Logger, rdb *goredis.Client, ttl time.Duration) gin.HandlerFunc {
	log = log.With("Middleware", "Idempotency")
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if rdb == nil || key == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		if len(key) > 200 {
			response.RespondError(c, apierr.New(http.StatusBadRequest, "invalid_idempotency_key", errors.New("Idempotency-Key is too long")))
			return
		}
		ctx := c.Request.Context()
		rkey := idempotencyPrefix + ctxutil.Owner(ctx) + ":" + c.Request.Method + ":" + c.Request.URL.Path + ":" + key

		ok, err := rdb.SetNX(ctx, rkey, idempotencyPending, ttl).Result()
		if err != nil {
			log.Warn("Idempotency store unavailable; passing through", "error", err)
			c.Next()
			return
		}
		if !ok {
			replay(c, rdb, rkey)
			return
		}

		// The request context may already be cancelled once the handler returned.
		release := func() {
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			_ = rdb.Del(sctx, rkey).Err()
		}
		defer func() {
			if rec := recover(); rec != nil {
				release()
				panic(rec)
			}
		}()

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		status := w.Status()
		if status >= http.StatusInternalServerError {
			release()
			return
		}
		raw, err := json.Marshal(storedResponse{Status: status, ContentType: w.Header().Get("Content-Type"), Body: w.buf.Bytes()})
		if err == nil {
			err = rdb.Set(sctx, rkey, raw, ttl).Err()
		}
		if err != nil {
			log.Warn("Failed to store idempotent response", "error", err)
		}
	}
}

func replay(c *gin.Context, rdb *goredis.Client, rkey string) {
	raw, err := rdb.Get(c.Request.Context(), rkey).Bytes()
	if err != nil || string(raw) == idempotencyPending {
		response.RespondError(c, apierr.Conflict("request_in_progress", errors.New("a request with this Idempotency-Key is still running")).AsRetryable())
		return
	}
	var stored storedResponse
	if err := json.Unmarshal(raw, &stored); err != nil {
		response.RespondError(c, apierr.Internal(err))
		return
	}
	c.Header(IdempotentReplayHeader, "true")
	if len(stored.Body) == 0 {
		c.AbortWithStatus(stored.Status)
		return
	}
	c.Data(stored.Status, stored.ContentType, stored.Body)
	c.Abort()
}
