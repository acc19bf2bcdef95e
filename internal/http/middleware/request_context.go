package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/roomforge-backend/internal/platform/ctxutil"
)

const RequestIDHeader = "X-Request-Id"

// AttachRequestContext assigns the correlation id echoed on every response and
// records it with the active trace id on the request context.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		reqID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		td := &ctxutil.TraceData{RequestID: reqID}
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			td.TraceID = sc.TraceID().String()
		}
		c.Header(RequestIDHeader, reqID)
		c.Set("request_id", reqID)
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(ctx, td))
		c.Next()
	}
}
