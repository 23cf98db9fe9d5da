package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/talentflowlabs/talentflow-core/pkg/telemetry/correlation"
)

const requestIDHeader = "X-Request-ID"

// RequestID propagates the caller's request ID or mints one, and threads it
// through the request context as the correlation ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		ctx, id := correlation.EnsureCorrelationID(
			correlation.ContextWithCorrelationID(c.Request.Context(), id))

		c.Request = c.Request.WithContext(ctx)
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
