package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talentflowlabs/talentflow-core/internal/telemetry"
)

// Metrics records per-route request latency. The route template is used as
// the path label so parameterized routes do not explode cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		telemetry.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
