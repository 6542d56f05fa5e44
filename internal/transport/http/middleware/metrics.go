package middleware

import (
	"github.com/gin-gonic/gin"

	"docintell/internal/metrics"
)

// Metrics records request count, latency and in-flight requests by route
// template, so ids in the path do not create new series.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		done := m.HTTPStarted()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		done(c.Request.Method, route, c.Writer.Status())
	}
}
