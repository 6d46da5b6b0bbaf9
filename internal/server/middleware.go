package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"energywatch/internal/metrics"
)

// metricsMiddleware records request counts and latency per route. The route
// template is used rather than the raw path so path parameters do not
// explode label cardinality.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(path, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
