package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/markazapp/markaz-admin-api/internal/service"
)

// Metrics records one observation per request, labeled by the route
// template so /people/:id stays a single series. A nil service (tests,
// metrics disabled) passes requests through untouched.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			// unmatched routes fall back to the raw path
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, duration)
	}
}
