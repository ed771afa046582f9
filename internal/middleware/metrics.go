package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/moracollect-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route. Raw paths carry
// submission and collection ids and would explode label cardinality.
const unmatchedRoute = "unmatched"

// Metrics records request count and latency per route pattern. Scrapes of
// scrapePath are not recorded.
func Metrics(metricsSvc *service.MetricsService, scrapePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil || c.Request.URL.Path == scrapePath {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
