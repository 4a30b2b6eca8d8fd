package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bibleschool-api/internal/service"
)

// unmatchedRoute labels requests gin could not route, so scanners cannot grow the path label set.
const unmatchedRoute = "unmatched"

// Metrics records request count and latency per route template. Paths in skip
// (probes and the scrape endpoint) are not observed.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	ignored := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		ignored[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := ignored[route]; ok {
			return
		}
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
