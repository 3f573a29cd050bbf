package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestObserver records request latencies. *metrics.Metrics satisfies it.
type RequestObserver interface {
	ObserveRequest(method, route, status string, d time.Duration)
}

// Metrics records the latency of every request under its route template, so
// /checks/:token is one series regardless of the token.
func Metrics(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		observer.ObserveRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
