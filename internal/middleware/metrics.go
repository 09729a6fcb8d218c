package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"pharmacy_inventory/internal/metrics"
)

// Metrics records request durations labelled by route pattern.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
