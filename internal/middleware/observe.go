package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tpia/internal/metrics"
)

// Observe logs each request and records it on the collector. Routes are
// labelled by their pattern to keep metric cardinality bounded.
func Observe(log *zap.Logger, m *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		latency := time.Since(start)
		if m != nil {
			m.RecordAPIRequest(c.Request.Method, path, strconv.Itoa(status), latency)
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		}
		if id := GetUserID(c); id != 0 {
			fields = append(fields, zap.Uint("user_id", id))
		}
		switch {
		case status >= 500:
			log.Error("request", append(fields, zap.String("errors", c.Errors.String()))...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Debug("request", fields...)
		}
	}
}
