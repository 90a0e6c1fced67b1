package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/huddle/internal/observ"
	"go.uber.org/zap"
)

// AccessLog replaces gin.Logger with one structured line per request and
// feeds the request metrics. Route is the matched pattern, so ids in the
// path do not explode metric cardinality.
func AccessLog(logger *zap.Logger, metrics *observ.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		metrics.ObserveRequest(route, c.Request.Method, status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
			zap.String("request_id", GetRequestID(c)),
		}
		if uid := GetUserID(c); uid != uuid.Nil {
			fields = append(fields, zap.Stringer("user_id", uid))
		}
		switch {
		case status >= 500:
			logger.Error("request", fields...)
		case status >= 400:
			logger.Info("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}
