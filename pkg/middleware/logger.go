package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/booking-rush-reservation/pkg/logger"
	"go.uber.org/zap"
)

// Logger logs every request once it completes. Paths in skip are not logged.
func Logger(log *logger.Logger, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if _, ok := skipped[path]; ok {
			return
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.Int("body_size", c.Writer.Size()),
		}
		if userID, ok := GetUserID(c); ok {
			fields = append(fields, zap.String("user_id", userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.ErrorContext(ctx, "Server error", fields...)
		case status >= 400:
			log.WarnContext(ctx, "Client error", fields...)
		default:
			log.InfoContext(ctx, "Request completed", fields...)
		}
	}
}
