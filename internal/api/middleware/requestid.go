package middleware

import (
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/id"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestIDHeader is read from and echoed on every response.
const RequestIDHeader = "X-Request-ID"

const (
	requestIDKey = "request_id"
	loggerKey    = "request_logger"
)

// maxRequestIDLen caps caller supplied ids before they reach the logs.
const maxRequestIDLen = 128

// RequestID assigns each request an id and a logger carrying it. A caller
// supplied X-Request-ID is kept.
func RequestID(logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLen {
			rid = id.NewRequestID().String()
		}
		c.Set(requestIDKey, rid)
		c.Set(loggerKey, logger.Child(zap.String("request_id", rid)))
		c.Header(RequestIDHeader, rid)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// RequestLogger returns the request-scoped logger, or fallback when
// RequestID did not run.
func RequestLogger(c *gin.Context, fallback *logging.Logger) *logging.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*logging.Logger); ok {
			return l
		}
	}
	if fallback == nil {
		return logging.NewNop()
	}
	return fallback
}

// AccessLog logs one line per request through the request logger.
func AccessLog(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		RequestLogger(c, logger).Info("request completed", fields...)
	}
}
