package tracing

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/propagation"
)

const (
	// TraceIDHeader carries the trace id between gateway and callers
	TraceIDHeader = "X-Trace-ID"
	// SpanIDHeader carries the caller's span, which becomes the parent
	SpanIDHeader = "X-Span-ID"
)

var propagator = propagation.TraceContext{}

type middlewareConfig struct {
	requestID func(*gin.Context) string
}

// MiddlewareOption configures HTTPMiddleware
type MiddlewareOption func(*middlewareConfig)

// WithRequestID seeds traces that arrive without X-Trace-ID from the
// gateway's request id, so log lines and spans share one key.
func WithRequestID(fn func(*gin.Context) string) MiddlewareOption {
	return func(c *middlewareConfig) { c.requestID = fn }
}

// HTTPMiddleware opens one session per gateway request. An incoming W3C
// traceparent parents the OpenTelemetry span; X-Trace-ID and X-Span-ID
// parent the logged span.
func HTTPMiddleware(tracer *Tracer, opts ...MiddlewareOption) gin.HandlerFunc {
	var cfg middlewareConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		traceID, parentID := ExtractTraceContext(map[string]string{
			TraceIDHeader: c.GetHeader(TraceIDHeader),
			SpanIDHeader:  c.GetHeader(SpanIDHeader),
		})
		if traceID == "" && cfg.requestID != nil {
			traceID = TraceID(cfg.requestID(c))
		}
		if traceID != "" {
			ctx = WithTraceID(ctx, traceID)
		}
		if parentID != "" {
			ctx = withSpanID(ctx, parentID)
		}

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		sess, ctx := tracer.Start(ctx, "http "+route, c.Request.Method+" "+c.Request.URL.Path, nil)
		defer sess.End()
		sess.AddLabel("http.method", c.Request.Method)
		sess.AddLabel("http.host", c.Request.Host)

		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceIDHeader, string(GetTraceID(ctx)))
		c.Header(SpanIDHeader, string(GetSpanID(ctx)))
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer.Header()))

		c.Next()

		status := c.Writer.Status()
		sess.AddLabel("http.status", strconv.Itoa(status))
		switch {
		case len(c.Errors) > 0:
			sess.AddLabel("error", c.Errors.Last().Err)
		case status >= http.StatusInternalServerError:
			sess.AddLabel("error", fmt.Errorf("http status %d", status))
		}
	}
}
