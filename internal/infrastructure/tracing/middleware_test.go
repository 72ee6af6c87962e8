package tracing

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func newTracedRouter(tracer *Tracer, opts ...MiddlewareOption) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(HTTPMiddleware(tracer, opts...))
	router.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, string(GetTraceID(c.Request.Context())))
	})
	router.GET("/fail", func(c *gin.Context) {
		c.Status(http.StatusBadGateway)
	})
	return router
}

func TestHTTPMiddlewareSeedsFromRequestID(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)
	router := newTracedRouter(tracer, WithRequestID(func(*gin.Context) string { return "req_abc" }))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req_abc", w.Body.String())
	assert.Equal(t, "req_abc", w.Header().Get(TraceIDHeader))
	assert.NotEmpty(t, w.Header().Get(SpanIDHeader))
	assert.NotEmpty(t, w.Header().Get("traceparent"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "http /ok", spans[0].Name)
}

func TestHTTPMiddlewareHonorsIncomingHeaders(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)
	router := newTracedRouter(tracer, WithRequestID(func(*gin.Context) string { return "req_ignored" }))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(TraceIDHeader, "caller-trace")
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "caller-trace", w.Body.String())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", spans[0].SpanContext.TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent.SpanID().String())
}

func TestHTTPMiddlewareMarksServerErrors(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)
	router := newTracedRouter(tracer)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "http status 502", spans[0].Status.Description)
}

func TestHTTPMiddlewareUnmatchedRoute(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)
	router := newTracedRouter(tracer)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "http unmatched", spans[0].Name)
}
