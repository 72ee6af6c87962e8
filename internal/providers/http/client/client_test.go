package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/http/cache"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func scriptServer(t *testing.T, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/javascript")
		w.WriteHeader(status)
		_, _ = w.Write([]byte("window.v = 42;"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIsCacheable(t *testing.T) {
	never := func(string) Decision { return No }
	undecided := func(string) Decision { return Undecided }
	always := func(string) Decision { return Yes }

	tests := []struct {
		name     string
		url      string
		override func(string) Decision
		want     bool
	}{
		{name: "js path", url: "/a/file.js", want: true},
		{name: "js with query", url: "/a/file.js?x=1", want: true},
		{name: "css path", url: "/a/file.css", want: false},
		{name: "absolute js", url: "https://cdn.example.com/app.js#frag", want: true},
		{name: "override false wins", url: "/a/file.js", override: never, want: false},
		{name: "override true wins", url: "/a/file.css", override: always, want: true},
		{name: "undecided override", url: "/a/file.js", override: undecided, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsCacheable(tt.url, tt.override))
		})
	}
}

func TestProvenance(t *testing.T) {
	assert.Equal(t, ProvenanceCache, Provenance(&Response{CacheID: "old"}, "current"))
	assert.Equal(t, ProvenanceNew, Provenance(&Response{CacheID: "current"}, "current"))
	assert.Equal(t, ProvenanceUnknown, Provenance(&Response{}, "current"))
	assert.Equal(t, ProvenanceUnknown, Provenance(&Response{CacheID: "old"}, ""))
	assert.Equal(t, ProvenanceUnknown, Provenance(nil, "current"))
}

func TestEndBuffersBody(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusOK, &hits)

	resp, err := NewRequest(srv.URL + "/app.js").Buffer().End(context.Background()).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []byte("window.v = 42;"), resp.Body)
	assert.Nil(t, resp.Stream)
	assert.False(t, resp.FromCache)
}

func TestEndUnbufferedStreams(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusOK, &hits)

	resp, err := NewRequest(srv.URL+"/app.js").Timeout(time.Second).End(context.Background()).Result()
	require.NoError(t, err)
	require.NotNil(t, resp.Stream)
	defer resp.Stream.Close()
	assert.Nil(t, resp.Body)
}

func TestStatusErrorIsHTTPError(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusNotFound, &hits)

	_, err := NewRequest(srv.URL+"/missing.js").Retry(3, nil).Buffer().End(context.Background()).Result()
	var he *HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.True(t, IsClientError(err))
	assert.Equal(t, int32(1), hits.Load(), "404 is not retried by the default policy")
}

func TestRetryDefaultPolicy(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusServiceUnavailable, &hits)

	_, err := NewRequest(srv.URL+"/app.js").Retry(2, nil).Buffer().End(context.Background()).Result()
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetryOverrideWins(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusServiceUnavailable, &hits)

	var calls int
	_, err := NewRequest(srv.URL+"/app.js").
		Retry(5, func(err error, resp *Response) Decision {
			calls++
			return No
		}).
		Buffer().
		End(context.Background()).
		Result()
	require.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, calls)
}

func TestRetryLogsOnlyErrors(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusOK, &hits)
	core, logs := observer.New(logging.TraceLevel)

	_, err := NewRequest(srv.URL+"/app.js").
		Retry(1, nil).
		Logger(logging.Wrap(zap.New(core))).
		Buffer().
		End(context.Background()).
		Result()
	require.NoError(t, err)
	assert.Zero(t, logs.FilterMessage("request attempt failed").Len())
}

func TestRequestWithoutAgentKeepsNoConnections(t *testing.T) {
	closing := make(chan bool, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		closing <- r.Close
		_, _ = w.Write([]byte("window.v = 1;"))
	}))
	defer srv.Close()

	_, err := NewRequest(srv.URL + "/a.js").Buffer().End(context.Background()).Result()
	require.NoError(t, err)
	assert.True(t, <-closing, "requests without an agent ask for Connection: close")

	agent := NewAgent("", AgentOptions{})
	defer agent.Destroy()
	_, err = NewRequest(srv.URL + "/b.js").Agent(agent).Buffer().End(context.Background()).Result()
	require.NoError(t, err)
	assert.False(t, <-closing, "pooled agents keep connections alive")
}

func TestAbortSurvivesChaining(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	f := NewRequest(srv.URL + "/slow.js").Buffer().End(context.Background())
	chained := future.Finally(future.Then(f, func(r *Response, err error) (*Response, error) {
		return r, err
	}), func() {})

	<-started
	chained.Abort()

	_, err := chained.Result()
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, chained.Aborted())
	assert.True(t, f.Aborted())
}

func TestCachedRequestStampsCacheID(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusOK, &hits)
	store := cache.NewMemory(time.Minute)
	defer store.Close()

	renderID := "render-1"
	opts := Options{
		Cache:   store,
		CacheID: func() string { return renderID },
	}
	ctx := context.Background()

	first, err := Request(ctx, nil, srv.URL+"/app.js", opts).Result()
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, ProvenanceNew, Provenance(first, renderID))

	second, err := Request(ctx, nil, srv.URL+"/app.js", opts).Result()
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, int32(1), hits.Load())

	renderID = "render-2"
	assert.Equal(t, ProvenanceCache, Provenance(second, renderID))
}

func TestUncacheableSkipsStore(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusOK, &hits)
	store := cache.NewMemory(time.Minute)
	defer store.Close()

	opts := Options{Cache: store, CacheID: func() string { return "r" }}
	for i := 0; i < 2; i++ {
		resp, err := Request(context.Background(), nil, srv.URL+"/style.css", opts).Result()
		require.NoError(t, err)
		assert.Equal(t, ProvenanceUnknown, Provenance(resp, "r"))
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Zero(t, store.Len())
}

func TestRequestFailureKeepsOriginalError(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusServiceUnavailable, &hits)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	tracer := tracing.New("ssr-test", nil, tracing.WithTracerProvider(tp))
	defer tracer.Close()

	core, logs := observer.New(zapcore.InfoLevel)
	_, err := Request(context.Background(), logging.Wrap(zap.New(core)), srv.URL+"/app.js", Options{
		Retries: 2,
		Tracer:  tracer,
	}).Result()

	var he *HTTPError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, http.StatusServiceUnavailable, he.Status)

	failures := logs.FilterMessage("Request failed").All()
	require.Len(t, failures, 1)
	assert.EqualValues(t, 503, failures[0].ContextMap()["props"].(map[string]any)["status"])

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	var retries int64 = -1
	for _, kv := range spans[0].Attributes {
		if kv.Key == "retries" {
			retries = kv.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(2), retries)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRequestWithoutRetriesCountsNone(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusServiceUnavailable, &hits)

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer tp.Shutdown(context.Background())
	tracer := tracing.New("ssr-test", nil, tracing.WithTracerProvider(tp))
	defer tracer.Close()

	var overrideCalls atomic.Int32
	override := func(error, *Response) Decision {
		overrideCalls.Add(1)
		return Yes
	}
	_, err := Request(context.Background(), nil, srv.URL+"/app.js", Options{
		Retries:     0,
		Tracer:      tracer,
		ShouldRetry: override,
	}).Result()
	require.Error(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Zero(t, overrideCalls.Load())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	var retries int64 = -1
	for _, kv := range spans[0].Attributes {
		if kv.Key == "retries" {
			retries = kv.Value.AsInt64()
		}
	}
	assert.Zero(t, retries)
}

func TestBreakerRejectsAfterServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := scriptServer(t, http.StatusBadGateway, &hits)

	breaker := resilience.New("cdn", resilience.Settings{
		ReadyToTrip: func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 1 },
		IsSuccessful: func(err error) bool {
			return err == nil || IsClientError(err)
		},
	})

	_, err := NewRequest(srv.URL+"/app.js").Breaker(breaker).Buffer().End(context.Background()).Result()
	require.Error(t, err)

	_, err = NewRequest(srv.URL+"/app.js").Breaker(breaker).Buffer().End(context.Background()).Result()
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(1), hits.Load())
}
