package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/domain/render"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticRenderer struct{}

func (staticRenderer) Render(_ context.Context, url string, _ *render.API) (*render.Result, error) {
	return &render.Result{Body: url, Status: 200, Headers: map[string]string{}}, nil
}

func newServer(t *testing.T, env string) (*Server, *monitoring.Metrics) {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Environment = env
	cfg.Auth.Secret = "s3cret"
	cfg.RateLimit.Enabled = false

	metrics := monitoring.NewMetrics()
	t.Cleanup(metrics.Close)

	srv, err := New(cfg, Dependencies{Renderer: staticRenderer{}, Metrics: metrics})
	require.NoError(t, err)
	return srv, metrics
}

func renderRequest(secret string) *http.Request {
	req := httptest.NewRequest("POST", "/render", strings.NewReader(`{"url": "https://example.com/"}`))
	if secret != "" {
		req.Header.Set(middleware.SecretHeader, secret)
	}
	return req
}

func TestProductionEnforcesSecret(t *testing.T) {
	srv, _ := newServer(t, "production")

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, renderRequest(""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, renderRequest("s3cret"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestDevelopmentSkipsSecret(t *testing.T) {
	srv, _ := newServer(t, "development")

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, renderRequest("wrong"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProductionRequiresSecret(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Environment = "production"

	_, err := New(cfg, Dependencies{Renderer: staticRenderer{}})
	assert.Error(t, err)
}

func TestNewRequiresRenderer(t *testing.T) {
	_, err := New(config.Default(), Dependencies{})
	assert.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newServer(t, "development")

	srv.Handler().ServeHTTP(httptest.NewRecorder(), renderRequest(""))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ssr_http_requests_total")
}

func TestShutdownBeforeRun(t *testing.T) {
	srv, _ := newServer(t, "development")
	assert.NoError(t, srv.Shutdown(context.Background()))
}
