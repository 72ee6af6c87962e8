// Package server assembles the gateway: router, middleware, render routes
// and the HTTP server lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AgentOS/ssr/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/api/middleware"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/tracing"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Dependencies are built by the caller and owned by it.
type Dependencies struct {
	Renderer apihttp.Renderer
	Logger   *logging.Logger
	Metrics  *monitoring.Metrics
	Tracer   *tracing.Tracer
}

// Server wraps the HTTP server and its router
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *logging.Logger
	config *config.Config
}

// New creates a new server instance
func New(cfg *config.Config, deps Dependencies) (*Server, error) {
	if deps.Renderer == nil {
		return nil, errors.New("server requires a renderer")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(logger))
	router.Use(middleware.AccessLog(logger))
	if deps.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(deps.Tracer, tracing.WithRequestID(middleware.GetRequestID)))
	}
	router.Use(monitoring.Middleware(deps.Metrics, monitoring.SkipPaths("/metrics")))
	router.Use(middleware.CORS(cfg.Server.AllowOrigins...))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	auth := middleware.AuthConfig{
		Secret:           cfg.Auth.Secret,
		DeprecatedSecret: cfg.Auth.DeprecatedSecret,
		Enforce:          cfg.IsProduction(),
	}
	if auth.Enforce && auth.Secret == "" {
		return nil, errors.New("SSR_SECRET is required in production")
	}

	handlers := apihttp.NewHandlers(deps.Renderer, apihttp.Options{
		Logger:  logger,
		Tracer:  deps.Tracer,
		Metrics: deps.Metrics,
		Verbose: !cfg.IsProduction(),
	})

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.POST("/render", middleware.SecretAuth(auth, logger), handlers.Render)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
			IdleTimeout:       idleTimeout,
		},
		logger: logger,
		config: cfg,
	}, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight renders.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
