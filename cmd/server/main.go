package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/domain/manifest"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/domain/render"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/server"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/http/cache"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/http/client"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/loader"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flagSet := pflag.NewFlagSet("ssr-server", pflag.ContinueOnError)
	envFile := flagSet.String("env-file", ".env", "dotenv file read before the environment")

	// The env file flag has to be known before config loads, so parse twice:
	// once for it, once more for overrides bound to the loaded config.
	flagSet.ParseErrorsWhitelist.UnknownFlags = true
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		return err
	}
	cfg.RegisterFlags(flagSet)
	flagSet.ParseErrorsWhitelist.UnknownFlags = false
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Initializing SSR gateway",
		zap.String("addr", cfg.Addr()),
		zap.String("env", cfg.Server.Environment),
		zap.String("manifest", cfg.Render.Manifest),
	)

	shutdownTracer, err := tracing.InitTracer(cfg.Tracing.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	tracer := tracing.New(cfg.Tracing.ServiceName, logger)
	defer tracer.Close()

	metrics := monitoring.NewMetrics()
	defer metrics.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("failed to open response cache: %w", err)
	}
	defer func() { _ = store.Close() }()

	m, err := manifest.Load(cfg.Render.Manifest)
	if err != nil {
		return err
	}
	logger.Info("Loaded render manifest", zap.Int("routes", len(m.Routes)), zap.String("callback", m.Callback))

	var limiter *rate.Limiter
	if cfg.HTTP.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.HTTP.RequestsPerSecond), cfg.HTTP.Burst)
	}
	breakers := loader.DefaultBreakerSettings()
	breakers.OnStateChange = func(host string, from, to resilience.State) {
		logger.Warn("Script host breaker changed state",
			zap.String("host", host),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	}

	env, err := render.New(m.Configuration(manifest.Dependencies{
		Request: client.Options{
			Retries:   cfg.HTTP.Retries,
			Timeout:   cfg.HTTP.Timeout,
			UserAgent: cfg.HTTP.UserAgent,
			Cache:     store,
			Limiter:   limiter,
			Tracer:    tracer,
			Metrics:   metrics,
		},
		Agent:    client.AgentOptions{UserAgent: cfg.HTTP.UserAgent},
		Breakers: resilience.NewGroup(breakers),
		Timeout:  cfg.Render.Timeout,
	}), render.WithMetrics(metrics))
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, server.Dependencies{
		Renderer: env,
		Logger:   logger,
		Metrics:  metrics,
		Tracer:   tracer,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn("Failed to flush traces", zap.Error(err))
	}
	return nil
}
