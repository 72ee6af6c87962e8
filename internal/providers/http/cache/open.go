package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

// Open builds the store named by cfg.Driver. An unreachable Redis falls back
// to the memory store so renders keep working without a shared cache.
func Open(ctx context.Context, cfg config.CacheConfig, logger *logging.Logger) (Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	switch cfg.Driver {
	case "", "memory":
		return NewMemory(cfg.TTL), nil
	case "redis":
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Warn("redis unavailable, falling back to in-memory cache", zap.Error(err))
		return NewMemory(cfg.TTL), nil
	}

	store, err := NewRedis(client, cfg.Prefix, cfg.TTL)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	logger.Info("using redis response cache", zap.String("addr", opts.Addr))
	return store, nil
}
