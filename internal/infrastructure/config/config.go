package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Logging   LogConfig
	Render    RenderConfig
	HTTP      HTTPConfig
	Cache     CacheConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Tracing   TracingConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        string `envconfig:"PORT" default:"8000"`
	Host        string `envconfig:"HOST" default:"0.0.0.0"`
	Environment string `envconfig:"ENV" default:"development"`

	// AllowOrigins feeds CORS; "*" admits any origin.
	AllowOrigins []string `envconfig:"SSR_CORS_ORIGINS" default:"*"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RenderConfig holds render engine configuration.
type RenderConfig struct {
	Timeout  time.Duration `envconfig:"SSR_RENDER_TIMEOUT" default:"30s"`
	Manifest string        `envconfig:"SSR_MANIFEST" default:"ssr.yaml"`
}

// HTTPConfig holds script download configuration.
type HTTPConfig struct {
	Timeout           time.Duration `envconfig:"SSR_HTTP_TIMEOUT" default:"10s"`
	Retries           int           `envconfig:"SSR_HTTP_RETRIES" default:"2"`
	RequestsPerSecond float64       `envconfig:"SSR_HTTP_RPS" default:"0"`
	Burst             int           `envconfig:"SSR_HTTP_BURST" default:"20"`
	UserAgent         string        `envconfig:"SSR_HTTP_USER_AGENT" default:"ssr-render/1.0"`
}

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	Driver   string        `envconfig:"SSR_CACHE_DRIVER" default:"memory"`
	RedisURL string        `envconfig:"SSR_REDIS_URL" default:""`
	Prefix   string        `envconfig:"SSR_CACHE_PREFIX" default:"ssr:"`
	TTL      time.Duration `envconfig:"SSR_CACHE_TTL" default:"5m"`
}

// AuthConfig holds the gateway shared secrets.
type AuthConfig struct {
	Secret           string `envconfig:"SSR_SECRET" default:""`
	DeprecatedSecret string `envconfig:"SSR_SECRET_DEPRECATED" default:""`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// TracingConfig holds tracing configuration. The OTLP endpoint itself is
// read by the exporter from OTEL_EXPORTER_OTLP_ENDPOINT.
type TracingConfig struct {
	ServiceName string `envconfig:"OTEL_SERVICE_NAME" default:"ssr"`
}

// Load reads optional dotenv files, then environment variables. Missing
// dotenv files are skipped; with no files given ".env" is tried.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8000",
			Host:         "0.0.0.0",
			Environment:  "development",
			AllowOrigins: []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Render: RenderConfig{
			Timeout:  30 * time.Second,
			Manifest: "ssr.yaml",
		},
		HTTP: HTTPConfig{
			Timeout:   10 * time.Second,
			Retries:   2,
			Burst:     20,
			UserAgent: "ssr-render/1.0",
		},
		Cache: CacheConfig{
			Driver: "memory",
			Prefix: "ssr:",
			TTL:    5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Tracing: TracingConfig{
			ServiceName: "ssr",
		},
	}
}

// RegisterFlags binds command line overrides onto c. Current values become
// the flag defaults, so flags win over the environment.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Server.Host, "host", c.Server.Host, "listen host")
	fs.StringVarP(&c.Server.Port, "port", "p", c.Server.Port, "listen port")
	fs.StringVar(&c.Server.Environment, "env", c.Server.Environment, "environment name; production enforces the gateway secret")
	fs.StringVar(&c.Logging.Level, "log-level", c.Logging.Level, "log level: trace, debug, info, warn, error")
	fs.BoolVar(&c.Logging.Development, "log-dev", c.Logging.Development, "human readable console logs")
	fs.StringVarP(&c.Render.Manifest, "manifest", "m", c.Render.Manifest, "render manifest (YAML, TOML or JSON)")
	fs.DurationVar(&c.Render.Timeout, "render-timeout", c.Render.Timeout, "upper bound for script execution and render callback")
	fs.StringVar(&c.Cache.Driver, "cache", c.Cache.Driver, "response cache driver: memory or redis")
	fs.StringVar(&c.Cache.RedisURL, "redis-url", c.Cache.RedisURL, "redis URL for the shared response cache")
	fs.StringSliceVar(&c.Server.AllowOrigins, "cors-origin", c.Server.AllowOrigins, "allowed CORS origins")
}

// IsProduction reports whether the gateway must enforce secrets.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production" || c.Server.Environment == "prod"
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}
