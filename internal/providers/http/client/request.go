package client

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/http/cache"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/errinfo"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/id"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Options configures Request.
type Options struct {
	Agent       *Agent
	Retries     int
	ShouldRetry RetryFunc
	Headers     map[string]string
	Timeout     time.Duration
	UserAgent   string

	// Cache is the response cache. Nil disables caching.
	Cache       cache.Store
	IsCacheable func(url string) Decision
	// Expiration returns the ttl for url; zero uses the store default.
	Expiration func(url string) time.Duration
	// CacheID returns the current render's cache id.
	CacheID func() string

	Breaker *resilience.Breaker
	Limiter *rate.Limiter
	Tracer  *tracing.Tracer
	Metrics *monitoring.Metrics
}

// Request downloads url with retry, caching and provenance tracking. The
// returned future carries the original error on failure.
func Request(ctx context.Context, logger *logging.Logger, url string, opts Options) *future.Future[*Response] {
	if logger == nil {
		logger = logging.NewNop()
	}
	reqLog := logger.Child(
		zap.String("url", url),
		zap.String("request_id", id.NewRequestID().String()),
	)

	sess := tracing.Nop()
	if opts.Tracer != nil {
		sess = opts.Tracer.Trace(ctx, "request", url, reqLog)
	}

	var retries atomic.Int64
	shouldRetry := func(err error, resp *Response) Decision {
		if err != nil {
			retries.Add(1)
			opts.Metrics.IncSubRequestRetries()
		}
		if opts.ShouldRetry != nil {
			return opts.ShouldRetry(err, resp)
		}
		return Undecided
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}

	b := NewRequest(url).
		Agent(opts.Agent).
		Retry(opts.Retries, shouldRetry).
		Set("User-Agent", ua).
		Timeout(opts.Timeout).
		Breaker(opts.Breaker).
		Limiter(opts.Limiter).
		Logger(reqLog)
	for k, v := range opts.Headers {
		b.Set(k, v)
	}

	if opts.Cache != nil && IsCacheable(url, opts.IsCacheable) {
		var ttl time.Duration
		if opts.Expiration != nil {
			ttl = opts.Expiration(url)
		}
		b.Use(opts.Cache).
			Expiration(ttl).
			Prune(func(resp *Response, reduce func(*Response) *cache.Entry) *cache.Entry {
				entry := reduce(resp)
				if opts.CacheID != nil {
					entry.CacheID = opts.CacheID()
				}
				return entry
			}).
			Buffer()
	} else {
		b.Buffer()
	}

	start := time.Now()
	return future.Then(b.End(ctx), func(resp *Response, err error) (*Response, error) {
		defer sess.End()
		sess.AddLabel("retries", retries.Load())

		if err != nil {
			sess.AddLabel("error", err)
			info := errinfo.Extract(err)
			reqLog.Error("Request failed", info.Fields()...)
			opts.Metrics.RecordSubRequest("", "failure", time.Since(start))
			return nil, err
		}

		current := ""
		if opts.CacheID != nil {
			current = opts.CacheID()
		}
		provenance := Provenance(resp, current)
		sess.AddLabel("cache", provenance)
		sess.AddLabel("status", resp.Status)
		opts.Metrics.RecordSubRequest(provenance, "success", time.Since(start))
		return resp, nil
	})
}
