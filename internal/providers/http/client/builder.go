package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/http/cache"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RetryFunc decides whether a failed attempt is retried. err is nil for
// successful attempts. Undecided falls back to the default policy.
type RetryFunc func(err error, resp *Response) Decision

// PruneFunc turns a response into the entry that is cached. reduce is the
// default reduction.
type PruneFunc func(resp *Response, reduce func(*Response) *cache.Entry) *cache.Entry

const (
	retryWaitMin = 100 * time.Millisecond
	retryWaitMax = 2 * time.Second
)

// Builder assembles a single GET request.
type Builder struct {
	url        string
	agent      *Agent
	retries    int
	retryFn    RetryFunc
	headers    map[string]string
	timeout    time.Duration
	buffered   bool
	store      cache.Store
	expiration time.Duration
	prune      PruneFunc
	breaker    *resilience.Breaker
	limiter    *rate.Limiter
	logger     *logging.Logger
}

// NewRequest starts a GET request for url.
func NewRequest(url string) *Builder {
	return &Builder{
		url:     url,
		headers: make(map[string]string),
		logger:  logging.NewNop(),
	}
}

// Agent sets the connection pool the request is sent through. Without one
// the request opens its own connections and closes them when it is done.
func (b *Builder) Agent(a *Agent) *Builder {
	b.agent = a
	return b
}

// Retry allows up to n retries. fn may override each decision.
func (b *Builder) Retry(n int, fn RetryFunc) *Builder {
	b.retries = n
	b.retryFn = fn
	return b
}

// Set adds a request header.
func (b *Builder) Set(key, value string) *Builder {
	b.headers[key] = value
	return b
}

// Timeout bounds each attempt.
func (b *Builder) Timeout(d time.Duration) *Builder {
	b.timeout = d
	return b
}

// Buffer reads the whole body into Response.Body.
func (b *Builder) Buffer() *Builder {
	b.buffered = true
	return b
}

// Use attaches a cache store. Cached requests are always buffered.
func (b *Builder) Use(store cache.Store) *Builder {
	b.store = store
	b.buffered = true
	return b
}

// Expiration sets the ttl of the cached entry.
func (b *Builder) Expiration(d time.Duration) *Builder {
	b.expiration = d
	return b
}

// Prune replaces the reduction applied before caching.
func (b *Builder) Prune(fn PruneFunc) *Builder {
	b.prune = fn
	return b
}

// Breaker guards dispatch with a circuit breaker.
func (b *Builder) Breaker(br *resilience.Breaker) *Builder {
	b.breaker = br
	return b
}

// Limiter rate limits attempts.
func (b *Builder) Limiter(l *rate.Limiter) *Builder {
	b.limiter = l
	return b
}

// Logger sets the logger used for retry decisions and cache warnings.
func (b *Builder) Logger(l *logging.Logger) *Builder {
	if l != nil {
		b.logger = l
	}
	return b
}

// End dispatches the request. The future settles with the response or the
// first non-retried error. Abort cancels it.
func (b *Builder) End(ctx context.Context) *future.Future[*Response] {
	return future.Go(ctx, b.run)
}

func (b *Builder) run(ctx context.Context) (*Response, error) {
	start := time.Now()

	if b.store != nil {
		entry, ok, err := b.store.Get(ctx, cache.Key(b.url))
		if err != nil {
			b.logger.Warn("cache read failed", zap.Error(err))
		} else if ok {
			resp := fromEntry(b.url, entry)
			resp.Duration = time.Since(start)
			return resp, nil
		}
	}

	resp, err := b.dispatch(ctx)
	if err != nil {
		return nil, err
	}
	resp.Duration = time.Since(start)

	if b.store != nil && resp.Status < 400 {
		b.save(ctx, resp)
	}
	return resp, nil
}

func (b *Builder) save(ctx context.Context, resp *Response) {
	prune := b.prune
	if prune == nil {
		prune = func(r *Response, reduce func(*Response) *cache.Entry) *cache.Entry { return reduce(r) }
	}
	entry := prune(resp, Reduce)
	if entry == nil {
		return
	}
	ttl := b.expiration
	if ttl <= 0 {
		ttl = b.store.DefaultExpiration()
	}
	if err := b.store.Set(ctx, cache.Key(b.url), entry, ttl); err != nil {
		b.logger.Warn("cache write failed", zap.Error(err))
		return
	}
	resp.CacheID = entry.CacheID
}

// dispatch runs attempts until one succeeds, the retries run out or the
// retry decision says stop.
func (b *Builder) dispatch(ctx context.Context) (*Response, error) {
	agent := b.agent
	if agent == nil {
		agent = transientAgent(b.url)
		defer agent.Destroy()
	}

	for attempt := 0; ; attempt++ {
		resp, err := b.attempt(ctx, agent)

		transportErr := err
		var he *HTTPError
		if errors.As(err, &he) {
			transportErr = nil
		}

		// the decision is only asked for while retries remain
		if attempt >= b.retries || !b.shouldRetry(ctx, err, resp, transportErr) {
			if err != nil {
				if resp != nil && resp.Stream != nil {
					resp.Stream.Close()
				}
				return nil, err
			}
			return resp, nil
		}

		if resp != nil && resp.Stream != nil {
			resp.Stream.Close()
		}
		var raw *http.Response
		if resp != nil {
			raw = resp.raw
		}
		wait := retryablehttp.DefaultBackoff(retryWaitMin, retryWaitMax, attempt, raw)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// shouldRetry logs failed attempts at trace level, then asks the override and
// finally the default policy.
func (b *Builder) shouldRetry(ctx context.Context, err error, resp *Response, transportErr error) bool {
	if err != nil {
		b.logger.Trace("request attempt failed", zap.Error(err))
	}
	if b.retryFn != nil {
		switch b.retryFn(err, resp) {
		case Yes:
			return true
		case No:
			return false
		}
	}
	if err == nil {
		return false
	}
	var raw *http.Response
	if resp != nil {
		raw = resp.raw
	}
	retry, _ := retryablehttp.DefaultRetryPolicy(ctx, raw, transportErr)
	return retry
}

func (b *Builder) attempt(ctx context.Context, agent *Agent) (*Response, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit error: %w", err)
		}
	}

	send := func() (*Response, error) {
		resp, err := b.send(ctx, agent)
		if err == nil && resp.Status >= 400 {
			return resp, &HTTPError{Status: resp.Status, URL: b.url}
		}
		return resp, err
	}

	if b.breaker == nil {
		return send()
	}
	resp, err := resilience.Execute(b.breaker, send)
	if resilience.IsRejection(err) {
		return nil, fmt.Errorf("upstream %s unavailable: %w", b.breaker.Name(), err)
	}
	return resp, err
}

func (b *Builder) send(ctx context.Context, agent *Agent) (*Response, error) {
	attemptCtx, cancel := ctx, context.CancelFunc(func() {})
	if b.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, b.timeout)
	}

	req := agent.resty.R().
		SetContext(attemptCtx).
		SetHeaders(b.headers).
		SetDoNotParseResponse(!b.buffered)

	restyResp, err := req.Get(b.url)
	if err != nil {
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, ctxErr
		}
		return nil, err
	}

	resp := &Response{
		URL:    b.url,
		Status: restyResp.StatusCode(),
		Header: restyResp.Header(),
		raw:    restyResp.RawResponse,
	}
	if b.buffered {
		resp.Body = restyResp.Body()
		cancel()
	} else {
		// the timeout keeps bounding the stream until it is closed
		resp.Stream = &cancelOnClose{ReadCloser: restyResp.RawBody(), cancel: cancel}
	}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
