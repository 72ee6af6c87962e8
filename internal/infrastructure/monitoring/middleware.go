package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedPath labels requests that hit no route, keeping label
// cardinality bounded no matter what URLs clients probe.
const unmatchedPath = "unmatched"

// MiddlewareOption configures Middleware
type MiddlewareOption func(map[string]struct{})

// SkipPaths excludes routes from gateway metrics, e.g. the scrape endpoint
// itself.
func SkipPaths(paths ...string) MiddlewareOption {
	return func(skip map[string]struct{}) {
		for _, p := range paths {
			skip[p] = struct{}{}
		}
	}
}

// Middleware records one observation per gateway request, labelled by
// route template rather than raw path.
func Middleware(metrics *Metrics, opts ...MiddlewareOption) gin.HandlerFunc {
	skip := make(map[string]struct{})
	for _, opt := range opts {
		opt(skip)
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if _, ok := skip[route]; ok && route != "" {
			c.Next()
			return
		}
		if route == "" {
			route = unmatchedPath
		}

		timer := NewTimer(metrics)
		c.Next()

		metrics.RecordHTTPRequest(
			c.Request.Method,
			route,
			strconv.Itoa(c.Writer.Status()),
			timer.Elapsed(),
			nonNegative(c.Request.ContentLength),
			nonNegative(int64(c.Writer.Size())),
		)
	}
}

func nonNegative(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// Timer measures one render
type Timer struct {
	start   time.Time
	metrics *Metrics
}

// NewTimer starts a timer. A nil metrics still measures; Stop records
// nothing.
func NewTimer(metrics *Metrics) *Timer {
	return &Timer{start: time.Now(), metrics: metrics}
}

// Elapsed reports the time since the timer started
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// Stop records the render outcome and returns its duration.
func (t *Timer) Stop(outcome string) time.Duration {
	d := t.Elapsed()
	t.metrics.RecordRender(outcome, d)
	return d
}
