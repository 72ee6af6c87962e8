// Package loader fetches the bytes of scripts and other sub-resources for a
// render.
//
// Two variants share one contract. Network downloads through the cached,
// retrying request layer with one agent per upstream host. File reads from a
// fixed root directory. Both return the shared Empty result once closed, and
// both decode data: URLs inline.
package loader

import (
	"errors"
	"net/http"
	"strings"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/ssr/internal/shared/future"
	"go.uber.org/zap"
)

// ErrMissingRoot is returned by NewFile without a root directory.
var ErrMissingRoot = errors.New("file resource loader requires a root directory")

// Empty is the shared empty result. It is never nil, which distinguishes it
// from a missing resource.
var Empty = []byte{}

var emptyResult = future.Resolved(Empty)

// FetchOptions describe why a resource is fetched.
type FetchOptions struct {
	// Element is the lower-case tag name of the requesting element, if any.
	Element string
	// Headers are forwarded to the upstream request.
	Headers map[string]string
}

// ResourceLoader fetches resources for one render.
type ResourceLoader interface {
	// Fetch resolves to the resource bytes. A nil future, or a nil slice,
	// means the loader could not provide the resource.
	Fetch(url string, opts FetchOptions) *future.Future[[]byte]
	// Close makes the loader inactive and releases pooled connections.
	Close() error
	IsActive() bool
}

var scriptSuffixes = []string{".js", ".mjs", ".cjs"}

// IsScript reports whether a fetch is for executable script.
func IsScript(rawURL string, opts FetchOptions) bool {
	if opts.Element == "script" {
		return true
	}
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, s := range scriptSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// closedFetch is the shared post-close path.
func closedFetch(logger *logging.Logger, rawURL string) *future.Future[[]byte] {
	if !IsDataURL(rawURL) {
		logger.Warn("File fetch attempted after resource loader close: " + rawURL)
	}
	return emptyResult
}

func neverUsed(logger *logging.Logger, rawURL string) []byte {
	logger.Info("File requested but never used: " + rawURL)
	return Empty
}

// hop-by-hop and framing headers of the incoming request are not forwarded
var skippedHeaders = map[string]bool{
	"Host":              true,
	"Connection":        true,
	"Content-Length":    true,
	"Content-Type":      true,
	"Accept-Encoding":   true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Te":                true,
	"Trailer":           true,
	"Keep-Alive":        true,
	"X-Ssr-Secret":      true,
}

func forwardHeaders(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		if skippedHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		out[k] = v
	}
	return out
}

func loggerOrNop(l *logging.Logger) *logging.Logger {
	if l == nil {
		return logging.NewNop()
	}
	return l
}

func urlField(u string) zap.Field { return zap.String("url", u) }
