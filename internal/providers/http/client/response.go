package client

import (
	"io"
	"net/http"
	"time"

	"github.com/GriffinCanCode/AgentOS/ssr/internal/providers/http/cache"
)

// Provenance labels
const (
	ProvenanceNew     = "new request"
	ProvenanceCache   = "cache"
	ProvenanceUnknown = "unknown"
)

// Response is a finished GET. Body is set for buffered requests, Stream for
// unbuffered ones; the caller must close Stream.
type Response struct {
	URL       string
	Status    int
	Header    http.Header
	Body      []byte
	Stream    io.ReadCloser
	CacheID   string
	FromCache bool
	Duration  time.Duration

	raw *http.Response
}

// Raw returns the underlying response of the last attempt, if any.
func (r *Response) Raw() *http.Response {
	return r.raw
}

// Provenance classifies resp against the current render's cache id: stamped
// by this render is "new request", by another render "cache", and a missing
// id on either side "unknown".
func Provenance(resp *Response, currentCacheID string) string {
	if resp == nil || resp.CacheID == "" || currentCacheID == "" {
		return ProvenanceUnknown
	}
	if resp.CacheID == currentCacheID {
		return ProvenanceNew
	}
	return ProvenanceCache
}

// Reduce is the default prune step: it keeps what a later render needs to
// reuse the response.
func Reduce(resp *Response) *cache.Entry {
	header := make(http.Header)
	for _, k := range []string{"Content-Type", "Etag", "Last-Modified", "Cache-Control"} {
		if v := resp.Header.Values(k); len(v) > 0 {
			header[k] = append([]string(nil), v...)
		}
	}
	return &cache.Entry{
		Status:   resp.Status,
		Header:   header,
		Body:     resp.Body,
		StoredAt: time.Now().UTC(),
	}
}

func fromEntry(url string, e *cache.Entry) *Response {
	return &Response{
		URL:       url,
		Status:    e.Status,
		Header:    e.Header,
		Body:      e.Body,
		CacheID:   e.CacheID,
		FromCache: true,
	}
}
