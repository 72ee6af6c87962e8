// Package cache stores reduced script responses between renders.
//
// Entries carry the cache id of the render that wrote them. The request
// layer compares it with the current render's id to tell fresh downloads
// from cache hits.
package cache

import (
	"context"
	"net/http"
	"time"
)

// Entry is the reduced form of a response kept in a store.
type Entry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body"`
	CacheID  string      `json:"cache_id,omitempty"`
	StoredAt time.Time   `json:"stored_at"`
}

// Clone returns a copy that does not share header or body storage.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)
	return &c
}

// Store is a response cache plugin.
type Store interface {
	// Get returns the entry for key. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) (*Entry, bool, error)
	// Set stores e under key for ttl. A zero ttl means DefaultExpiration.
	Set(ctx context.Context, key string, e *Entry, ttl time.Duration) error
	// DefaultExpiration is the ttl used when the caller has none.
	DefaultExpiration() time.Duration
	Close() error
}

// Key builds the store key for a GET of url.
func Key(url string) string {
	return "GET " + url
}
