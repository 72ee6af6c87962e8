// Package id mints identifiers for requests, spans and cache entries.
//
// Request and span ids are ULIDs, so log lines from one gateway instance
// sort by arrival time. Request ids carry a "req_" prefix. Cache ids are
// random UUIDs; they only need to be unique.
package id

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RequestPrefix marks ids minted for inbound gateway requests
const RequestPrefix = "req"

// RequestID identifies one inbound gateway request
type RequestID string

func (r RequestID) String() string { return string(r) }

// CacheID identifies the render that wrote a cache entry
type CacheID string

func (c CacheID) String() string { return string(c) }

// Generator mints monotonic ULIDs. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewGenerator returns a generator reading crypto/rand
func NewGenerator() *Generator {
	return &Generator{entropy: ulid.Monotonic(rand.Reader, 0), now: time.Now}
}

var shared = sync.OnceValue(NewGenerator)

// Generate mints the next ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// Prefixed mints a ULID rendered as "<prefix>_<ulid>"
func (g *Generator) Prefixed(prefix string) string {
	return prefix + "_" + g.Generate().String()
}

// NewRequestID mints a req_ ULID
func NewRequestID() RequestID {
	return RequestID(shared().Prefixed(RequestPrefix))
}

// NewSpanID mints an unprefixed ULID for a trace span
func NewSpanID() string {
	return shared().Generate().String()
}

// NewCacheID mints a random UUID
func NewCacheID() CacheID {
	return CacheID(uuid.NewString())
}

// IsValid reports whether s is a ULID, optionally behind a "prefix_".
func IsValid(s string) bool {
	if _, rest, ok := strings.Cut(s, "_"); ok {
		s = rest
	}
	_, err := ulid.ParseStrict(s)
	return err == nil
}
