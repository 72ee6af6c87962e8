package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Memory is a process-local store with per-entry expiry.
type Memory struct {
	items      *ttlcache.Cache[string, *Entry]
	defaultTTL time.Duration
}

// NewMemory creates a memory store and starts its expiry loop.
func NewMemory(defaultTTL time.Duration) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	items := ttlcache.New[string, *Entry](
		ttlcache.WithTTL[string, *Entry](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, *Entry](),
	)
	go items.Start()

	return &Memory{items: items, defaultTTL: defaultTTL}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (*Entry, bool, error) {
	item := m.items.Get(key)
	if item == nil {
		return nil, false, nil
	}
	return item.Value().Clone(), true, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, e *Entry, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	m.items.Set(key, e.Clone(), ttl)
	return nil
}

// DefaultExpiration implements Store.
func (m *Memory) DefaultExpiration() time.Duration {
	return m.defaultTTL
}

// Len returns the number of live entries.
func (m *Memory) Len() int {
	return m.items.Len()
}

// Close stops the expiry loop.
func (m *Memory) Close() error {
	m.items.Stop()
	return nil
}
