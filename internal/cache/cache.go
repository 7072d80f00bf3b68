// Package cache defines the key-value side channel used by the realtime
// read path, plus an in-process implementation. The pipeline only ever
// uses the cache best-effort: a miss or an error falls through to the
// database, and invalidation failures never fail an ingest.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is the narrow port the services depend on. A distributed
// implementation (e.g. Redis) can be swapped in behind it without
// touching the services.
type Cache interface {
	// Get returns the value for key and whether it was present and fresh.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for at most ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local TTL cache. Safe for concurrent use.
type Memory struct {
	mu sync.Mutex
	m  map[string]entry
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]entry)}
}

// Get implements Cache. Expired entries are removed on access.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expiresAt) {
		delete(c.m, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache. A ttl <= 0 stores nothing.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete implements Cache.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}
