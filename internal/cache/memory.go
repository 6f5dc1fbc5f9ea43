package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache is an in-process Cache used for tests and for deployments
// running without a Redis server. Expiry is checked lazily on Get.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	defaultTTL time.Duration
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache. defaultTTL <= 0 falls back to
// DefaultTTL.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		defaultTTL: defaultTTL,
	}
}

// Get retrieves a value. Returns ErrMiss when absent or expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, ErrMiss
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set stores a value with the given TTL (defaultTTL when ttl <= 0).
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: stored, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Delete removes a single key.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// InvalidateByPrefix removes all keys starting with prefix in one critical
// section, so readers never observe a partial invalidation.
func (c *MemoryCache) InvalidateByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len reports the number of live entries. Test helper.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
