package scope

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Cache stores resolved scopes for a short TTL. Cached scope must never
// outlive more than one logical request window, so TTLs are a few seconds.
type Cache interface {
	Get(ctx context.Context, key string) (Scope, bool)
	Set(ctx context.Context, key string, scope Scope)
}

// RedisCache caches resolved scopes in Redis, shared across instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed scope cache.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get fetches a cached scope. Any Redis or decode failure is treated as a
// miss; authorization must not depend on cache availability.
func (c *RedisCache) Get(ctx context.Context, key string) (Scope, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return Scope{}, false
	}
	var s Scope
	if err := json.Unmarshal(data, &s); err != nil {
		return Scope{}, false
	}
	return s, true
}

// Set stores a resolved scope with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, scope Scope) {
	data, err := json.Marshal(scope)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, data, c.ttl)
}

// MemoryCache is a process-local fallback used when Redis is not configured.
type MemoryCache struct {
	ttl     time.Duration
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	scope     Scope
	expiresAt time.Time
}

// NewMemoryCache creates an in-process scope cache.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{ttl: ttl, entries: make(map[string]memoryEntry)}
}

// Get fetches a cached scope if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) (Scope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		return Scope{}, false
	}
	return entry.scope, true
}

// Set stores a resolved scope with the configured TTL.
func (c *MemoryCache) Set(_ context.Context, key string, scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{scope: scope, expiresAt: time.Now().Add(c.ttl)}
}
