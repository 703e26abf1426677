package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores resolved word codes. Implementations must be safe for
// concurrent use; errors are logged by the Resolver and otherwise ignored.
type Cache interface {
	Get(ctx context.Context, words string) (Resolved, bool, error)
	Set(ctx context.Context, words string, value Resolved, ttl time.Duration) error
}

// RedisCache keeps resolved word codes in Redis as JSON strings.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache wraps an existing client. Keys are stored as prefix+words.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "proximity:w3w:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

// OpenRedisCache connects to addr. An empty addr returns nil, meaning no cache.
func OpenRedisCache(addr, password string, db int) *RedisCache {
	if addr == "" {
		return nil
	}
	return NewRedisCache(redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}), "")
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, words string) (Resolved, bool, error) {
	s, err := c.client.Get(ctx, c.prefix+words).Result()
	if errors.Is(err, redis.Nil) {
		return Resolved{}, false, nil
	}
	if err != nil {
		return Resolved{}, false, fmt.Errorf("redis get: %w", err)
	}
	var v Resolved
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return Resolved{}, false, fmt.Errorf("decode cached value: %w", err)
	}
	return v, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, words string, value Resolved, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+words, string(b), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// DefaultMemoryEntries caps a MemoryCache created by NewMemoryCache.
const DefaultMemoryEntries = 10000

// MemoryCache is an in-process Cache holding at most limit entries. Expired
// entries are dropped on read and swept when the cache is full.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	limit   int
	now     func() time.Time
}

type memoryEntry struct {
	value   Resolved
	expires time.Time
}

// NewMemoryCache creates an empty in-process cache of DefaultMemoryEntries.
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheSize(DefaultMemoryEntries)
}

// NewMemoryCacheSize creates an empty in-process cache holding at most
// limit entries; limit < 1 means DefaultMemoryEntries.
func NewMemoryCacheSize(limit int) *MemoryCache {
	if limit < 1 {
		limit = DefaultMemoryEntries
	}
	return &MemoryCache{entries: make(map[string]memoryEntry), limit: limit, now: time.Now}
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, words string) (Resolved, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[words]
	if !ok {
		return Resolved{}, false, nil
	}
	if e.expired(c.now()) {
		delete(c.entries, words)
		return Resolved{}, false, nil
	}
	return e.value, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, words string, value Resolved, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, ok := c.entries[words]; !ok && len(c.entries) >= c.limit {
		c.makeRoomLocked(now)
	}

	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	c.entries[words] = e
	return nil
}

// makeRoomLocked drops expired entries, and if none were, the entry closest
// to expiry. Entries without a TTL go last.
func (c *MemoryCache) makeRoomLocked(now time.Time) {
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			continue
		}
		if victim == "" || (!e.expires.IsZero() && (soonest.IsZero() || e.expires.Before(soonest))) {
			victim, soonest = k, e.expires
		}
	}
	if len(c.entries) >= c.limit && victim != "" {
		delete(c.entries, victim)
	}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}
