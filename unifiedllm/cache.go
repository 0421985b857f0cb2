package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores completed responses keyed by Request.CacheKey.
type Cache interface {
	Get(ctx context.Context, key string) (*Response, bool, error)
	Set(ctx context.Context, key string, resp *Response) error
}

// MemoryCache is an in-process Cache. It is safe for concurrent use.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Response
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]Response)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Response, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	resp, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &resp, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, resp *Response) error {
	if resp == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = *resp
	return nil
}

// Len returns the number of cached responses.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache stores responses as JSON strings in Redis.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithCachePrefix sets the key prefix. Defaults to "draftloop:completion:".
func WithCachePrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) { c.prefix = prefix }
}

// WithCacheTTL sets the expiry of cached entries. Zero keeps them forever.
func WithCacheTTL(ttl time.Duration) RedisCacheOption {
	return func(c *RedisCache) { c.ttl = ttl }
}

// NewRedisCache wraps an existing Redis client.
func NewRedisCache(rdb *redis.Client, opts ...RedisCacheOption) (*RedisCache, error) {
	if rdb == nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "redis client is required"}}
	}
	c := &RedisCache{rdb: rdb, prefix: "draftloop:completion:", ttl: 24 * time.Hour}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Response, bool, error) {
	raw, err := c.rdb.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, false, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, resp *Response) error {
	if resp == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
