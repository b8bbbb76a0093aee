package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Cache stores resolved destinations by normalized volume key.
// Implementations treat their own failures as misses.
type Cache interface {
	Get(ctx context.Context, key string) (Destination, bool)
	Set(ctx context.Context, key string, d Destination)
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (Destination, bool) { return Destination{}, false }
func (NopCache) Set(context.Context, string, Destination)        {}

// LRUCache is an in-process cache with a fixed capacity and per-entry TTL.
type LRUCache struct {
	lru *expirable.LRU[string, Destination]
}

// NewLRUCache returns a cache holding at most size entries for ttl each.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 10000
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &LRUCache{lru: expirable.NewLRU[string, Destination](size, nil, ttl)}
}

func (c *LRUCache) Get(_ context.Context, key string) (Destination, bool) {
	return c.lru.Get(key)
}

func (c *LRUCache) Set(_ context.Context, key string, d Destination) {
	c.lru.Add(key, d)
}

// Len returns the number of live entries.
func (c *LRUCache) Len() int {
	return c.lru.Len()
}

// RedisCache shares resolved destinations across server replicas.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisCache returns a cache storing JSON values under prefix+key.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		client:  client,
		prefix:  "crossdock:destination:",
		ttl:     ttl,
		timeout: DefaultCacheTimeout,
		logger:  logger,
	}
}

// WithTimeout overrides the per-call bound applied to Get and Set.
func (c *RedisCache) WithTimeout(d time.Duration) *RedisCache {
	if d > 0 {
		c.timeout = d
	}
	return c
}

func (c *RedisCache) Get(ctx context.Context, key string) (Destination, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("destination cache read failed", "key", key, "error", err)
		}
		return Destination{}, false
	}
	var d Destination
	if err := json.Unmarshal(data, &d); err != nil {
		c.logger.Warn("destination cache entry corrupt", "key", key, "error", err)
		return Destination{}, false
	}
	return d, true
}

func (c *RedisCache) Set(ctx context.Context, key string, d Destination) {
	data, err := json.Marshal(d)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("destination cache write failed", "key", key, "error", err)
	}
}
