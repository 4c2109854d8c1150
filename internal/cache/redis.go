package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "lumeris:"
	scanBatch        = 500
)

// RedisCache implements Cache backed by Redis. It is the shared backend:
// every process pointed at the same Redis sees the same entries, and expiry
// is delegated to Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// RedisCacheConfig holds configuration for the Redis cache.
type RedisCacheConfig struct {
	Addr      string // Redis address (e.g. "localhost:6379")
	Password  string // Redis password
	DB        int    // Redis database number
	KeyPrefix string // Key prefix for namespacing (default: "lumeris:")
}

// NewRedisCache creates a new Redis-backed cache. No connection is made
// until the first command.
func NewRedisCache(cfg RedisCacheConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisCacheFromClient(client, cfg.KeyPrefix)
}

// NewRedisCacheFromClient creates a Redis cache using an existing client.
func NewRedisCacheFromClient(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisCache{
		client: client,
		prefix: prefix,
	}
}

// Client returns the underlying client so other components can share the
// connection pool.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.key(key), value, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear deletes every key under the prefix. Keys outside the namespace are
// left alone, so the Redis instance can be shared with other services.
func (c *RedisCache) Clear(ctx context.Context) error {
	return c.scan(ctx, func(keys []string) error {
		return c.client.Unlink(ctx, keys...).Err()
	})
}

// Len counts the keys under the prefix.
func (c *RedisCache) Len(ctx context.Context) (int, error) {
	n := 0
	err := c.scan(ctx, func(keys []string) error {
		n += len(keys)
		return nil
	})
	return n, err
}

func (c *RedisCache) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
