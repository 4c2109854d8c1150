package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills, checks and debits one bucket atomically and
// returns {allowed (0/1), remaining tokens}. Time is read from the Redis
// server so instances with skewed clocks share one refill schedule.
//
// Keys: KEYS[1] = bucket key
// Args: ARGV[1] = max_tokens, ARGV[2] = refill_rate (tokens/s), ARGV[3] = requested
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local max_tokens = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local requested = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = tonumber(t[1]) * 1000000 + tonumber(t[2])

local bucket = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(bucket[1])
local last_refill = tonumber(bucket[2])
if tokens == nil then
    tokens = max_tokens
    last_refill = now
end

local elapsed = (now - last_refill) / 1000000.0
if elapsed > 0 then
    tokens = math.min(max_tokens, tokens + elapsed * refill_rate)
end

local allowed = 0
if tokens >= requested then
    tokens = tokens - requested
    allowed = 1
end

redis.call("HSET", key, "tokens", tostring(tokens), "last_refill", tostring(now))
local ttl = math.ceil(max_tokens / refill_rate * 2)
if ttl < 60 then ttl = 60 end
redis.call("EXPIRE", key, ttl)

return {allowed, math.floor(tokens)}
`)

// RedisBackend implements Backend with a Lua token bucket in Redis, so every
// instance sharing the Redis enforces one budget per key.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a Redis-backed rate limiting backend. Keys are
// stored under prefix + "rl:".
func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "lumeris:"
	}
	return &RedisBackend{
		client: client,
		prefix: prefix + "rl:",
	}
}

func (b *RedisBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	result, err := tokenBucketScript.Run(ctx, b.client, []string{b.prefix + key},
		maxTokens, refillRate, requested,
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis rate limit check: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("redis rate limit check: unexpected result length %d", len(result))
	}
	return result[0] == 1, int(result[1]), nil
}
