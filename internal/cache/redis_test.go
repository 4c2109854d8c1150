package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping: %v", err)
	}
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return NewRedisCacheFromClient(client, "lumeris-test:")
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	val, err := c.Get(ctx, "k")
	if err != nil || string(val) != "v" {
		t.Fatalf("Get = %q, %v", val, err)
	}
	ttl := c.Client().TTL(ctx, "lumeris-test:k").Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL %v", ttl)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisCache_ClearOnlyTouchesPrefix(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	c.Client().Set(ctx, "foreign:key", "x", time.Minute)
	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, k, []byte(k), time.Minute)
	}
	if n, err := c.Len(ctx); err != nil || n != 3 {
		t.Fatalf("Len = %d, %v", n, err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n, _ := c.Len(ctx); n != 0 {
		t.Fatalf("expected empty cache, got %d", n)
	}
	if c.Client().Exists(ctx, "foreign:key").Val() != 1 {
		t.Fatal("Clear removed a key outside the prefix")
	}
}

func TestStore_WithRedis(t *testing.T) {
	c := newTestRedisCache(t)
	s := NewStore(NewInMemoryCache(), c, StoreConfig{ConnectTimeout: time.Second})
	defer s.local.Close()
	ctx := context.Background()

	if s.ConnectSync(ctx) != ModeShared {
		t.Fatalf("expected shared mode, got %s", s.Mode())
	}
	s.Set(ctx, "k", []byte("v"), time.Minute)
	if st := s.Stats(ctx); st.Backend != BackendRedis || st.Size != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}
