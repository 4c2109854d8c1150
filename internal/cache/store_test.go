package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedCache is a shared backend whose failures are controlled by the test.
type scriptedCache struct {
	*InMemoryCache
	mu      sync.Mutex
	failing bool
	pings   atomic.Int32
}

var errBackendDown = errors.New("backend down")

func newScriptedCache(failing bool) *scriptedCache {
	return &scriptedCache{InMemoryCache: NewInMemoryCache(), failing: failing}
}

func (s *scriptedCache) setFailing(v bool) {
	s.mu.Lock()
	s.failing = v
	s.mu.Unlock()
}

func (s *scriptedCache) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errBackendDown
	}
	return nil
}

func (s *scriptedCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.err(); err != nil {
		return nil, err
	}
	return s.InMemoryCache.Get(ctx, key)
}

func (s *scriptedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.err(); err != nil {
		return err
	}
	return s.InMemoryCache.Set(ctx, key, value, ttl)
}

func (s *scriptedCache) Delete(ctx context.Context, key string) error {
	if err := s.err(); err != nil {
		return err
	}
	return s.InMemoryCache.Delete(ctx, key)
}

func (s *scriptedCache) Ping(ctx context.Context) error {
	s.pings.Add(1)
	return s.err()
}

func newTestStore(t *testing.T, shared Cache, cfg StoreConfig) *Store {
	t.Helper()
	s := NewStore(NewInMemoryCache(), shared, cfg)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_NoSharedBackendStartsInFallback(t *testing.T) {
	s := newTestStore(t, nil, StoreConfig{})
	if s.Mode() != ModeFallback {
		t.Fatalf("expected fallback mode, got %s", s.Mode())
	}

	ctx := context.Background()
	if !s.Set(ctx, "k", []byte("v"), time.Minute) {
		t.Fatal("Set on fallback failed")
	}
	val, ok := s.Get(ctx, "k")
	if !ok || string(val) != "v" {
		t.Fatalf("expected hit 'v', got %q, %v", val, ok)
	}
	st := s.Stats(ctx)
	if st.Backend != BackendMemory || st.Size != 1 || len(st.Keys) != 1 || st.Keys[0] != "k" {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestStore_ConnectSwitchesToShared(t *testing.T) {
	shared := newScriptedCache(false)
	s := newTestStore(t, shared, StoreConfig{ConnectTimeout: time.Second})
	if s.Mode() != ModeConnecting {
		t.Fatalf("expected connecting mode, got %s", s.Mode())
	}

	// Writes before the connection settles land in the fallback.
	ctx := context.Background()
	s.Set(ctx, "early", []byte("x"), time.Minute)

	if got := s.ConnectSync(ctx); got != ModeShared {
		t.Fatalf("expected shared mode, got %s", got)
	}
	s.Set(ctx, "k", []byte("v"), time.Minute)
	if _, err := shared.InMemoryCache.Get(ctx, "k"); err != nil {
		t.Fatalf("write did not reach the shared backend: %v", err)
	}
	if st := s.Stats(ctx); st.Backend != BackendRedis || st.Keys != nil {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestStore_AsyncConnect(t *testing.T) {
	s := newTestStore(t, newScriptedCache(false), StoreConfig{ConnectTimeout: time.Second})
	s.Connect(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for s.Mode() != ModeShared {
		if time.Now().After(deadline) {
			t.Fatalf("store never reached shared mode, stuck in %s", s.Mode())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStore_ConnectFailureFallsBack(t *testing.T) {
	s := newTestStore(t, newScriptedCache(true), StoreConfig{ConnectTimeout: time.Second})
	if got := s.ConnectSync(context.Background()); got != ModeFallback {
		t.Fatalf("expected fallback mode, got %s", got)
	}
	ctx := context.Background()
	if !s.Set(ctx, "k", []byte("v"), time.Minute) {
		t.Fatal("Set on fallback failed")
	}
	if !s.Has(ctx, "k") {
		t.Fatal("expected key in fallback")
	}
}

func TestStore_OperationErrorDegradesWithoutFailingCaller(t *testing.T) {
	shared := newScriptedCache(false)
	s := newTestStore(t, shared, StoreConfig{ConnectTimeout: time.Second})
	ctx := context.Background()
	s.ConnectSync(ctx)

	shared.setFailing(true)
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatal("expected miss from failing backend")
	}
	if s.Mode() != ModeFallback {
		t.Fatalf("expected fallback after backend error, got %s", s.Mode())
	}

	// Subsequent operations are served by the fallback.
	if !s.Set(ctx, "k", []byte("v"), time.Minute) {
		t.Fatal("Set after degrade failed")
	}
	if val, ok := s.Get(ctx, "k"); !ok || string(val) != "v" {
		t.Fatalf("expected fallback hit, got %q, %v", val, ok)
	}
}

func TestStore_DeleteAlsoClearsFallbackCopy(t *testing.T) {
	shared := newScriptedCache(false)
	s := newTestStore(t, shared, StoreConfig{})
	ctx := context.Background()

	s.Set(ctx, "k", []byte("stale"), time.Minute) // lands in fallback
	s.ConnectSync(ctx)
	s.Set(ctx, "k", []byte("fresh"), time.Minute)
	s.Delete(ctx, "k")

	shared.setFailing(true)
	s.Get(ctx, "k") // degrade
	if _, ok := s.Get(ctx, "k"); ok {
		t.Fatal("deleted key resurrected from the fallback")
	}
}

func TestStore_RecoveryProbe(t *testing.T) {
	shared := newScriptedCache(false)
	s := newTestStore(t, shared, StoreConfig{ConnectTimeout: time.Second, RecoveryInterval: time.Millisecond})
	ctx := context.Background()
	s.ConnectSync(ctx)

	shared.setFailing(true)
	s.Get(ctx, "k")
	if s.Mode() != ModeFallback {
		t.Fatalf("expected fallback, got %s", s.Mode())
	}
	s.Set(ctx, "degraded-write", []byte("x"), time.Minute)

	shared.setFailing(false)
	deadline := time.Now().Add(2 * time.Second)
	for s.Mode() != ModeShared {
		if time.Now().After(deadline) {
			t.Fatal("store never recovered to shared mode")
		}
		time.Sleep(5 * time.Millisecond)
		s.Has(ctx, "k") // drives the probe
	}
	if n, _ := s.local.Len(ctx); n != 0 {
		t.Fatalf("expected fallback emptied on recovery, has %d entries", n)
	}
}

func TestStore_NoRecoveryByDefault(t *testing.T) {
	shared := newScriptedCache(false)
	s := newTestStore(t, shared, StoreConfig{ConnectTimeout: time.Second})
	ctx := context.Background()
	s.ConnectSync(ctx)

	shared.setFailing(true)
	s.Get(ctx, "k")
	shared.setFailing(false)
	pings := shared.pings.Load()
	for i := 0; i < 10; i++ {
		s.Get(ctx, "k")
	}
	time.Sleep(20 * time.Millisecond)
	if s.Mode() != ModeFallback {
		t.Fatalf("expected to stay in fallback, got %s", s.Mode())
	}
	if shared.pings.Load() != pings {
		t.Fatal("backend probed with recovery disabled")
	}
}

func TestStore_ClearEmptiesBothBackends(t *testing.T) {
	shared := newScriptedCache(false)
	s := newTestStore(t, shared, StoreConfig{})
	ctx := context.Background()

	s.Set(ctx, "a", []byte("1"), time.Minute)
	s.ConnectSync(ctx)
	s.Set(ctx, "b", []byte("2"), time.Minute)

	if !s.Clear(ctx) {
		t.Fatal("Clear failed")
	}
	if n, _ := shared.Len(ctx); n != 0 {
		t.Fatalf("shared backend not cleared: %d", n)
	}
	if n, _ := s.local.Len(ctx); n != 0 {
		t.Fatalf("fallback not cleared: %d", n)
	}
}

func TestStore_SetAfterCloseReportsFailure(t *testing.T) {
	s := NewStore(NewInMemoryCache(), nil, StoreConfig{})
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if s.Set(context.Background(), "k", []byte("v"), time.Minute) {
		t.Fatal("Set on a closed store reported success")
	}
}

func TestModeString(t *testing.T) {
	cases := map[Mode]string{ModeConnecting: "connecting", ModeShared: "shared", ModeFallback: "fallback", Mode(9): "unknown"}
	for m, want := range cases {
		if m.String() != want {
			t.Errorf("Mode(%d).String() = %q, want %q", m, m.String(), want)
		}
	}
}
