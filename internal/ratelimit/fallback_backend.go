package ratelimit

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumeris/hub/internal/logging"
	"github.com/lumeris/hub/internal/metrics"
)

// FallbackBackend wraps a primary Backend (typically Redis) with an in-memory
// local token bucket fallback. When the primary backend returns an error, it
// degrades to local rate limiting and periodically probes the primary to
// restore distributed behaviour once connectivity recovers.
type FallbackBackend struct {
	primary       Backend
	local         *LocalTokenBucketBackend
	degraded      atomic.Bool
	probeMu       sync.Mutex
	lastProbeTime atomic.Int64 // unix nanos
}

// NewFallbackBackend creates a rate-limit backend that falls back to local
// in-memory token buckets when the primary backend is unavailable. A nil
// primary starts degraded and never probes.
func NewFallbackBackend(primary Backend) *FallbackBackend {
	fb := &FallbackBackend{
		primary: primary,
		local:   NewLocalTokenBucketBackend(),
	}
	if primary == nil {
		fb.degraded.Store(true)
	}
	metrics.SetRateLimitDegraded(fb.degraded.Load())
	return fb
}

// probeInterval is the minimum time between health probes of the primary backend.
const probeInterval = 5 * time.Second

const probeKey = "probe:health"

func (f *FallbackBackend) CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	if f.degraded.Load() {
		if f.primary != nil && time.Since(time.Unix(0, f.lastProbeTime.Load())) > probeInterval {
			go f.probeAndRecover(context.WithoutCancel(ctx))
		}
		return f.local.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	}

	allowed, remaining, err := f.primary.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	if err != nil {
		if f.degraded.CompareAndSwap(false, true) {
			logging.Component("ratelimit").Warn("primary backend error, degrading to local buckets", "error", err)
			metrics.SetRateLimitDegraded(true)
		}
		f.lastProbeTime.Store(time.Now().UnixNano())
		return f.local.CheckRateLimit(ctx, key, maxTokens, refillRate, requested)
	}
	return allowed, remaining, nil
}

func (f *FallbackBackend) probeAndRecover(ctx context.Context) {
	if !f.probeMu.TryLock() {
		return
	}
	defer f.probeMu.Unlock()

	f.lastProbeTime.Store(time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, _, err := f.primary.CheckRateLimit(ctx, probeKey, 1000, 1000, 0); err == nil {
		logging.Component("ratelimit").Info("primary backend recovered, resuming distributed mode")
		f.degraded.Store(false)
		metrics.SetRateLimitDegraded(false)
	}
}

// Degraded reports whether the backend is currently in degraded (local) mode.
func (f *FallbackBackend) Degraded() bool {
	return f.degraded.Load()
}

// LocalTokenBucketBackend implements Backend using in-memory token buckets.
type LocalTokenBucketBackend struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	now     func() time.Time
}

type localBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewLocalTokenBucketBackend creates a local in-memory token bucket backend.
func NewLocalTokenBucketBackend() *LocalTokenBucketBackend {
	return &LocalTokenBucketBackend{
		buckets: make(map[string]*localBucket),
		now:     time.Now,
	}
}

func (l *LocalTokenBucketBackend) CheckRateLimit(_ context.Context, key string, maxTokens int, refillRate float64, requested int) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{
			tokens:     float64(maxTokens),
			lastRefill: now,
		}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(float64(maxTokens), b.tokens+elapsed*refillRate)
		b.lastRefill = now
	}

	if b.tokens >= float64(requested) {
		b.tokens -= float64(requested)
		return true, int(b.tokens), nil
	}
	return false, int(b.tokens), nil
}
