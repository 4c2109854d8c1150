package cache

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// InMemoryCache is the in-process fallback backend.
//
// Expiry deadlines are kept in a min-heap drained by a single sweeper
// goroutine, which sleeps until the earliest deadline. Replacing a key fixes
// its heap slot in place, so a superseded deadline can never evict the newer
// value. Reads also compare against the stored deadline, so an entry is never
// served past its TTL even if the sweeper runs late.
type InMemoryCache struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]*memEntry
	expiry  expiryHeap
	closed  bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

type memEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
	index     int       // position in expiry heap, -1 when not scheduled
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// InMemoryOption configures an InMemoryCache.
type InMemoryOption func(*InMemoryCache)

// WithClock sets the clock used for deadlines and the sweeper.
func WithClock(clock clockwork.Clock) InMemoryOption {
	return func(c *InMemoryCache) {
		c.clock = clock
	}
}

// NewInMemoryCache creates an in-memory cache and starts its sweeper.
func NewInMemoryCache(opts ...InMemoryOption) *InMemoryCache {
	c := &InMemoryCache{
		clock:   clockwork.NewRealClock(),
		entries: make(map[string]*memEntry),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop()
	return c
}

func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	if entry.expired(c.clock.Now()) {
		c.removeLocked(entry)
		return nil, ErrNotFound
	}
	cp := make([]byte, len(entry.value))
	copy(cp, entry.value)
	return cp, nil
}

func (c *InMemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.clock.Now().Add(ttl)
	}
	cp := make([]byte, len(value))
	copy(cp, value)

	entry, ok := c.entries[key]
	if !ok {
		entry = &memEntry{key: key, index: -1}
		c.entries[key] = entry
	}
	entry.value = cp
	entry.expiresAt = expiresAt

	switch {
	case expiresAt.IsZero() && entry.index >= 0:
		heap.Remove(&c.expiry, entry.index)
	case expiresAt.IsZero():
	case entry.index >= 0:
		heap.Fix(&c.expiry, entry.index)
	default:
		heap.Push(&c.expiry, entry)
	}
	if entry.index == 0 {
		c.signal()
	}
	return nil
}

func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		c.removeLocked(entry)
	}
	return nil
}

func (c *InMemoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return ok && !entry.expired(c.clock.Now()), nil
}

// Clear drops every entry together with its pending expiry.
func (c *InMemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.entries = make(map[string]*memEntry)
	c.expiry = nil
	return nil
}

func (c *InMemoryCache) Len(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	n := 0
	for _, entry := range c.entries {
		if !entry.expired(now) {
			n++
		}
	}
	return n, nil
}

// Keys returns the live keys in lexical order.
func (c *InMemoryCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	keys := make([]string, 0, len(c.entries))
	for key, entry := range c.entries {
		if !entry.expired(now) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (c *InMemoryCache) Ping(_ context.Context) error { return nil }

func (c *InMemoryCache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.entries = make(map[string]*memEntry)
	c.expiry = nil
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return nil
}

func (c *InMemoryCache) removeLocked(entry *memEntry) {
	if entry.index >= 0 {
		heap.Remove(&c.expiry, entry.index)
	}
	delete(c.entries, entry.key)
}

func (c *InMemoryCache) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// evictExpiredLocked pops every due entry and returns the wait until the next
// deadline, or 0 when nothing is scheduled.
func (c *InMemoryCache) evictExpiredLocked(now time.Time) time.Duration {
	for len(c.expiry) > 0 {
		next := c.expiry[0]
		if !next.expired(now) {
			return next.expiresAt.Sub(now)
		}
		heap.Pop(&c.expiry)
		delete(c.entries, next.key)
	}
	return 0
}

func (c *InMemoryCache) sweepLoop() {
	defer close(c.done)
	for {
		c.mu.Lock()
		wait := c.evictExpiredLocked(c.clock.Now())
		c.mu.Unlock()

		var (
			timer  clockwork.Timer
			firing <-chan time.Time
		)
		if wait > 0 {
			timer = c.clock.NewTimer(wait)
			firing = timer.Chan()
		}

		select {
		case <-c.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-c.wake:
		case <-firing:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// expiryHeap orders scheduled entries by deadline.
type expiryHeap []*memEntry

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].expiresAt.Before(h[j].expiresAt) }

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	entry := x.(*memEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[:n-1]
	return entry
}
