package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lumeris/hub/internal/logging"
	"github.com/lumeris/hub/internal/metrics"
)

// Mode is the backend selection state of a Store.
type Mode int32

const (
	// ModeConnecting: the shared backend is being dialed; the fallback serves.
	ModeConnecting Mode = iota
	// ModeShared: the shared backend serves every operation.
	ModeShared
	// ModeFallback: the shared backend failed; the fallback serves.
	ModeFallback
)

func (m Mode) String() string {
	switch m {
	case ModeConnecting:
		return "connecting"
	case ModeShared:
		return "shared"
	case ModeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Backend names reported by Stats and used as metric labels.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// StoreConfig controls the shared backend lifecycle.
type StoreConfig struct {
	// ConnectTimeout bounds the startup ping of the shared backend.
	ConnectTimeout time.Duration
	// RecoveryInterval, when positive, lets a store in fallback mode probe the
	// shared backend at most this often and switch back once it answers.
	// Zero keeps the fallback for the rest of the process lifetime.
	RecoveryInterval time.Duration
}

// Stats describes the active backend.
type Stats struct {
	Backend string   `json:"backend"`
	Mode    string   `json:"mode"`
	Size    int      `json:"size"`
	Keys    []string `json:"keys,omitempty"`
}

// Store is the cache used by the rest of the application. It owns a shared
// backend (normally Redis) and an in-process fallback and routes every call to
// exactly one of them according to its Mode.
//
// Store methods never return backend errors. Failures are logged, counted,
// and reported as a miss or as false.
type Store struct {
	shared Cache
	local  *InMemoryCache
	cfg    StoreConfig
	log    *slog.Logger

	mode      atomic.Int32
	probeMu   sync.Mutex
	lastProbe atomic.Int64 // unix nanos
}

// NewStore creates a store. A nil shared backend starts the store directly in
// fallback mode; otherwise it starts in ModeConnecting until Connect settles.
func NewStore(local *InMemoryCache, shared Cache, cfg StoreConfig) *Store {
	if local == nil {
		local = NewInMemoryCache()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 3 * time.Second
	}
	s := &Store{
		shared: shared,
		local:  local,
		cfg:    cfg,
		log:    logging.Component("cache"),
	}
	if shared == nil {
		s.mode.Store(int32(ModeFallback))
	}
	metrics.SetCacheBackendMode(int(s.Mode()))
	return s
}

// Mode reports the current backend mode.
func (s *Store) Mode() Mode {
	return Mode(s.mode.Load())
}

// Connect dials the shared backend in the background and returns at once.
// The fallback serves until the dial succeeds.
func (s *Store) Connect(ctx context.Context) {
	if s.shared == nil {
		return
	}
	go func() {
		pingCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
		if err := s.shared.Ping(pingCtx); err != nil {
			s.degrade("connect", err)
			return
		}
		if s.mode.CompareAndSwap(int32(ModeConnecting), int32(ModeShared)) {
			s.log.Info("shared cache backend connected")
			metrics.SetCacheBackendMode(int(ModeShared))
		}
	}()
}

// ConnectSync is Connect that waits for the dial to settle.
func (s *Store) ConnectSync(ctx context.Context) Mode {
	if s.shared == nil {
		return s.Mode()
	}
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := s.shared.Ping(pingCtx); err != nil {
		s.degrade("connect", err)
	} else if s.mode.CompareAndSwap(int32(ModeConnecting), int32(ModeShared)) {
		s.log.Info("shared cache backend connected")
		metrics.SetCacheBackendMode(int(ModeShared))
	}
	return s.Mode()
}

// degrade switches to fallback mode. Only the first failure is logged.
func (s *Store) degrade(op string, err error) {
	metrics.RecordCacheError(BackendRedis, op)
	for {
		cur := s.mode.Load()
		if Mode(cur) == ModeFallback {
			s.log.Debug("shared cache backend error", "op", op, "error", err)
			return
		}
		if s.mode.CompareAndSwap(cur, int32(ModeFallback)) {
			s.lastProbe.Store(time.Now().UnixNano())
			s.log.Warn("shared cache backend unavailable, using in-memory fallback", "op", op, "error", err)
			metrics.SetCacheBackendMode(int(ModeFallback))
			return
		}
	}
}

func (s *Store) backend() (Cache, string) {
	if s.Mode() == ModeShared {
		return s.shared, BackendRedis
	}
	s.maybeRecover()
	return s.local, BackendMemory
}

func (s *Store) maybeRecover() {
	if s.cfg.RecoveryInterval <= 0 || s.shared == nil || s.Mode() != ModeFallback {
		return
	}
	last := time.Unix(0, s.lastProbe.Load())
	if time.Since(last) < s.cfg.RecoveryInterval {
		return
	}
	go s.probe()
}

func (s *Store) probe() {
	if !s.probeMu.TryLock() {
		return
	}
	defer s.probeMu.Unlock()
	s.lastProbe.Store(time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	defer cancel()
	if err := s.shared.Ping(ctx); err != nil {
		return
	}
	// Entries written while degraded may have missed invalidations that went
	// to the shared backend; drop them before switching back.
	_ = s.local.Clear(ctx)
	if s.mode.CompareAndSwap(int32(ModeFallback), int32(ModeShared)) {
		s.log.Info("shared cache backend recovered")
		metrics.SetCacheBackendMode(int(ModeShared))
	}
}

// fail records a backend error and degrades when the shared backend caused it.
func (s *Store) fail(backend, op string, err error) {
	if backend == BackendRedis {
		s.degrade(op, err)
		return
	}
	metrics.RecordCacheError(backend, op)
	s.log.Error("cache operation failed", "backend", backend, "op", op, "error", err)
}

// Get returns the value for key, or false on a miss or any backend error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	c, name := s.backend()
	val, err := c.Get(ctx, key)
	switch {
	case err == nil:
		return val, true
	case errors.Is(err, ErrNotFound):
		return nil, false
	default:
		s.fail(name, "get", err)
		return nil, false
	}
}

// Set stores value under key for ttl and reports whether it was stored.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	c, name := s.backend()
	if err := c.Set(ctx, key, value, ttl); err != nil {
		s.fail(name, "set", err)
		return false
	}
	return true
}

// Delete removes key. The fallback copy is always removed as well, so a later
// switch between backends cannot resurrect an invalidated entry.
func (s *Store) Delete(ctx context.Context, key string) bool {
	c, name := s.backend()
	ok := true
	if err := c.Delete(ctx, key); err != nil {
		s.fail(name, "delete", err)
		ok = false
	}
	if name != BackendMemory {
		_ = s.local.Delete(ctx, key)
	}
	return ok
}

// Has reports whether key is present and unexpired.
func (s *Store) Has(ctx context.Context, key string) bool {
	c, name := s.backend()
	ok, err := c.Exists(ctx, key)
	if err != nil {
		s.fail(name, "exists", err)
		return false
	}
	return ok
}

// Clear removes every entry from the active backend and the fallback.
func (s *Store) Clear(ctx context.Context) bool {
	c, name := s.backend()
	ok := true
	if err := c.Clear(ctx); err != nil {
		s.fail(name, "clear", err)
		ok = false
	}
	if name != BackendMemory {
		_ = s.local.Clear(ctx)
	}
	return ok
}

// Stats describes the active backend. Keys are listed only for the fallback.
func (s *Store) Stats(ctx context.Context) Stats {
	c, name := s.backend()
	st := Stats{Backend: name, Mode: s.Mode().String()}
	n, err := c.Len(ctx)
	if err != nil {
		s.fail(name, "len", err)
		return st
	}
	st.Size = n
	if name == BackendMemory {
		st.Keys = s.local.Keys()
	}
	return st
}

// Close releases both backends.
func (s *Store) Close() error {
	var errs []error
	if s.shared != nil {
		errs = append(errs, s.shared.Close())
	}
	errs = append(errs, s.local.Close())
	return errors.Join(errs...)
}

// DeleteLocal removes key from the in-memory fallback only.
func (s *Store) DeleteLocal(ctx context.Context, key string) {
	_ = s.local.Delete(ctx, key)
}

// ClearLocal empties the in-memory fallback only.
func (s *Store) ClearLocal(ctx context.Context) {
	_ = s.local.Clear(ctx)
}
