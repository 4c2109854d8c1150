package cache

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/lumeris/hub/internal/logging"
	"github.com/lumeris/hub/internal/metrics"
)

const (
	// InvalidationChannel carries invalidated keys between instances. Each
	// instance drops the published keys from its in-memory fallback, which
	// the shared backend delete does not reach.
	InvalidationChannel = "lumeris:cache:invalidate"

	// clearAllPayload asks subscribers to drop their whole fallback.
	clearAllPayload = "*"
)

// Invalidator removes cache entries after writes.
type Invalidator struct {
	store  *Store
	client *redis.Client // optional, enables cross-instance broadcast
	log    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewInvalidator creates an invalidator. client may be nil, in which case
// invalidations stay local to this instance.
func NewInvalidator(store *Store, client *redis.Client) *Invalidator {
	return &Invalidator{
		store:  store,
		client: client,
		log:    logging.Component("cache").With("role", "invalidator"),
	}
}

// Invalidate deletes keys from the store and tells other instances to drop
// them too. It reports whether every delete succeeded.
func (inv *Invalidator) Invalidate(ctx context.Context, keys ...string) bool {
	ok := true
	for _, key := range keys {
		if key == "" {
			continue
		}
		if !inv.store.Delete(ctx, key) {
			ok = false
			inv.log.Warn("cache invalidation failed", "key", key)
		}
		inv.publish(ctx, key)
	}
	metrics.RecordInvalidation(ok)
	return ok
}

// Clear empties the store on every instance.
func (inv *Invalidator) Clear(ctx context.Context) bool {
	ok := inv.store.Clear(ctx)
	inv.publish(ctx, clearAllPayload)
	metrics.RecordInvalidation(ok)
	return ok
}

func (inv *Invalidator) publish(ctx context.Context, payload string) {
	if inv.client == nil || inv.store.Mode() != ModeShared {
		return
	}
	if err := inv.client.Publish(ctx, InvalidationChannel, payload).Err(); err != nil {
		inv.log.Debug("publish invalidation", "payload", payload, "error", err)
	}
}

// Listen applies invalidations published by other instances to the local
// fallback. It blocks until ctx is cancelled or Close is called.
func (inv *Invalidator) Listen(ctx context.Context) {
	if inv.client == nil {
		return
	}
	subCtx, cancel := context.WithCancel(ctx)
	inv.mu.Lock()
	if inv.closed {
		inv.mu.Unlock()
		cancel()
		return
	}
	inv.cancel = cancel
	inv.mu.Unlock()

	pubsub := inv.client.Subscribe(subCtx, InvalidationChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg.Payload == clearAllPayload {
				inv.store.ClearLocal(subCtx)
			} else {
				inv.store.DeleteLocal(subCtx, msg.Payload)
			}
		}
	}
}

// After returns middleware that invalidates the keys produced by keyFns once
// next has answered with a 2xx status. Invalidation runs after the response
// has been written and never changes it.
func (inv *Invalidator) After(keyFns ...KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			if sw.status < 200 || sw.status >= 300 {
				return
			}
			keys := make([]string, 0, len(keyFns))
			for _, fn := range keyFns {
				keys = append(keys, fn(r))
			}
			inv.Invalidate(context.WithoutCancel(r.Context()), keys...)
		})
	}
}

// Close stops Listen.
func (inv *Invalidator) Close() error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if inv.closed {
		return nil
	}
	inv.closed = true
	if inv.cancel != nil {
		inv.cancel()
	}
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(p)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
