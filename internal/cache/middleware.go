package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/lumeris/hub/internal/logging"
	"github.com/lumeris/hub/internal/metrics"
)

// Cache tiers used as metric labels.
const (
	TierRoute   = "route"
	TierService = "service"
)

// Result is the outcome of a read-through lookup.
type Result struct {
	Value    []byte
	Cached   bool
	StoredAt time.Time
}

// LoadFunc produces a value on a cache miss. ok reports whether the value may
// be cached; a value returned with ok=false is still handed to the caller.
type LoadFunc func(ctx context.Context) (value []byte, ok bool, err error)

// storedEntry is the envelope written to the store.
type storedEntry struct {
	StoredAt time.Time `json:"storedAt"`
	Value    []byte    `json:"value"`
}

// Loader implements read-through caching on a Store. Concurrent misses for
// the same key share a single LoadFunc execution.
type Loader struct {
	store *Store
	tier  string
	clock clockwork.Clock
	log   *slog.Logger

	group  singleflight.Group
	writes sync.WaitGroup
}

// NewLoader creates a loader for one cache tier.
func NewLoader(store *Store, tier string) *Loader {
	return &Loader{
		store: store,
		tier:  tier,
		clock: clockwork.NewRealClock(),
		log:   logging.Component("cache").With("tier", tier),
	}
}

// WithClock replaces the clock used to stamp stored entries.
func (l *Loader) WithClock(clock clockwork.Clock) *Loader {
	l.clock = clock
	return l
}

// Store returns the underlying store.
func (l *Loader) Store() *Store { return l.store }

// ReadThrough returns the cached value for key, or runs fn on a miss. A value
// produced with ok=true is stored for ttl in the background; a failed store
// never fails the call. Errors from fn are returned unchanged and nothing is
// cached. A ttl <= 0 disables storing, since backends treat it as no expiry.
func (l *Loader) ReadThrough(ctx context.Context, key string, ttl time.Duration, fn LoadFunc) (Result, error) {
	if res, ok := l.lookup(ctx, key); ok {
		return res, nil
	}
	metrics.RecordCacheLookup(l.tier, false)

	v, err, shared := l.group.Do(key, func() (any, error) {
		value, ok, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if ok && ttl > 0 {
			l.storeAsync(ctx, key, value, ttl)
		}
		return value, nil
	})
	if shared {
		metrics.RecordSharedLoad(l.tier)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Value: v.([]byte)}, nil
}

func (l *Loader) lookup(ctx context.Context, key string) (Result, bool) {
	raw, ok := l.store.Get(ctx, key)
	if !ok {
		return Result{}, false
	}
	var entry storedEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		l.log.Warn("discarding undecodable cache entry", "key", key, "error", err)
		l.store.Delete(ctx, key)
		return Result{}, false
	}
	metrics.RecordCacheLookup(l.tier, true)
	return Result{Value: entry.Value, Cached: true, StoredAt: entry.StoredAt}, true
}

func (l *Loader) storeAsync(ctx context.Context, key string, value []byte, ttl time.Duration) {
	raw, err := json.Marshal(storedEntry{StoredAt: l.clock.Now().UTC(), Value: value})
	if err != nil {
		l.log.Error("encode cache entry", "key", key, "error", err)
		return
	}
	ctx = context.WithoutCancel(ctx)
	l.writes.Add(1)
	go func() {
		defer l.writes.Done()
		if !l.store.Set(ctx, key, raw, ttl) {
			l.log.Debug("cache write skipped", "key", key)
		}
	}()
}

// Wait blocks until every pending background write has finished.
func (l *Loader) Wait() {
	l.writes.Wait()
}

// recordedResponse is a handler response captured for caching.
type recordedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body"`
}

// Middleware caches successful GET responses of next under the key produced
// by keyFn. HEAD requests are answered from the cache when possible but never
// populate it. Every other method passes straight through.
//
// A cached response is replayed with X-Cache: HIT and, for JSON object
// bodies, the fields "cached" and "cacheTimestamp" added. A fresh response is
// replayed unchanged with X-Cache: MISS and stored only when its status is 2xx.
//
// A ttl <= 0 disables the middleware.
func Middleware(l *Loader, ttl time.Duration, keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = RequestKey
	}
	return func(next http.Handler) http.Handler {
		if ttl <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
			case http.MethodHead:
				if res, ok := l.lookup(r.Context(), keyFn(r)); ok {
					replayHit(w, r, res)
					return
				}
				next.ServeHTTP(w, r)
				return
			default:
				next.ServeHTTP(w, r)
				return
			}

			res, err := l.ReadThrough(r.Context(), keyFn(r), ttl, func(ctx context.Context) ([]byte, bool, error) {
				rec := newRecorder()
				next.ServeHTTP(rec, r)
				raw, err := json.Marshal(rec.response())
				if err != nil {
					return nil, false, err
				}
				return raw, rec.status >= 200 && rec.status < 300, nil
			})
			if err != nil {
				// Only encoding can fail here; the handler has already run.
				logging.Op().Error("cache middleware", "path", r.URL.Path, "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if res.Cached {
				replayHit(w, r, res)
				return
			}
			var resp recordedResponse
			if err := json.Unmarshal(res.Value, &resp); err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			writeResponse(w, r, resp, "MISS")
		})
	}
}

func replayHit(w http.ResponseWriter, r *http.Request, res Result) {
	var resp recordedResponse
	if err := json.Unmarshal(res.Value, &resp); err != nil {
		logging.Op().Warn("cached response undecodable", "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	resp.Body = Annotate(resp.Body, res.StoredAt)
	resp.Header.Del("Content-Length")
	writeResponse(w, r, resp, "HIT")
}

func writeResponse(w http.ResponseWriter, r *http.Request, resp recordedResponse, cacheState string) {
	h := w.Header()
	for k, vals := range resp.Header {
		h[k] = append([]string(nil), vals...)
	}
	h.Set("X-Cache", cacheState)
	w.WriteHeader(resp.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(resp.Body)
	}
}

// Annotate adds "cached":true and "cacheTimestamp" to a JSON object body.
// Any other body is returned unchanged.
func Annotate(body []byte, storedAt time.Time) []byte {
	trimmed := bytes.TrimRight(body, " \t\r\n")
	if len(trimmed) < 2 || trimmed[0] != '{' || trimmed[len(trimmed)-1] != '}' {
		return body
	}
	inner := bytes.TrimSpace(trimmed[1 : len(trimmed)-1])

	var b bytes.Buffer
	b.Grow(len(trimmed) + 64)
	b.Write(trimmed[:len(trimmed)-1])
	if len(inner) > 0 {
		b.WriteByte(',')
	}
	b.WriteString(`"cached":true,"cacheTimestamp":"`)
	b.WriteString(storedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	b.WriteString(`"}`)
	if len(trimmed) < len(body) {
		b.Write(body[len(trimmed):])
	}
	return b.Bytes()
}

// recorder captures a handler response in memory.
type recorder struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (rec *recorder) Header() http.Header { return rec.header }

func (rec *recorder) WriteHeader(code int) {
	if rec.wroteHeader {
		return
	}
	rec.wroteHeader = true
	rec.status = code
}

func (rec *recorder) Write(p []byte) (int, error) {
	rec.WriteHeader(http.StatusOK)
	return rec.body.Write(p)
}

func (rec *recorder) response() recordedResponse {
	return recordedResponse{Status: rec.status, Header: rec.header.Clone(), Body: rec.body.Bytes()}
}
