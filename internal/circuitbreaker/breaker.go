// Package circuitbreaker guards the upstream record reads behind a
// dashboard. Each dependency gets its own breaker; while a breaker is open,
// reads of that dependency fail immediately instead of waiting out the
// upstream timeout.
//
// # State machine
//
//	Closed ──(error rate ≥ threshold)──► Open ──(OpenDuration elapsed)──► HalfOpen
//	  ▲                                                                        │
//	  └──────────────(all probes succeed)───────────────────────────────────────┘
//	                  (any probe fails) ──────────────────────────────────► Open
//
// The error rate is computed over a sliding window of WindowDuration and
// only once MinRequests outcomes fall inside it.
//
// # Invariants
//
//   - The successes and failures slices contain only timestamps within the
//     current sliding window; trimWindow is called after every write.
//   - maxWindowEntries caps both slices.
//   - halfOpenProbes counts the probes dispatched in the HalfOpen state; it
//     is reset to 0 on every Open→HalfOpen transition.
package circuitbreaker

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrOpen is returned in place of a read while the dependency's breaker is open.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // Normal operation, reads pass through
	StateOpen                  // Reads are rejected
	StateHalfOpen              // Limited probe reads are allowed
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the circuit breaker configuration. A zero ErrorPct,
// WindowDuration or OpenDuration disables breaking.
type Config struct {
	ErrorPct       float64       // Error percentage threshold to trip the breaker (0-100)
	WindowDuration time.Duration // Sliding window for error rate calculation
	OpenDuration   time.Duration // How long the breaker stays open before probing
	HalfOpenProbes int           // Probe reads allowed in half-open state
	MinRequests    int           // Outcomes required in the window before tripping
}

// Enabled reports whether the config describes an active breaker.
func (c Config) Enabled() bool {
	return c.ErrorPct > 0 && c.WindowDuration > 0 && c.OpenDuration > 0
}

// Breaker is the circuit breaker of one upstream dependency.
type Breaker struct {
	mu             sync.Mutex
	cfg            Config
	clock          clockwork.Clock
	state          State
	successes      []time.Time
	failures       []time.Time
	openedAt       time.Time
	halfOpenProbes int
	halfOpenOK     int
}

// New creates a breaker. A nil clock uses the real clock.
func New(cfg Config, clock clockwork.Clock) *Breaker {
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Breaker{cfg: cfg, clock: clock}
}

// Allow reports whether a read may go to the dependency.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advanceLocked()
	switch b.state {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.halfOpenProbes < b.cfg.HalfOpenProbes {
			b.halfOpenProbes++
			return true
		}
		return false
	}
	return true
}

// RecordSuccess records a read that completed, including a read that found
// no record.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	switch b.state {
	case StateClosed:
		b.successes = append(b.successes, now)
		b.trimWindow(now)
	case StateHalfOpen:
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenProbes {
			b.state = StateClosed
			b.successes = b.successes[:0]
			b.failures = b.failures[:0]
		}
	}
}

// RecordFailure records a failed or timed out read.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	switch b.state {
	case StateClosed:
		b.failures = append(b.failures, now)
		b.trimWindow(now)
		b.checkThreshold(now)
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
	}
}

// Abandon releases a probe slot for a read that was cancelled before it
// produced an outcome.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.halfOpenProbes > 0 {
		b.halfOpenProbes--
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advanceLocked()
	return b.state
}

// advanceLocked moves an expired open breaker to half-open.
func (b *Breaker) advanceLocked() {
	if b.state == StateOpen && b.clock.Since(b.openedAt) >= b.cfg.OpenDuration {
		b.state = StateHalfOpen
		b.halfOpenProbes = 0
		b.halfOpenOK = 0
	}
}

const maxWindowEntries = 10000

// trimWindow removes entries outside the sliding window. Must be called under lock.
func (b *Breaker) trimWindow(now time.Time) {
	cutoff := now.Add(-b.cfg.WindowDuration)
	b.successes = trimBefore(b.successes, cutoff)
	b.failures = trimBefore(b.failures, cutoff)

	if len(b.successes) > maxWindowEntries {
		b.successes = b.successes[len(b.successes)-maxWindowEntries:]
	}
	if len(b.failures) > maxWindowEntries {
		b.failures = b.failures[len(b.failures)-maxWindowEntries:]
	}
}

// checkThreshold trips the breaker if the error rate reaches the threshold. Must be called under lock.
func (b *Breaker) checkThreshold(now time.Time) {
	total := len(b.successes) + len(b.failures)
	if total == 0 || total < b.cfg.MinRequests {
		return
	}
	errorPct := float64(len(b.failures)) / float64(total) * 100
	if errorPct >= b.cfg.ErrorPct {
		b.state = StateOpen
		b.openedAt = now
	}
}

func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	copy(times, times[i:])
	return times[:len(times)-i]
}

// Registry holds one breaker per dependency, all sharing a config.
type Registry struct {
	cfg   Config
	clock clockwork.Clock

	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates a breaker registry. A nil clock uses the real clock.
func NewRegistry(cfg Config, clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		cfg:      cfg,
		clock:    clock,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for a dependency, creating it on first use.
// It returns nil when the registry is nil or breaking is disabled.
func (r *Registry) Get(dependency string) *Breaker {
	if r == nil || !r.cfg.Enabled() {
		return nil
	}

	r.mu.RLock()
	b, ok := r.breakers[dependency]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[dependency]; ok {
		return b
	}
	b = New(r.cfg, r.clock)
	r.breakers[dependency] = b
	return b
}

// Snapshot returns dependency name to breaker state.
func (r *Registry) Snapshot() map[string]string {
	if r == nil {
		return map[string]string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}

// Open lists the dependencies whose breaker is currently open, sorted.
func (r *Registry) Open() []string {
	var out []string
	for name, state := range r.Snapshot() {
		if state == StateOpen.String() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
