// Package ratelimit throttles requests with token buckets kept in Redis, with
// an in-process fallback when Redis is unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Backend performs an atomic token bucket check for key.
type Backend interface {
	CheckRateLimit(ctx context.Context, key string, maxTokens int, refillRate float64, requested int) (allowed bool, remaining int, err error)
}

// Rule is a request budget: Limit requests per Window, with bursts up to Burst.
type Rule struct {
	Limit  int
	Window time.Duration
	Burst  int
}

// PerMinute returns a rule allowing n requests per minute with a burst of n.
func PerMinute(n int) Rule {
	return Rule{Limit: n, Window: time.Minute, Burst: n}
}

func (r Rule) refillRate() float64 {
	if r.Window <= 0 {
		return float64(r.Limit)
	}
	return float64(r.Limit) / r.Window.Seconds()
}

func (r Rule) burst() int {
	if r.Burst > 0 {
		return r.Burst
	}
	return r.Limit
}

// Limiter applies one Rule on top of a Backend.
type Limiter struct {
	backend Backend
	rule    Rule
	now     func() time.Time
}

// New creates a limiter.
func New(backend Backend, rule Rule) *Limiter {
	return &Limiter{backend: backend, rule: rule, now: time.Now}
}

// Result contains the result of a rate limit check
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allow checks if a request is allowed for the given key.
func (l *Limiter) Allow(ctx context.Context, key string) (Result, error) {
	burst := l.rule.burst()
	rate := l.rule.refillRate()
	if burst <= 0 || rate <= 0 {
		return Result{}, fmt.Errorf("rate limit rule must be positive: %+v", l.rule)
	}

	allowed, remaining, err := l.backend.CheckRateLimit(ctx, key, burst, rate, 1)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}

	// Time until the bucket is full again.
	refill := time.Duration(float64(burst-remaining) / rate * float64(time.Second))
	return Result{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: remaining,
		ResetAt:   l.now().Add(refill),
	}, nil
}

// KeyForUser returns the rate limit key for a user on a route.
func KeyForUser(route, userID string) string {
	return "user:" + route + ":" + userID
}

// KeyForIP returns the rate limit key for an anonymous client on a route.
func KeyForIP(route, ip string) string {
	return "ip:" + route + ":" + ip
}
