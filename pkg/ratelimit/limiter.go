// Package ratelimit tracks per-method, per-client request counts in fixed
// windows with priority-tiered limits.
package ratelimit

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/mcp-engine/pkg/protocol"
)

const logPrefix = "ratelimit:limiter"

// DefaultWindow is the fixed window length.
const DefaultWindow = 60 * time.Second

// DefaultLimits returns the per-window request limits for each priority class.
func DefaultLimits() map[protocol.Priority]int {
	return map[protocol.Priority]int{
		protocol.PriorityLow:      10,
		protocol.PriorityNormal:   30,
		protocol.PriorityHigh:     60,
		protocol.PriorityCritical: 100,
	}
}

// Decision is the outcome of CheckAndConsume.
type Decision struct {
	Allowed   bool
	Current   int
	Limit     int
	Remaining int
	ResetTime time.Time
}

// RetryAfter returns how long the caller should wait before the window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if wait := d.ResetTime.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

type entryKey struct {
	method   string
	clientID string
}

// entry is one (method, client) window. The limit is fixed when the window
// opens and not re-evaluated until it resets.
type entry struct {
	count     int
	limit     int
	resetTime time.Time
}

// Config configures a Limiter. Zero values fall back to defaults.
type Config struct {
	Window time.Duration
	Limits map[protocol.Priority]int
}

// Limiter is safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	entries map[entryKey]*entry
	window  time.Duration
	limits  map[protocol.Priority]int
	now     func() time.Time
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg Config) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	limits := DefaultLimits()
	for p, n := range cfg.Limits {
		if n > 0 {
			limits[p] = n
		}
	}
	return &Limiter{
		entries: make(map[entryKey]*entry),
		window:  window,
		limits:  limits,
		now:     time.Now,
	}
}

// Limit returns the per-window limit for a priority class. Unspecified
// priorities use the normal tier.
func (l *Limiter) Limit(p protocol.Priority) int {
	return l.limits[p.OrDefault(protocol.PriorityNormal)]
}

// CheckAndConsume admits or rejects one request. A rejected request does not
// change the window's count.
func (l *Limiter) CheckAndConsume(method, clientID string, p protocol.Priority) Decision {
	now := l.now()
	key := entryKey{method: method, clientID: clientID}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetTime) {
		e = &entry{limit: l.Limit(p), resetTime: now.Add(l.window)}
		l.entries[key] = e
	}

	if e.count >= e.limit {
		slog.Debug(fmt.Sprintf("%s - rate limited method=%s client=%s count=%d limit=%d", logPrefix, method, clientID, e.count, e.limit))
		return Decision{Allowed: false, Current: e.count, Limit: e.limit, Remaining: 0, ResetTime: e.resetTime}
	}
	e.count++
	return Decision{Allowed: true, Current: e.count, Limit: e.limit, Remaining: e.limit - e.count, ResetTime: e.resetTime}
}

// Sweep drops windows that have already reset and returns how many were removed.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if !now.Before(e.resetTime) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
