package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupEvery = 5 * time.Minute
	limiterIdleAfter    = 30 * time.Minute
)

// ConnectionLimiter caps concurrent WebSocket connections per instance.
// Uses atomic operations for lock-free counting.
type ConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

func NewConnectionLimiter(max int64) *ConnectionLimiter {
	return &ConnectionLimiter{max: max}
}

// Acquire attempts to acquire a connection slot.
// Returns false if at capacity. A non-positive max means unlimited.
func (l *ConnectionLimiter) Acquire() bool {
	for {
		current := l.current.Load()
		if l.max > 0 && current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimiter) Release() {
	l.current.Add(-1)
}

func (l *ConnectionLimiter) Current() int64 {
	return l.current.Load()
}

// RequestRateLimiter is a per-IP token bucket. A client may spend its whole
// budget at once and regains it evenly over the window.
type RequestRateLimiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRequestRateLimiter allows requests per window for each IP.
func NewRequestRateLimiter(requests int, window time.Duration, clock clockwork.Clock) *RequestRateLimiter {
	requests = max(requests, 1)
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RequestRateLimiter{
		clock:     clock,
		limiters:  make(map[string]*rateLimiterEntry),
		rate:      rate.Every(window / time.Duration(requests)),
		burst:     requests,
		cleanupAt: clock.Now().Add(limiterCleanupEvery),
	}
}

// Allow reports whether a request from ip may proceed.
func (l *RequestRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(limiterCleanupEvery)
	}

	entry, exists := l.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}

	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// cleanup drops limiters idle long enough to have refilled.
// Must be called with mu held.
func (l *RequestRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-limiterIdleAfter)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

// ActiveLimiters returns the number of tracked IPs.
func (l *RequestRateLimiter) ActiveLimiters() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
