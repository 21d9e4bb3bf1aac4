// ABOUTME: Per-calendar-source rate limiting for on-demand sync requests
// ABOUTME: Fixed-window counter behind an interface so multi-instance deployments can externalize the state
package sync

import (
	"sync"
	"time"
)

// RateLimiter decides whether another request is allowed for a key right now.
// The default implementation is process-local; running multiple instances
// requires swapping in a shared counter store behind this interface.
type RateLimiter interface {
	Allow(key string) bool
}

// WindowLimiter allows at most limit requests per fixed window per key.
type WindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	counts map[string]*windowCount

	// now is swappable for tests.
	now func() time.Time
}

type windowCount struct {
	start time.Time
	n     int
}

// NewWindowLimiter creates a limiter with the given per-key budget.
func NewWindowLimiter(limit int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		limit:  limit,
		window: window,
		counts: make(map[string]*windowCount),
		now:    time.Now,
	}
}

// Allow consumes one request slot for key, returning false once the window's
// budget is spent. A new window starts the first request after expiry.
func (l *WindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	wc, ok := l.counts[key]
	if !ok || now.Sub(wc.start) >= l.window {
		l.counts[key] = &windowCount{start: now, n: 1}
		return true
	}

	if wc.n >= l.limit {
		return false
	}
	wc.n++
	return true
}

// Reset clears the window for a key.
func (l *WindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counts, key)
}
