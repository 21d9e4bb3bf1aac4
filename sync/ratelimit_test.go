// ABOUTME: Tests for the fixed-window rate limiter
// ABOUTME: Verifies the 5-per-60s budget, per-key independence, and window reset
package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowLimiterBudget(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	l := NewWindowLimiter(5, time.Minute)
	l.now = func() time.Time { return now }

	for i := 1; i <= 5; i++ {
		assert.True(t, l.Allow("source-1"), "request %d within budget", i)
	}
	assert.False(t, l.Allow("source-1"), "sixth request in the window is rejected")

	// Other keys are unaffected.
	assert.True(t, l.Allow("source-2"))
}

func TestWindowLimiterResetsAfterWindow(t *testing.T) {
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	l := NewWindowLimiter(5, time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("source-1"))
	}
	assert.False(t, l.Allow("source-1"))

	// Advance past the window; the budget is fresh.
	now = now.Add(61 * time.Second)
	assert.True(t, l.Allow("source-1"), "request after the window reset succeeds")
}

func TestWindowLimiterExplicitReset(t *testing.T) {
	l := NewWindowLimiter(1, time.Minute)
	assert.True(t, l.Allow("source-1"))
	assert.False(t, l.Allow("source-1"))

	l.Reset("source-1")
	assert.True(t, l.Allow("source-1"))
}
