// Package ratelimit provides a fixed-window limiter for outbound agent
// calls: per-window request and token budgets, reset on a timer. A
// request over either budget is rejected locally before any network
// call.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

// ErrLimited is returned when the current window's budget is spent.
var ErrLimited = errors.New("rate limit exceeded")

// FixedWindow is a fixed-window request/token limiter. It is not a
// sliding window or token bucket: counters reset in full at every
// window boundary.
type FixedWindow struct {
	maxRequests int
	maxTokens   int
	window      time.Duration

	mu          sync.Mutex
	requests    int
	tokens      int
	windowStart time.Time
}

// New creates a limiter. Window defaults to one minute when zero.
// A non-positive budget disables that dimension.
func New(maxRequests, maxTokens int, window time.Duration) *FixedWindow {
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindow{
		maxRequests: maxRequests,
		maxTokens:   maxTokens,
		window:      window,
		windowStart: time.Now(),
	}
}

// Allow consumes one request and the given token count from the
// current window, or returns ErrLimited without consuming anything.
func (l *FixedWindow) Allow(tokens int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.windowStart) >= l.window {
		l.requests = 0
		l.tokens = 0
		l.windowStart = now
	}

	if l.maxRequests > 0 && l.requests+1 > l.maxRequests {
		return ErrLimited
	}
	if l.maxTokens > 0 && l.tokens+tokens > l.maxTokens {
		return ErrLimited
	}

	l.requests++
	l.tokens += tokens
	return nil
}

// Remaining reports the unused request budget in the current window.
func (l *FixedWindow) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.windowStart) >= l.window {
		return l.maxRequests
	}
	return l.maxRequests - l.requests
}
