package ws

import (
	"sync"
	"time"
)

// RateLimiter caps inbound score_delta messages per connection using a
// fixed one-minute window. Keepalive probes are not counted.
type RateLimiter struct {
	mu       sync.Mutex
	limit    int
	counters map[string]*windowCounter
}

type windowCounter struct {
	count       int
	windowStart time.Time
}

// NewRateLimiter creates a rate limiter allowing limit messages per minute
// per connection.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		counters: make(map[string]*windowCounter),
	}
}

// Allow reports whether the connection may send another message inside the
// current window.
func (rl *RateLimiter) Allow(connID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	counter, ok := rl.counters[connID]
	if !ok || now.Sub(counter.windowStart) >= time.Minute {
		rl.counters[connID] = &windowCounter{count: 1, windowStart: now}
		return true
	}

	if counter.count >= rl.limit {
		return false
	}
	counter.count++
	return true
}

// Forget drops a connection's window state when the connection closes.
func (rl *RateLimiter) Forget(connID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.counters, connID)
}
