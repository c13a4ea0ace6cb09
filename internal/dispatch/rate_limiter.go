package dispatch

import (
	"sync"
	"time"
)

// RateLimiter implements per-connection rate limiting with a sliding
// minute window.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	clients map[string]*clientLimit
}

type clientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter creates a rate limiter allowing limit frames per minute
// per connection.
func NewRateLimiter(limit int) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether the connection may send another frame within the
// current window.
func (rl *RateLimiter) Allow(connectionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[connectionID]
	if !exists {
		rl.clients[connectionID] = &clientLimit{
			messageCount: 1,
			windowStart:  now,
		}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}

	limit.messageCount++
	return true
}

// Forget drops tracking state for a disconnected connection.
func (rl *RateLimiter) Forget(connectionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, connectionID)
}

// Cleanup removes entries idle for more than five windows. Call
// periodically to keep the map bounded.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for id, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, id)
		}
	}
}
