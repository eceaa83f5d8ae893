package chat

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter implements per-connection inbound rate limiting
// ARCHITECTURAL DISCOVERY: Limiters are keyed by connection and released on
// disconnect, so no background cleanup is needed
type RateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewRateLimiter creates a limiter allowing perSecond events with burst.
// A non-positive perSecond disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether the connection may send another event now
func (rl *RateLimiter) Allow(connectionID string) bool {
	if rl.limit == rate.Inf {
		return true
	}

	rl.mu.Lock()
	limiter, exists := rl.limiters[connectionID]
	if !exists {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[connectionID] = limiter
	}
	rl.mu.Unlock()

	return limiter.Allow()
}

// Forget releases a connection's limiter
func (rl *RateLimiter) Forget(connectionID string) {
	rl.mu.Lock()
	delete(rl.limiters, connectionID)
	rl.mu.Unlock()
}

// Len returns the number of tracked connections
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
