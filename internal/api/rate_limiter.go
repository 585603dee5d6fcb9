package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter enforces a per-user request rate
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit rate.Limit
	burst int
}

// NewRateLimiter creates a new rate limiter allowing rps requests per second
// per user with the given burst size
func NewRateLimiter(rps, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// getLimiter returns the rate limiter for one user, creating it on first use
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[key] = limiter
	return limiter
}

// RateLimitMiddleware creates a middleware that enforces rate limiting keyed
// by user ID, falling back to the remote address for anonymous requests
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-User-ID")
			if key == "" {
				key = r.RemoteAddr
			}

			limiter := rl.getLimiter(key)
			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED",
					"Rate limit exceeded. Please try again later.", map[string]interface{}{
						"limit": limiter.Limit(),
					})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
