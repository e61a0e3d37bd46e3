package api

import (
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/uptime-rewards/internal/errors"
)

const (
	maxLimiters = 10000
	limiterIdle = 10 * time.Minute
)

// RateLimiter keeps one token bucket per wallet, or per client IP for
// anonymous requests.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex

	limit     rate.Limit
	burstSize int
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(rps, burst int) *RateLimiter {
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = rps
	}
	return &RateLimiter{
		limiters:  make(map[string]*limiterEntry),
		limit:     rate.Limit(rps),
		burstSize: burst,
		now:       time.Now,
	}
}

// getLimiter returns the rate limiter for a key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= maxLimiters {
			rl.pruneLocked(limiterIdle)
		}
		e = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burstSize)}
		rl.limiters[key] = e
	}
	e.lastSeen = rl.now()
	return e.limiter
}

// Allow reports whether the key may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).AllowN(rl.now(), 1)
}

// Prune drops buckets unused for longer than idle.
func (rl *RateLimiter) Prune(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.pruneLocked(idle)
}

func (rl *RateLimiter) pruneLocked(idle time.Duration) int {
	deadline := rl.now().Add(-idle)
	n := 0
	for key, e := range rl.limiters {
		if e.lastSeen.Before(deadline) {
			delete(rl.limiters, key)
			n++
		}
	}
	return n
}

// RateLimitMiddleware creates a middleware that enforces rate limiting.
// Authenticated requests are limited per wallet.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := walletFrom(r.Context())
			if key == "" {
				key = "ip:" + clientIP(r)
			}

			if !rl.Allow(key) {
				retryAfter := int(math.Ceil(1 / float64(rl.limit)))
				respondServiceError(w, r, apperrors.NewRateLimitError(retryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
