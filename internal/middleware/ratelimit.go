package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/move-it/website/internal/identity"
)

type visitorLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per key. The key is the visitor ID, so
// clients cannot bypass throttling by opening more pages.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitorLimiter
	limit    rate.Limit
	burst    int
	idle     time.Duration
}

// NewRateLimiter creates a limiter allowing rps requests per second with the
// given burst. Keys unused for idle are evicted until ctx is done.
func NewRateLimiter(ctx context.Context, rps float64, burst int, idle time.Duration) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		limiters: make(map[string]*visitorLimiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     idle,
	}
	if rps <= 0 {
		rl.limit = rate.Inf
	}
	if idle > 0 {
		rl.startEviction(ctx)
	}
	return rl
}

// Allow reports whether a request for key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.limiters[key]
	if !ok {
		v = &visitorLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// Len returns the number of tracked keys.
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.limiters)
}

func (r *RateLimiter) evict(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, v := range r.limiters {
		if now.Sub(v.lastSeen) > r.idle {
			delete(r.limiters, key)
		}
	}
}

// startEviction periodically drops idle keys, preventing unbounded memory growth.
func (r *RateLimiter) startEviction(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.idle)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				r.evict(now)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimit rejects requests over the visitor's budget with 429. Requests
// without a visitor identity are keyed by remote IP.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := identity.VisitorIDFromContext(r.Context())
			if key == "" {
				key = "ip:" + identity.IPFromRequest(r)
			}
			if !rl.Allow(key) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
