package middleware

import (
	"net/http"
	"time"

	"casedesk/pkg/logger"

	"github.com/Velocidex/ttlcache/v2"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per authenticated user. Idle buckets are
// evicted after limiterTTL so the table doesn't grow with every user ever seen.
type RateLimiter struct {
	limiters *ttlcache.Cache
	rate     rate.Limit
	burst    int
}

const limiterTTL = 10 * time.Minute

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	cache := ttlcache.NewCache()
	cache.SetTTL(limiterTTL)
	return &RateLimiter{
		limiters: cache,
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiterFor(userID string) *rate.Limiter {
	if v, err := rl.limiters.Get(userID); err == nil {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rl.rate, rl.burst)
	rl.limiters.Set(userID, limiter)
	return limiter
}

// Middleware rejects requests above the per-user budget with 429. Must run
// after AuthMiddleware so the user ID is on the context.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := r.Context().Value(UserIDKey).(string)
		if userID == "" {
			// Unauthenticated requests are rejected upstream; fall back to
			// the remote address so the limiter still applies on /ws probes.
			userID = r.RemoteAddr
		}

		if !rl.limiterFor(userID).Allow() {
			logger.Sugar.Warnf("Rate limit exceeded for user %s on %s", userID, r.URL.Path)
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
