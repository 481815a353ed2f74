package middleware

import (
	"net/http"
	"sync"
	"time"
)

// ipBucket is one client's token bucket.
type ipBucket struct {
	tokens     float64
	lastRefill time.Time
}

// RateLimiter applies a per-client token bucket keyed by IP. Buckets idle
// past evictAfter are dropped by a background sweep.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*ipBucket

	perSecond  float64
	burst      float64
	evictAfter time.Duration
}

// NewRateLimiter creates a limiter allowing perSecond requests with the
// given burst per client IP.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		buckets:    make(map[string]*ipBucket),
		perSecond:  perSecond,
		burst:      float64(burst),
		evictAfter: 10 * time.Minute,
	}
	go rl.sweep(5 * time.Minute)
	return rl
}

// Allow reports whether a request from ip fits within the limit, consuming
// one token when it does.
func (rl *RateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		rl.buckets[ip] = &ipBucket{tokens: rl.burst - 1, lastRefill: now}
		return true
	}

	b.tokens = min(rl.burst, b.tokens+now.Sub(b.lastRefill).Seconds()*rl.perSecond)
	b.lastRefill = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-rl.evictAfter)
		rl.mu.Lock()
		for ip, b := range rl.buckets {
			if b.lastRefill.Before(cutoff) {
				delete(rl.buckets, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// RateLimit rejects requests exceeding the configured per-IP rate with
// 429 Too Many Requests.
func RateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(perSecond, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			// Prefer X-Real-Ip set by chi's RealIP middleware.
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !limiter.Allow(ip) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
