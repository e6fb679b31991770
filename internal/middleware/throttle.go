package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"raine/internal/httputil"
	"raine/internal/metrics"

	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP. It protects the HTTP
// surface from floods and is independent of the per-user action limits.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
}

// NewIPRateLimiter creates a limiter allowing rps requests per second per IP with the given burst
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		idleTTL:  3 * time.Minute,
	}
}

// Allow reports whether a request from ip may proceed
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.get(ip).Allow()
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Cleanup drops visitors idle for longer than the idle TTL
func (l *IPRateLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	cutoff := time.Now().Add(-l.idleTTL)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked IPs
func (l *IPRateLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// StartCleanup evicts idle visitors every interval until ctx is done
func (l *IPRateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Cleanup()
			}
		}
	}()
}

// Middleware rejects requests over the per-IP budget with 429
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.GetClientIP(r)
		if !l.Allow(ip) {
			metrics.IncrementCounter(metrics.RateLimitRejected, map[string]string{
				"scope": "ip",
			}, "Requests rejected by rate limiting")
			retryAfter := 1
			if l.limit > 0 {
				retryAfter = int(1/float64(l.limit)) + 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
