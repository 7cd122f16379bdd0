package http

import (
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"ai-live-hints-service/internal/observability/metrics"
)

// rateLimiter keeps one token bucket per client IP.
type rateLimiter struct {
	bucket    map[string]*rate.Limiter
	rate      rate.Limit
	burstSize int
	mu        sync.Mutex
}

func newRateLimiter(reqRate rate.Limit, burstSize int) *rateLimiter {
	return &rateLimiter{
		bucket:    make(map[string]*rate.Limiter),
		rate:      reqRate,
		burstSize: burstSize,
	}
}

func (l *rateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.bucket[ip]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burstSize)
		l.bucket[ip] = lim
	}
	return lim
}

// middleware rejects requests over the limit. A zero rate disables it.
func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.rate <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ip := clientIP(r)
		if !l.limiterFor(ip).Allow() {
			metrics.DefaultMetrics.RecordRateLimited()
			log.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("Too many requests")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
