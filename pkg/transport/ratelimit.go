package transport

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rhuss/ausweis/pkg/observability"
)

// ClientLimiter is a fixed-window rate limiter that tracks request
// counts per client in memory. It is deliberately per-process: its job
// is to blunt credential-stuffing bursts against a single instance, not
// to enforce a fleet-wide quota.
type ClientLimiter struct {
	rpm      int
	mu       sync.Mutex
	counters map[string]*counter
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewClientLimiter creates a limiter allowing rpm requests per client per
// minute. An rpm of zero or less disables limiting.
func NewClientLimiter(rpm int) *ClientLimiter {
	return &ClientLimiter{
		rpm:      rpm,
		counters: make(map[string]*counter),
	}
}

// Allow checks if a request from the given client is within the limit.
func (l *ClientLimiter) Allow(client string) bool {
	if l.rpm <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	c, ok := l.counters[client]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		// New window. Also a natural point to shed stale entries.
		if len(l.counters) > 10000 {
			l.sweepLocked(now)
		}
		l.counters[client] = &counter{count: 1, windowAt: now}
		return true
	}

	c.count++
	return c.count <= l.rpm
}

func (l *ClientLimiter) sweepLocked(now time.Time) {
	for k, c := range l.counters {
		if now.Sub(c.windowAt) >= time.Minute {
			delete(l.counters, k)
		}
	}
}

// RateLimit returns middleware that applies the limiter to the /identity
// routes, keyed by client IP. Over-limit requests are answered with an
// empty 429. Health and metrics routes are never limited.
func RateLimit(l *ClientLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil || !strings.HasPrefix(r.URL.Path, "/identity/") {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(clientAddr(r)) {
				observability.RateLimitRejected.WithLabelValues(observability.NormalizeRoute(r.URL.Path)).Inc()
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientAddr extracts the client IP from the request, without the port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
