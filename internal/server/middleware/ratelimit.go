package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	sweepEvery = 10 * time.Minute
	forgetIdle = 30 * time.Minute
)

const tooManyRequests = `{"title":"Too Many Requests","status":429,"detail":"rate limit exceeded"}`

// clientBudgets holds one token bucket per client host.
type clientBudgets struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

func newClientBudgets(perSecond float64, burst int, now func() time.Time) *clientBudgets {
	return &clientBudgets{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     now,
		buckets: make(map[string]*bucket),
	}
}

// allow spends one token from host's bucket, creating the bucket on first use.
func (c *clientBudgets) allow(host string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	b := c.buckets[host]
	if b == nil {
		b = &bucket{tokens: rate.NewLimiter(c.limit, c.burst)}
		c.buckets[host] = b
	}
	b.lastSeen = now
	return b.tokens.AllowN(now, 1)
}

// forget drops buckets unused for longer than idle and returns how many remain.
func (c *clientBudgets) forget(idle time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-idle)
	for host, b := range c.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(c.buckets, host)
		}
	}
	return len(c.buckets)
}

func (c *clientBudgets) sweep(ctx context.Context) {
	ticker := time.NewTicker(sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.forget(forgetIdle)
		}
	}
}

// retryAfter is the whole number of seconds until one token refills.
func (c *clientBudgets) retryAfter() string {
	if c.limit <= 0 {
		return "60"
	}
	return strconv.Itoa(int(math.Ceil(1 / float64(c.limit))))
}

// RateLimitByIP gives every client host its own token bucket refilling at
// requestsPerSecond. Requests over budget get a 429 problem document. Mount
// it after chi's RealIP so proxied clients are told apart. Buckets idle for
// half an hour are dropped until ctx ends.
func RateLimitByIP(ctx context.Context, requestsPerSecond float64, burst int) func(http.Handler) http.Handler {
	budgets := newClientBudgets(requestsPerSecond, burst, time.Now)
	go budgets.sweep(ctx)
	return budgets.middleware
}

func (c *clientBudgets) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.allow(remoteHost(r.RemoteAddr)) {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("Content-Type", "application/problem+json")
		h.Set("Retry-After", c.retryAfter())
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(tooManyRequests))
	})
}

// remoteHost returns the host part of addr, or addr itself when it carries
// no port.
func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
