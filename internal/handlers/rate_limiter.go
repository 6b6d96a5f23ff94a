package handlers

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raistore/storefront/internal/platform/httpx"
)

// ipRateLimiter counts requests per client IP in fixed windows. Buckets are
// keyed by scope so routes sharing a limiter instance never share a budget.
type ipRateLimiter struct {
	scope   string
	limit   int
	window  time.Duration
	clock   func() time.Time
	mu      sync.Mutex
	buckets map[string]ipBucket
}

type ipBucket struct {
	count int
	reset time.Time
}

func newIPRateLimiter(scope string, limit int, window time.Duration, clock func() time.Time) *ipRateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &ipRateLimiter{
		scope:   strings.TrimSpace(scope),
		limit:   limit,
		window:  window,
		clock:   clock,
		buckets: make(map[string]ipBucket),
	}
}

// allow records one request from r and returns how long the caller must wait when refused.
func (l *ipRateLimiter) allow(r *http.Request) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key := l.scope + "|" + clientIP(r)
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok || !now.Before(bucket.reset) {
		l.buckets[key] = ipBucket{count: 1, reset: now.Add(l.window)}
		l.pruneLocked(now)
		return true, 0
	}
	if bucket.count >= l.limit {
		return false, bucket.reset.Sub(now)
	}
	bucket.count++
	l.buckets[key] = bucket
	return true, 0
}

func (l *ipRateLimiter) pruneLocked(now time.Time) {
	for key, bucket := range l.buckets {
		if !now.Before(bucket.reset) {
			delete(l.buckets, key)
		}
	}
}

// guard writes a 429 and reports false when the request is over budget.
func (l *ipRateLimiter) guard(ctx context.Context, w http.ResponseWriter, r *http.Request, message string) bool {
	ok, wait := l.allow(r)
	if ok {
		return true
	}
	seconds := int(wait.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", message, http.StatusTooManyRequests))
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "anonymous"
	}
	return host
}
