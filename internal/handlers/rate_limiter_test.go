package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = addr
	return req
}

func TestIPRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter("test", 1, time.Minute, func() time.Time { return now })

	if ok, _ := limiter.allow(requestFrom("10.0.0.1:1000")); !ok {
		t.Fatalf("first request should pass")
	}
	now = now.Add(20 * time.Second)
	ok, wait := limiter.allow(requestFrom("10.0.0.1:2000"))
	if ok {
		t.Fatalf("same ip on another port shares the bucket")
	}
	if wait != 40*time.Second {
		t.Fatalf("expected 40s until reset, got %s", wait)
	}
	now = now.Add(40 * time.Second)
	if ok, _ := limiter.allow(requestFrom("10.0.0.1:3000")); !ok {
		t.Fatalf("expected bucket reset after the window")
	}
}

func TestIPRateLimiterScopesDoNotShareBudget(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	payments := newIPRateLimiter(paymentIntentScope, 1, time.Minute, clock)
	coupons := newIPRateLimiter(couponValidateScope, 1, time.Minute, clock)

	req := requestFrom("10.0.0.9:1")
	if ok, _ := payments.allow(req); !ok {
		t.Fatalf("payments should allow first request")
	}
	if ok, _ := coupons.allow(req); !ok {
		t.Fatalf("coupon budget must be independent of payments")
	}
	if ok, _ := payments.allow(req); ok {
		t.Fatalf("payments budget should be spent")
	}
}

func TestIPRateLimiterGuardWritesRetryAfter(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter("test", 1, time.Minute, func() time.Time { return now })
	req := requestFrom("10.0.0.1:1")

	if !limiter.guard(req.Context(), httptest.NewRecorder(), req, "slow down") {
		t.Fatalf("first request should pass")
	}
	now = now.Add(45 * time.Second)
	rr := httptest.NewRecorder()
	if limiter.guard(req.Context(), rr, req, "slow down") {
		t.Fatalf("second request should be refused")
	}
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "15" {
		t.Fatalf("unexpected response %d retry-after=%q", rr.Code, rr.Header().Get("Retry-After"))
	}
}

func TestNewIPRateLimiterDisabled(t *testing.T) {
	limiter := newIPRateLimiter("test", 0, time.Second, nil)
	if limiter != nil {
		t.Fatalf("expected nil limiter for zero limit")
	}
	if ok, _ := limiter.allow(requestFrom("10.0.0.1:1")); !ok {
		t.Fatalf("disabled limiter must allow")
	}
}

func TestClientIPFallsBackToAnonymous(t *testing.T) {
	if got := clientIP(requestFrom("")); got != "anonymous" {
		t.Fatalf("expected anonymous, got %q", got)
	}
	if got := clientIP(requestFrom("192.0.2.4")); got != "192.0.2.4" {
		t.Fatalf("expected bare host, got %q", got)
	}
}
