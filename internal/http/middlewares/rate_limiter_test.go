package middlewares_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/countryauth/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type errLimiter struct{}

func (errLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis: connection refused")
}

func newLimitedRouter(l middlewares.Limiter, rej middlewares.RejectionRecorder) *gin.Engine {
	r := gin.New()
	r.POST("/login", middlewares.RateLimit(l, middlewares.KeyByIP, rej), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRateLimiter_FixedWindow(t *testing.T) {
	rl := middlewares.NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := rl.Allow(ctx, "k")
		if err != nil || !ok {
			t.Fatalf("attempt %d should pass: ok=%v err=%v", i, ok, err)
		}
	}

	ok, retry, err := rl.Allow(ctx, "k")
	if err != nil || ok {
		t.Fatalf("third attempt should be limited: ok=%v err=%v", ok, err)
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("retryAfter out of range: %v", retry)
	}

	// other keys have their own window
	if ok, _, _ := rl.Allow(ctx, "other"); !ok {
		t.Fatalf("independent key should pass")
	}
}

func TestRateLimiter_ZeroLimitAdmitsNothing(t *testing.T) {
	rl := middlewares.NewRateLimiter(0, time.Minute)

	for i := 0; i < 3; i++ {
		ok, retry, err := rl.Allow(context.Background(), "k")
		if err != nil || ok {
			t.Fatalf("attempt %d should be limited: ok=%v err=%v", i, ok, err)
		}
		if retry <= 0 {
			t.Fatalf("attempt %d: retryAfter = %v", i, retry)
		}
	}
}

func TestRateLimit_429WithRetryAfter(t *testing.T) {
	rej := &countingRejections{}
	r := newLimitedRouter(middlewares.NewRateLimiter(1, time.Minute), rej)

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/login", nil))
	if first.Code != http.StatusNoContent {
		t.Fatalf("first request: %d", first.Code)
	}

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/login", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if decodeMsg(t, second) == "" {
		t.Fatalf("expected a msg body")
	}
	if len(rej.reasons) != 1 || rej.reasons[0] != "rate_limited" {
		t.Fatalf("rejections = %v", rej.reasons)
	}
}

func TestRateLimit_FailsOpen(t *testing.T) {
	r := newLimitedRouter(errLimiter{}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("limiter errors must not block requests, got %d", w.Code)
	}
}
