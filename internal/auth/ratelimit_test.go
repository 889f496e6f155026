package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWindowKey(t *testing.T) {
	window := time.Date(2026, 2, 3, 4, 5, 0, 0, time.UTC)
	if got := windowKey("ops", window); got != "ratelimit:api:ops:202602030405" {
		t.Errorf("windowKey() = %q", got)
	}
}

func TestNewRateLimiter_NilClient(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{RequestsPerMinute: 1})
	if rl == nil {
		t.Fatal("NewRateLimiter() returned nil")
	}

	// Without Redis every request is allowed.
	for i := 0; i < 3; i++ {
		ok, _, err := rl.Allow(t.Context(), "ops")
		if err != nil || !ok {
			t.Fatalf("Allow() = %v, %v; want true, nil", ok, err)
		}
	}
}

func TestRateLimiter_Middleware_Disabled(t *testing.T) {
	rl := NewRateLimiter(nil, RateLimitConfig{})
	called := 0
	handler := rl.Middleware(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
		}
	}
	if called != 5 {
		t.Errorf("handler called %d times, want 5", called)
	}
}
