package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	// RequestsPerMinute caps requests per API key; 0 disables limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// RateLimiter provides per-key fixed-window rate limiting in Redis so the
// budget is shared by every api-server replica.
type RateLimiter struct {
	client *redis.Client
	config RateLimitConfig
	now    func() time.Time
}

// NewRateLimiter creates a new RateLimiter with the given Redis client and configuration.
func NewRateLimiter(client *redis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
		now:    time.Now,
	}
}

// Allow counts one request for keyName in the current minute and reports
// whether it is within budget, plus the time until the window resets.
func (rl *RateLimiter) Allow(ctx context.Context, keyName string) (bool, time.Duration, error) {
	if rl.client == nil || rl.config.RequestsPerMinute <= 0 {
		// No Redis client or no limit configured; skip rate limiting.
		return true, 0, nil
	}

	now := rl.now().UTC()
	window := now.Truncate(time.Minute)
	reset := window.Add(time.Minute).Sub(now)
	key := windowKey(keyName, window)

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, time.Minute+5*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("increment request count: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerMinute), reset, nil
}

// Middleware rejects requests over budget with 429. Redis failures let the
// request through.
func (rl *RateLimiter) Middleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := KeyNameFromContext(r.Context())
			if name == "" {
				name = "anonymous"
			}

			ok, reset, err := rl.Allow(r.Context(), name)
			if err != nil {
				log.Warn().Err(err).Str("key", name).Msg("rate limit check failed, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(reset.Seconds())+1))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// windowKey returns the Redis counter key of keyName for the minute starting at window.
func windowKey(keyName string, window time.Time) string {
	return fmt.Sprintf("ratelimit:api:%s:%s", keyName, window.Format("200601021504"))
}
