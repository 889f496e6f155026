// Package healthstore persists mailer health counters in Redis so the
// circuit breaker survives process restarts.
package healthstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sungwon/mailrelay/internal/mailer"
)

const (
	// DefaultTTL expires counters of providers that stopped being used.
	DefaultTTL = 7 * 24 * time.Hour

	keyPrefix = "mailer:health:"
)

// RedisStore implements mailer.HealthStore with one JSON value per provider.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

var _ mailer.HealthStore = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore. A non-positive ttl means DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration, log zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, log: log}
}

func healthKey(name string) string {
	return keyPrefix + name
}

// Load fetches stored counters for the given providers with a single MGET.
// Providers without stored counters are omitted.
func (s *RedisStore) Load(ctx context.Context, names []string) ([]mailer.Health, error) {
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = healthKey(name)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget health: %w", err)
	}
	return s.decode(names, vals), nil
}

func (s *RedisStore) decode(names []string, vals []interface{}) []mailer.Health {
	out := make([]mailer.Health, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var h mailer.Health
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			s.log.Warn().Err(err).Str("provider", names[i]).Msg("discarding unreadable health entry")
			continue
		}
		h.Name = names[i]
		out = append(out, h)
	}
	return out
}

// Save overwrites the stored counters of one provider and refreshes its TTL.
func (s *RedisStore) Save(ctx context.Context, h mailer.Health) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("marshal health: %w", err)
	}
	if err := s.client.Set(ctx, healthKey(h.Name), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set health %s: %w", h.Name, err)
	}
	return nil
}

// Reset deletes stored counters for the given providers.
func (s *RedisStore) Reset(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return nil
	}
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = healthKey(name)
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del health: %w", err)
	}
	return nil
}
