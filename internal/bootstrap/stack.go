package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/config"
	"github.com/sungwon/mailrelay/internal/healthstore"
	"github.com/sungwon/mailrelay/internal/mailer"
	"github.com/sungwon/mailrelay/internal/provider"
	"github.com/sungwon/mailrelay/internal/registry"
	"github.com/sungwon/mailrelay/internal/storage"
)

// Stack is the mailer and whatever backs it. DB and Registry are nil when
// providers come from the environment; Redis is nil unless health
// persistence is enabled or WithRedis was requested.
type Stack struct {
	DB       *storage.DB
	Registry *registry.Registry
	Redis    *redis.Client
	Service  *mailer.Service
}

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	redis bool
	env   provider.CredentialSource
}

// WithRedis opens the shared Redis connection even when the mailer itself
// does not need it.
func WithRedis() Option {
	return func(o *buildOptions) { o.redis = true }
}

// WithEnv replaces the environment credential source.
func WithEnv(src provider.CredentialSource) Option {
	return func(o *buildOptions) { o.env = src }
}

// Build connects the configured backing stores and constructs the mailer
// service. The caller owns the returned Stack and must Close it.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*Stack, error) {
	o := buildOptions{env: provider.EnvSource{}}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Stack{}
	senderOpts := cfg.Mailer.ProviderOptions()

	var loader mailer.Loader
	var mailerOpts []mailer.Option

	switch cfg.Mailer.ProviderSource {
	case config.SourceEnv:
		loader = registry.EnvLoader(o.env, senderOpts, log)
		log.Info().Msg("loading providers from environment")
	default:
		db, err := storage.NewDB(ctx, cfg.Database.Pool())
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		s.DB = db
		s.Registry = registry.New(db.Queries(), log,
			registry.WithSenderOptions(senderOpts),
			registry.WithEnv(o.env),
			registry.WithPinger(db.Ping),
		)
		loader = s.Registry
		mailerOpts = append(mailerOpts, mailer.WithStatsSink(s.Registry))
		log.Info().Msg("database connection established")

		if cfg.Mailer.SeedFromEnv {
			if err := SeedProviders(ctx, s.Registry, log); err != nil {
				s.Close()
				return nil, err
			}
		}
	}

	if o.redis || cfg.Mailer.PersistHealth {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			s.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.Redis = client
	}
	if cfg.Mailer.PersistHealth {
		mailerOpts = append(mailerOpts, mailer.WithHealthStore(healthstore.NewRedisStore(s.Redis, cfg.Mailer.HealthTTL, log)))
	}

	svc, err := mailer.NewService(ctx, loader, cfg.Mailer.Mailer(), log, mailerOpts...)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("build mailer: %w", err)
	}
	s.Service = svc

	st := svc.Status()
	log.Info().
		Int("providers", st.ProvidersAvailable).
		Strs("priority_order", st.PriorityOrder).
		Msg("mailer ready")
	return s, nil
}

// Close releases the database pool and Redis connection.
func (s *Stack) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
