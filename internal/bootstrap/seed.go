// Package bootstrap provides startup-time wiring shared by the binaries:
// building the mailer stack from configuration and seeding providers.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/registry"
)

type seeder interface {
	SeedFromEnv(ctx context.Context) ([]string, error)
	List(ctx context.Context, enabledOnly bool) ([]registry.Provider, error)
}

// SeedProviders registers environment-configured providers when the registry
// is empty. It is idempotent: a populated registry is left untouched. An empty
// registry after seeding is logged, since every send will then fail with
// mailer.ErrNoProviders until a provider is added.
func SeedProviders(ctx context.Context, reg seeder, log zerolog.Logger) error {
	added, err := reg.SeedFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("seed providers: %w", err)
	}
	if len(added) > 0 {
		log.Info().Strs("providers", added).Msg("providers seeded from environment")
		return nil
	}

	enabled, err := reg.List(ctx, true)
	if err != nil {
		return fmt.Errorf("list providers: %w", err)
	}
	if len(enabled) == 0 {
		log.Warn().Msg("no enabled providers; add one with mailctl providers add or POST /api/v1/providers")
	}
	return nil
}
