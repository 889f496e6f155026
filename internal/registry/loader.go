package registry

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sungwon/mailrelay/internal/mailer"
	"github.com/sungwon/mailrelay/internal/provider"
)

// LoadBackends builds mailer backends from the enabled providers. Providers
// with an unknown type or incomplete credentials are logged and left out.
func (r *Registry) LoadBackends(ctx context.Context) ([]mailer.Backend, error) {
	providers, err := r.ListEnabledProviders(ctx)
	if err != nil {
		return nil, err
	}

	backends := make([]mailer.Backend, 0, len(providers))
	for _, p := range providers {
		d, ok := provider.Lookup(p.Type)
		if !ok {
			r.log.Warn().Str("provider", p.Name).Str("type", p.Type).Msg("skipping provider with unknown type")
			continue
		}
		b := provider.Resolve(p.Name, d, provider.MapSource(p.Credentials))
		s, err := provider.NewSender(ctx, b, r.senderOpts)
		if err != nil {
			r.log.Warn().Err(err).Str("provider", p.Name).Msg("skipping provider")
			continue
		}
		backends = append(backends, mailer.Backend{
			Name:     p.Name,
			Priority: p.Priority,
			Enabled:  true,
			Sender:   s,
		})
	}
	return backends, nil
}

// EnvLoader builds backends straight from environment credentials, for
// deployments without a registry database.
func EnvLoader(src provider.CredentialSource, opts provider.Options, log zerolog.Logger) mailer.Loader {
	return mailer.LoaderFunc(func(ctx context.Context) ([]mailer.Backend, error) {
		senders, bundles, skipped, err := provider.FromEnvironment(ctx, src, opts)
		if err != nil {
			return nil, err
		}
		for _, b := range skipped {
			log.Debug().Str("provider", b.Name).Strs("missing", b.Missing).Msg("provider not configured")
		}

		backends := make([]mailer.Backend, len(senders))
		for i, s := range senders {
			backends[i] = mailer.Backend{
				Name:     s.Name(),
				Priority: bundles[i].Descriptor.StaticPriority,
				Enabled:  true,
				Sender:   s,
			}
		}
		return backends, nil
	})
}
