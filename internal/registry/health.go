package registry

import (
	"context"
	"time"

	"github.com/sungwon/mailrelay/internal/provider"
)

// Health status values reported by HealthCheck.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// CredentialCheck reports whether an enabled provider's stored credentials
// still resolve against its descriptor.
type CredentialCheck struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	OK      bool     `json:"ok"`
	Missing []string `json:"missing,omitempty"`
}

// HealthReport is the registry health summary.
type HealthReport struct {
	Module             string            `json:"module"`
	Status             string            `json:"status"`
	DatabaseAccessible bool              `json:"database_accessible"`
	TotalProviders     int               `json:"total_providers"`
	EnabledProviders   int               `json:"enabled_providers"`
	TotalEmailsSent    int64             `json:"total_emails_sent"`
	TotalEmailsFailed  int64             `json:"total_emails_failed"`
	SuccessRate        float64           `json:"success_rate"`
	Credentials        []CredentialCheck `json:"credentials,omitempty"`
	Warning            string            `json:"warning,omitempty"`
	Error              string            `json:"error,omitempty"`
	Timestamp          time.Time         `json:"timestamp"`
}

// HealthCheck reports database reachability, provider counts, aggregate
// delivery totals and credential completeness of the enabled providers.
// Failures are reported in the result, never returned.
func (r *Registry) HealthCheck(ctx context.Context) HealthReport {
	report := HealthReport{
		Module:    "providers",
		Status:    StatusError,
		Timestamp: r.now().UTC(),
	}

	if r.ping != nil {
		if err := r.ping(ctx); err != nil {
			report.Error = err.Error()
			return report
		}
	}

	providers, err := r.List(ctx, false)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.DatabaseAccessible = true
	report.TotalProviders = len(providers)

	var broken int
	for _, p := range providers {
		report.TotalEmailsSent += p.SuccessCount
		report.TotalEmailsFailed += p.FailureCount
		if !p.Enabled {
			continue
		}
		report.EnabledProviders++

		check := CredentialCheck{Name: p.Name, Type: p.Type}
		if d, ok := provider.Lookup(p.Type); ok {
			b := provider.Resolve(p.Name, d, provider.MapSource(p.Credentials))
			check.OK = b.Enabled
			check.Missing = b.Missing
		} else {
			check.Missing = []string{"unknown provider type"}
		}
		if !check.OK {
			broken++
		}
		report.Credentials = append(report.Credentials, check)
	}
	report.SuccessRate = successRate(report.TotalEmailsSent, report.TotalEmailsFailed)

	switch {
	case report.EnabledProviders == 0:
		report.Status = StatusDegraded
		report.Warning = "no enabled providers"
	case broken > 0:
		report.Status = StatusDegraded
		report.Warning = "some enabled providers have incomplete credentials"
	default:
		report.Status = StatusHealthy
	}
	return report
}

// SeedFromEnv registers one provider per built-in descriptor whose
// environment credentials resolve. It does nothing when the registry already
// holds providers and returns the names it added.
func (r *Registry) SeedFromEnv(ctx context.Context) ([]string, error) {
	count, err := r.q.CountProviders(ctx)
	if err != nil {
		return nil, r.dbError("count_providers", err)
	}
	if count > 0 {
		r.log.Info().Int64("providers", count).Msg("registry already populated, skipping seed")
		return nil, nil
	}

	var added []string
	for _, d := range provider.Descriptors() {
		b := provider.Resolve(d.Name, d, r.env)
		if !b.Enabled {
			continue
		}
		if _, err := r.Add(ctx, AddRequest{
			Name:        d.Name,
			Type:        d.Name,
			Credentials: b.Values,
			Priority:    d.StaticPriority,
		}); err != nil {
			return added, err
		}
		added = append(added, d.Name)
	}

	r.log.Info().Strs("providers", added).Msg("seeded providers from environment")
	return added, nil
}
