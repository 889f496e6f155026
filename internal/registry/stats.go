package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/sungwon/mailrelay/internal/storage"
)

// DefaultHistoryDays is the history window Stats uses when days <= 0.
const DefaultHistoryDays = 30

// DailyStat is one day of delivery counts for a provider.
type DailyStat struct {
	Date   string `json:"date"`
	Sent   int    `json:"sent"`
	Failed int    `json:"failed"`
}

// Stats summarizes a provider's lifetime and recent usage.
type Stats struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Enabled     bool        `json:"enabled"`
	Priority    int         `json:"priority"`
	DailyUsage  string      `json:"daily_usage"`
	SuccessRate float64     `json:"success_rate"`
	TotalSent   int64       `json:"total_sent"`
	TotalFailed int64       `json:"total_failed"`
	LastUsed    *time.Time  `json:"last_used,omitempty"`
	History     []DailyStat `json:"history"`
}

// RecordProviderOutcome counts one attempt against the provider and its
// daily stats row. A success also consumes one unit of the daily quota.
func (r *Registry) RecordProviderOutcome(ctx context.Context, name string, success bool, at time.Time) error {
	at = at.UTC()
	n, err := r.q.RecordProviderOutcome(ctx, storage.RecordProviderOutcomeParams{
		Name:     name,
		Success:  success,
		LastUsed: pgtype.Timestamptz{Time: at, Valid: true},
		Date:     pgDate(at),
	})
	if err != nil {
		return r.dbError("record_provider_outcome", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return nil
}

// ResetDailyLimits zeroes used_today for every provider and returns how many
// were reset.
func (r *Registry) ResetDailyLimits(ctx context.Context) (int64, error) {
	n, err := r.q.ResetDailyUsage(ctx)
	if err != nil {
		return 0, r.dbError("reset_daily_usage", err)
	}
	r.log.Info().Int64("providers", n).Msg("daily usage reset")
	return n, nil
}

// Stats returns totals and the last days of history for the provider.
func (r *Registry) Stats(ctx context.Context, name string, days int) (Stats, error) {
	if days <= 0 {
		days = DefaultHistoryDays
	}
	p, err := r.Get(ctx, name)
	if err != nil {
		return Stats{}, err
	}

	since := r.now().UTC().AddDate(0, 0, -days)
	rows, err := r.q.ListProviderStats(ctx, storage.ListProviderStatsParams{
		ProviderName: name,
		Since:        pgDate(since),
	})
	if err != nil {
		return Stats{}, r.dbError("list_provider_stats", err)
	}

	history := make([]DailyStat, 0, len(rows))
	for _, row := range rows {
		history = append(history, DailyStat{
			Date:   row.Date.Time.Format("2006-01-02"),
			Sent:   int(row.Sent),
			Failed: int(row.Failed),
		})
	}

	return Stats{
		Name:        p.Name,
		Type:        p.Type,
		Enabled:     p.Enabled,
		Priority:    p.Priority,
		DailyUsage:  fmt.Sprintf("%d/%d", p.UsedToday, p.DailyLimit),
		SuccessRate: successRate(p.SuccessCount, p.FailureCount),
		TotalSent:   p.SuccessCount,
		TotalFailed: p.FailureCount,
		LastUsed:    p.LastUsed,
		History:     history,
	}, nil
}

// successRate is a percentage rounded to one decimal, 0 with no attempts.
func successRate(success, failure int64) float64 {
	total := success + failure
	if total == 0 {
		return 0
	}
	pct := float64(success) / float64(total) * 100
	return float64(int64(pct*10+0.5)) / 10
}

func pgDate(t time.Time) pgtype.Date {
	y, m, d := t.UTC().Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}
