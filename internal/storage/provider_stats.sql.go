// source: provider_stats.sql

package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const listProviderStats = `-- name: ListProviderStats :many
SELECT provider_name, date, sent, failed FROM provider_stats
WHERE provider_name = $1 AND date >= $2
ORDER BY date DESC
`

type ListProviderStatsParams struct {
	ProviderName string      `json:"provider_name"`
	Since        pgtype.Date `json:"since"`
}

func (q *Queries) ListProviderStats(ctx context.Context, arg ListProviderStatsParams) ([]ProviderStat, error) {
	rows, err := q.db.Query(ctx, listProviderStats, arg.ProviderName, arg.Since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProviderStat
	for rows.Next() {
		var i ProviderStat
		if err := rows.Scan(
			&i.ProviderName,
			&i.Date,
			&i.Sent,
			&i.Failed,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const recordProviderOutcome = `-- name: RecordProviderOutcome :execrows
WITH updated AS (
    UPDATE providers SET
        success_count = success_count + CASE WHEN $2::boolean THEN 1 ELSE 0 END,
        failure_count = failure_count + CASE WHEN $2::boolean THEN 0 ELSE 1 END,
        used_today    = used_today + CASE WHEN $2::boolean THEN 1 ELSE 0 END,
        last_used     = $3,
        updated_at    = NOW()
    WHERE name = $1
    RETURNING name
)
INSERT INTO provider_stats (provider_name, date, sent, failed)
SELECT name, $4::date,
       CASE WHEN $2::boolean THEN 1 ELSE 0 END,
       CASE WHEN $2::boolean THEN 0 ELSE 1 END
FROM updated
ON CONFLICT (provider_name, date) DO UPDATE SET
    sent   = provider_stats.sent + EXCLUDED.sent,
    failed = provider_stats.failed + EXCLUDED.failed
`

type RecordProviderOutcomeParams struct {
	Name     string             `json:"name"`
	Success  bool               `json:"success"`
	LastUsed pgtype.Timestamptz `json:"last_used"`
	Date     pgtype.Date        `json:"date"`
}

// RecordProviderOutcome bumps the provider counters and its daily stats row in
// one statement. It affects zero rows when the provider does not exist.
func (q *Queries) RecordProviderOutcome(ctx context.Context, arg RecordProviderOutcomeParams) (int64, error) {
	result, err := q.db.Exec(ctx, recordProviderOutcome,
		arg.Name,
		arg.Success,
		arg.LastUsed,
		arg.Date,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
