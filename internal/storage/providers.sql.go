// source: providers.sql

package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const countProviders = `-- name: CountProviders :one
SELECT COUNT(*) FROM providers
`

func (q *Queries) CountProviders(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, countProviders)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createProvider = `-- name: CreateProvider :one
INSERT INTO providers (name, provider_type, credentials, priority, enabled, daily_limit)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, name, provider_type, credentials, priority, enabled, daily_limit, used_today, success_count, failure_count, last_used, created_at, updated_at
`

type CreateProviderParams struct {
	Name         string `json:"name"`
	ProviderType string `json:"provider_type"`
	Credentials  []byte `json:"credentials"`
	Priority     int32  `json:"priority"`
	Enabled      bool   `json:"enabled"`
	DailyLimit   int32  `json:"daily_limit"`
}

func (q *Queries) CreateProvider(ctx context.Context, arg CreateProviderParams) (Provider, error) {
	row := q.db.QueryRow(ctx, createProvider,
		arg.Name,
		arg.ProviderType,
		arg.Credentials,
		arg.Priority,
		arg.Enabled,
		arg.DailyLimit,
	)
	var i Provider
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ProviderType,
		&i.Credentials,
		&i.Priority,
		&i.Enabled,
		&i.DailyLimit,
		&i.UsedToday,
		&i.SuccessCount,
		&i.FailureCount,
		&i.LastUsed,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteProvider = `-- name: DeleteProvider :execrows
DELETE FROM providers WHERE name = $1
`

func (q *Queries) DeleteProvider(ctx context.Context, name string) (int64, error) {
	result, err := q.db.Exec(ctx, deleteProvider, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const getProviderByName = `-- name: GetProviderByName :one
SELECT id, name, provider_type, credentials, priority, enabled, daily_limit, used_today, success_count, failure_count, last_used, created_at, updated_at FROM providers
WHERE name = $1
`

func (q *Queries) GetProviderByName(ctx context.Context, name string) (Provider, error) {
	row := q.db.QueryRow(ctx, getProviderByName, name)
	var i Provider
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ProviderType,
		&i.Credentials,
		&i.Priority,
		&i.Enabled,
		&i.DailyLimit,
		&i.UsedToday,
		&i.SuccessCount,
		&i.FailureCount,
		&i.LastUsed,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const listEnabledProviders = `-- name: ListEnabledProviders :many
SELECT id, name, provider_type, credentials, priority, enabled, daily_limit, used_today, success_count, failure_count, last_used, created_at, updated_at FROM providers
WHERE enabled = TRUE
ORDER BY priority ASC, name ASC
`

func (q *Queries) ListEnabledProviders(ctx context.Context) ([]Provider, error) {
	return q.listProviders(ctx, listEnabledProviders)
}

const listProviders = `-- name: ListProviders :many
SELECT id, name, provider_type, credentials, priority, enabled, daily_limit, used_today, success_count, failure_count, last_used, created_at, updated_at FROM providers
ORDER BY priority ASC, name ASC
`

func (q *Queries) ListProviders(ctx context.Context) ([]Provider, error) {
	return q.listProviders(ctx, listProviders)
}

func (q *Queries) listProviders(ctx context.Context, query string) ([]Provider, error) {
	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Provider
	for rows.Next() {
		var i Provider
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.ProviderType,
			&i.Credentials,
			&i.Priority,
			&i.Enabled,
			&i.DailyLimit,
			&i.UsedToday,
			&i.SuccessCount,
			&i.FailureCount,
			&i.LastUsed,
			&i.CreatedAt,
			&i.UpdatedAt,
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

const resetDailyUsage = `-- name: ResetDailyUsage :execrows
UPDATE providers SET used_today = 0, updated_at = NOW()
`

func (q *Queries) ResetDailyUsage(ctx context.Context) (int64, error) {
	result, err := q.db.Exec(ctx, resetDailyUsage)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const setProviderEnabled = `-- name: SetProviderEnabled :one
UPDATE providers SET enabled = $2, updated_at = NOW()
WHERE name = $1
RETURNING id, name, provider_type, credentials, priority, enabled, daily_limit, used_today, success_count, failure_count, last_used, created_at, updated_at
`

type SetProviderEnabledParams struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (q *Queries) SetProviderEnabled(ctx context.Context, arg SetProviderEnabledParams) (Provider, error) {
	row := q.db.QueryRow(ctx, setProviderEnabled, arg.Name, arg.Enabled)
	var i Provider
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ProviderType,
		&i.Credentials,
		&i.Priority,
		&i.Enabled,
		&i.DailyLimit,
		&i.UsedToday,
		&i.SuccessCount,
		&i.FailureCount,
		&i.LastUsed,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const updateProvider = `-- name: UpdateProvider :one
UPDATE providers SET
    credentials = COALESCE($2::jsonb, credentials),
    priority    = COALESCE($3::integer, priority),
    enabled     = COALESCE($4::boolean, enabled),
    daily_limit = COALESCE($5::integer, daily_limit),
    updated_at  = NOW()
WHERE name = $1
RETURNING id, name, provider_type, credentials, priority, enabled, daily_limit, used_today, success_count, failure_count, last_used, created_at, updated_at
`

type UpdateProviderParams struct {
	Name        string      `json:"name"`
	Credentials []byte      `json:"credentials"`
	Priority    pgtype.Int4 `json:"priority"`
	Enabled     pgtype.Bool `json:"enabled"`
	DailyLimit  pgtype.Int4 `json:"daily_limit"`
}

func (q *Queries) UpdateProvider(ctx context.Context, arg UpdateProviderParams) (Provider, error) {
	row := q.db.QueryRow(ctx, updateProvider,
		arg.Name,
		arg.Credentials,
		arg.Priority,
		arg.Enabled,
		arg.DailyLimit,
	)
	var i Provider
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ProviderType,
		&i.Credentials,
		&i.Priority,
		&i.Enabled,
		&i.DailyLimit,
		&i.UsedToday,
		&i.SuccessCount,
		&i.FailureCount,
		&i.LastUsed,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}
