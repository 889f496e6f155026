package storage

import (
	"context"
)

type Querier interface {
	CountProviders(ctx context.Context) (int64, error)
	CreateProvider(ctx context.Context, arg CreateProviderParams) (Provider, error)
	DeleteProvider(ctx context.Context, name string) (int64, error)
	GetProviderByName(ctx context.Context, name string) (Provider, error)
	ListEnabledProviders(ctx context.Context) ([]Provider, error)
	ListProviderStats(ctx context.Context, arg ListProviderStatsParams) ([]ProviderStat, error)
	ListProviders(ctx context.Context) ([]Provider, error)
	RecordProviderOutcome(ctx context.Context, arg RecordProviderOutcomeParams) (int64, error)
	ResetDailyUsage(ctx context.Context) (int64, error)
	SetProviderEnabled(ctx context.Context, arg SetProviderEnabledParams) (Provider, error)
	UpdateProvider(ctx context.Context, arg UpdateProviderParams) (Provider, error)
}

var _ Querier = (*Queries)(nil)
