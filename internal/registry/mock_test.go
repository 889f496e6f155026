package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/sungwon/mailrelay/internal/storage"
)

// memQuerier is an in-memory storage.Querier with the same ordering and
// not-found behavior as the SQL queries.
type memQuerier struct {
	mu        sync.Mutex
	providers map[string]storage.Provider
	stats     map[string]map[time.Time]storage.ProviderStat
	failWith  error
}

func newMemQuerier() *memQuerier {
	return &memQuerier{
		providers: map[string]storage.Provider{},
		stats:     map[string]map[time.Time]storage.ProviderStat{},
	}
}

var _ storage.Querier = (*memQuerier)(nil)

func now() pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: time.Now().UTC(), Valid: true}
}

func (m *memQuerier) CountProviders(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	return int64(len(m.providers)), nil
}

func (m *memQuerier) CreateProvider(ctx context.Context, arg storage.CreateProviderParams) (storage.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return storage.Provider{}, m.failWith
	}
	if _, ok := m.providers[arg.Name]; ok {
		return storage.Provider{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	}
	p := storage.Provider{
		ID:           uuid.New(),
		Name:         arg.Name,
		ProviderType: arg.ProviderType,
		Credentials:  arg.Credentials,
		Priority:     arg.Priority,
		Enabled:      arg.Enabled,
		DailyLimit:   arg.DailyLimit,
		CreatedAt:    now(),
		UpdatedAt:    now(),
	}
	m.providers[arg.Name] = p
	return p, nil
}

func (m *memQuerier) DeleteProvider(ctx context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[name]; !ok {
		return 0, nil
	}
	delete(m.providers, name)
	delete(m.stats, name)
	return 1, nil
}

func (m *memQuerier) GetProviderByName(ctx context.Context, name string) (storage.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return storage.Provider{}, m.failWith
	}
	p, ok := m.providers[name]
	if !ok {
		return storage.Provider{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *memQuerier) list(enabledOnly bool) ([]storage.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	var out []storage.Provider
	for _, p := range m.providers {
		if enabledOnly && !p.Enabled {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *memQuerier) ListEnabledProviders(ctx context.Context) ([]storage.Provider, error) {
	return m.list(true)
}

func (m *memQuerier) ListProviders(ctx context.Context) ([]storage.Provider, error) {
	return m.list(false)
}

func (m *memQuerier) ListProviderStats(ctx context.Context, arg storage.ListProviderStatsParams) ([]storage.ProviderStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.ProviderStat
	for day, s := range m.stats[arg.ProviderName] {
		if !day.Before(arg.Since.Time) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Time.After(out[j].Date.Time) })
	return out, nil
}

func (m *memQuerier) RecordProviderOutcome(ctx context.Context, arg storage.RecordProviderOutcomeParams) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	p, ok := m.providers[arg.Name]
	if !ok {
		return 0, nil
	}
	if arg.Success {
		p.SuccessCount++
		p.UsedToday++
	} else {
		p.FailureCount++
	}
	p.LastUsed = arg.LastUsed
	m.providers[arg.Name] = p

	days := m.stats[arg.Name]
	if days == nil {
		days = map[time.Time]storage.ProviderStat{}
		m.stats[arg.Name] = days
	}
	s := days[arg.Date.Time]
	s.ProviderName = arg.Name
	s.Date = arg.Date
	if arg.Success {
		s.Sent++
	} else {
		s.Failed++
	}
	days[arg.Date.Time] = s
	return 1, nil
}

func (m *memQuerier) ResetDailyUsage(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, p := range m.providers {
		p.UsedToday = 0
		m.providers[name] = p
	}
	return int64(len(m.providers)), nil
}

func (m *memQuerier) SetProviderEnabled(ctx context.Context, arg storage.SetProviderEnabledParams) (storage.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[arg.Name]
	if !ok {
		return storage.Provider{}, pgx.ErrNoRows
	}
	p.Enabled = arg.Enabled
	p.UpdatedAt = now()
	m.providers[arg.Name] = p
	return p, nil
}

func (m *memQuerier) UpdateProvider(ctx context.Context, arg storage.UpdateProviderParams) (storage.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[arg.Name]
	if !ok {
		return storage.Provider{}, pgx.ErrNoRows
	}
	if arg.Credentials != nil {
		p.Credentials = arg.Credentials
	}
	if arg.Priority.Valid {
		p.Priority = arg.Priority.Int32
	}
	if arg.Enabled.Valid {
		p.Enabled = arg.Enabled.Bool
	}
	if arg.DailyLimit.Valid {
		p.DailyLimit = arg.DailyLimit.Int32
	}
	p.UpdatedAt = now()
	m.providers[arg.Name] = p
	return p, nil
}

var errDBDown = errors.New("connection refused")

func newTestRegistry(q storage.Querier, opts ...Option) *Registry {
	return New(q, zerolog.Nop(), opts...)
}

func envOf(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}
