// Package registry stores configured provider instances and their usage
// counters, and turns the enabled ones into mailer backends.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/sungwon/mailrelay/internal/metrics"
	"github.com/sungwon/mailrelay/internal/provider"
	"github.com/sungwon/mailrelay/internal/storage"
)

var (
	ErrNotFound           = errors.New("provider not found")
	ErrDuplicate          = errors.New("provider already exists")
	ErrUnknownType        = errors.New("unknown provider type")
	ErrMissingCredentials = errors.New("missing required credentials")
	ErrNoChanges          = errors.New("no fields to update")
)

const (
	DefaultDailyLimit = 1000

	// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
	uniqueViolation = "23505"
)

// Provider is a registered provider instance.
type Provider struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"provider_type"`
	Credentials  map[string]string `json:"-"`
	Priority     int               `json:"priority"`
	Enabled      bool              `json:"enabled"`
	DailyLimit   int               `json:"daily_limit"`
	UsedToday    int               `json:"used_today"`
	SuccessCount int64             `json:"success_count"`
	FailureCount int64             `json:"failure_count"`
	LastUsed     *time.Time        `json:"last_used,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// AddRequest describes a provider to register. A zero Priority falls back to
// the descriptor's static priority and a zero DailyLimit to DefaultDailyLimit.
type AddRequest struct {
	Name        string            `json:"name"`
	Type        string            `json:"provider_type"`
	Credentials map[string]string `json:"credentials"`
	Priority    int               `json:"priority"`
	DailyLimit  int               `json:"daily_limit"`
	Disabled    bool              `json:"disabled"`
}

// Update is a partial change; nil fields are left untouched. Credentials
// replace the stored document as a whole.
type Update struct {
	Credentials map[string]string `json:"credentials,omitempty"`
	Priority    *int              `json:"priority,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	DailyLimit  *int              `json:"daily_limit,omitempty"`
}

func (u Update) empty() bool {
	return u.Credentials == nil && u.Priority == nil && u.Enabled == nil && u.DailyLimit == nil
}

// Option customizes a Registry.
type Option func(*Registry)

// WithSenderOptions sets the options used to build senders in LoadBackends.
func WithSenderOptions(opts provider.Options) Option {
	return func(r *Registry) { r.senderOpts = opts }
}

// WithEnv replaces the environment credential source used by SeedFromEnv.
func WithEnv(src provider.CredentialSource) Option {
	return func(r *Registry) { r.env = src }
}

// WithPinger lets HealthCheck verify database reachability.
func WithPinger(p func(ctx context.Context) error) Option {
	return func(r *Registry) { r.ping = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry manages provider instances stored in PostgreSQL.
type Registry struct {
	q          storage.Querier
	log        zerolog.Logger
	env        provider.CredentialSource
	senderOpts provider.Options
	ping       func(ctx context.Context) error
	now        func() time.Time
}

// New creates a Registry over q.
func New(q storage.Querier, log zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		q:   q,
		log: log,
		env: provider.EnvSource{},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add validates and registers a provider. The provider type must name a
// built-in descriptor and every required credential field must be present.
func (r *Registry) Add(ctx context.Context, req AddRequest) (Provider, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return Provider{}, errors.New("provider name is required")
	}
	d, err := validateCredentials(req.Type, req.Credentials)
	if err != nil {
		return Provider{}, err
	}

	creds, err := json.Marshal(req.Credentials)
	if err != nil {
		return Provider{}, fmt.Errorf("encode credentials: %w", err)
	}
	if req.Priority == 0 {
		req.Priority = d.StaticPriority
	}
	if req.DailyLimit <= 0 {
		req.DailyLimit = DefaultDailyLimit
	}

	row, err := r.q.CreateProvider(ctx, storage.CreateProviderParams{
		Name:         req.Name,
		ProviderType: req.Type,
		Credentials:  creds,
		Priority:     int32(req.Priority),
		Enabled:      !req.Disabled,
		DailyLimit:   int32(req.DailyLimit),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Provider{}, fmt.Errorf("%s: %w", req.Name, ErrDuplicate)
		}
		return Provider{}, r.dbError("create_provider", err)
	}

	r.log.Info().Str("provider", req.Name).Str("type", req.Type).Msg("provider added")
	return toProvider(row)
}

// Update applies a partial change to the named provider.
func (r *Registry) Update(ctx context.Context, name string, u Update) (Provider, error) {
	if u.empty() {
		return Provider{}, ErrNoChanges
	}

	params := storage.UpdateProviderParams{Name: name}
	if u.Credentials != nil {
		current, err := r.Get(ctx, name)
		if err != nil {
			return Provider{}, err
		}
		if _, err := validateCredentials(current.Type, u.Credentials); err != nil {
			return Provider{}, err
		}
		creds, err := json.Marshal(u.Credentials)
		if err != nil {
			return Provider{}, fmt.Errorf("encode credentials: %w", err)
		}
		params.Credentials = creds
	}
	if u.Priority != nil {
		params.Priority = pgtype.Int4{Int32: int32(*u.Priority), Valid: true}
	}
	if u.Enabled != nil {
		params.Enabled = pgtype.Bool{Bool: *u.Enabled, Valid: true}
	}
	if u.DailyLimit != nil {
		params.DailyLimit = pgtype.Int4{Int32: int32(*u.DailyLimit), Valid: true}
	}

	row, err := r.q.UpdateProvider(ctx, params)
	if err != nil {
		return Provider{}, r.lookupError(name, "update_provider", err)
	}

	r.log.Info().Str("provider", name).Msg("provider updated")
	return toProvider(row)
}

// Remove deletes the provider together with its daily stats.
func (r *Registry) Remove(ctx context.Context, name string) error {
	n, err := r.q.DeleteProvider(ctx, name)
	if err != nil {
		return r.dbError("delete_provider", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	r.log.Info().Str("provider", name).Msg("provider removed")
	return nil
}

// Enable marks the provider usable by the mailer.
func (r *Registry) Enable(ctx context.Context, name string) (Provider, error) {
	return r.setEnabled(ctx, name, true)
}

// Disable excludes the provider from the next mailer refresh.
func (r *Registry) Disable(ctx context.Context, name string) (Provider, error) {
	return r.setEnabled(ctx, name, false)
}

func (r *Registry) setEnabled(ctx context.Context, name string, enabled bool) (Provider, error) {
	row, err := r.q.SetProviderEnabled(ctx, storage.SetProviderEnabledParams{Name: name, Enabled: enabled})
	if err != nil {
		return Provider{}, r.lookupError(name, "set_provider_enabled", err)
	}
	r.log.Info().Str("provider", name).Bool("enabled", enabled).Msg("provider toggled")
	return toProvider(row)
}

// Get returns one provider by name.
func (r *Registry) Get(ctx context.Context, name string) (Provider, error) {
	row, err := r.q.GetProviderByName(ctx, name)
	if err != nil {
		return Provider{}, r.lookupError(name, "get_provider", err)
	}
	return toProvider(row)
}

// List returns providers ordered by priority then name.
func (r *Registry) List(ctx context.Context, enabledOnly bool) ([]Provider, error) {
	var (
		rows []storage.Provider
		err  error
	)
	if enabledOnly {
		rows, err = r.q.ListEnabledProviders(ctx)
	} else {
		rows, err = r.q.ListProviders(ctx)
	}
	if err != nil {
		return nil, r.dbError("list_providers", err)
	}

	out := make([]Provider, 0, len(rows))
	for _, row := range rows {
		p, err := toProvider(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ListEnabledProviders returns the enabled providers ordered by priority,
// then name.
func (r *Registry) ListEnabledProviders(ctx context.Context) ([]Provider, error) {
	return r.List(ctx, true)
}

func validateCredentials(providerType string, creds map[string]string) (provider.Descriptor, error) {
	d, ok := provider.Lookup(providerType)
	if !ok {
		return d, fmt.Errorf("%w: %q", ErrUnknownType, providerType)
	}
	b := provider.Resolve("", d, provider.MapSource(creds))
	if !b.Enabled {
		return d, fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(b.Missing, ", "))
	}
	return d, nil
}

func (r *Registry) lookupError(name, query string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return r.dbError(query, err)
}

func (r *Registry) dbError(query string, err error) error {
	metrics.DBErrorsTotal.WithLabelValues(query).Inc()
	return fmt.Errorf("%s: %w", query, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func toProvider(row storage.Provider) (Provider, error) {
	creds, err := decodeCredentials(row.Credentials)
	if err != nil {
		return Provider{}, fmt.Errorf("provider %s: %w", row.Name, err)
	}
	p := Provider{
		ID:           row.ID,
		Name:         row.Name,
		Type:         row.ProviderType,
		Credentials:  creds,
		Priority:     int(row.Priority),
		Enabled:      row.Enabled,
		DailyLimit:   int(row.DailyLimit),
		UsedToday:    int(row.UsedToday),
		SuccessCount: row.SuccessCount,
		FailureCount: row.FailureCount,
		CreatedAt:    row.CreatedAt.Time,
		UpdatedAt:    row.UpdatedAt.Time,
	}
	if row.LastUsed.Valid {
		t := row.LastUsed.Time
		p.LastUsed = &t
	}
	return p, nil
}

// decodeCredentials accepts documents whose values are strings or numbers
// (an SMTP port is commonly stored as a number).
func decodeCredentials(raw []byte) (map[string]string, error) {
	out := map[string]string{}
	if len(raw) == 0 {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	for k, v := range doc {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// CredentialFields returns the stored credential field names, sorted, for
// display without exposing values.
func (p Provider) CredentialFields() []string {
	names := make([]string, 0, len(p.Credentials))
	for k := range p.Credentials {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
