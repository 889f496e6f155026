package api

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sungwon/mailrelay/internal/mailer"
	"github.com/sungwon/mailrelay/internal/queue"
	"github.com/sungwon/mailrelay/internal/registry"
	"github.com/sungwon/mailrelay/internal/reportstore"
)

// mockMailer implements MailService.
type mockMailer struct {
	mu         sync.Mutex
	result     mailer.SendResult
	sendErr    error
	refreshErr error
	refreshes  int
	lastTo     string
	preferred  string
	status     mailer.Status
}

func (m *mockMailer) SendSingle(_ context.Context, to, _, _, preferred string) (mailer.SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTo = to
	m.preferred = preferred
	return m.result, m.sendErr
}

func (m *mockMailer) Status() mailer.Status { return m.status }

func (m *mockMailer) Refresh(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	return m.refreshErr
}

// mockRegistry is an in-memory ProviderRegistry.
type mockRegistry struct {
	mu        sync.Mutex
	providers map[string]registry.Provider
	listErr   error
	health    registry.HealthReport
}

func newMockRegistry(ps ...registry.Provider) *mockRegistry {
	r := &mockRegistry{providers: make(map[string]registry.Provider)}
	for _, p := range ps {
		r.providers[p.Name] = p
	}
	return r
}

func (r *mockRegistry) Add(_ context.Context, req registry.AddRequest) (registry.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Type == "carrier-pigeon" {
		return registry.Provider{}, registry.ErrUnknownType
	}
	if _, ok := r.providers[req.Name]; ok {
		return registry.Provider{}, registry.ErrDuplicate
	}
	p := registry.Provider{
		Name:        req.Name,
		Type:        req.Type,
		Credentials: req.Credentials,
		Priority:    req.Priority,
		Enabled:     !req.Disabled,
		DailyLimit:  req.DailyLimit,
		CreatedAt:   time.Now(),
	}
	r.providers[p.Name] = p
	return p, nil
}

func (r *mockRegistry) Update(_ context.Context, name string, u registry.Update) (registry.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return registry.Provider{}, registry.ErrNotFound
	}
	if u.Priority == nil && u.Enabled == nil && u.DailyLimit == nil && u.Credentials == nil {
		return registry.Provider{}, registry.ErrNoChanges
	}
	if u.Priority != nil {
		p.Priority = *u.Priority
	}
	if u.Enabled != nil {
		p.Enabled = *u.Enabled
	}
	r.providers[name] = p
	return p, nil
}

func (r *mockRegistry) Remove(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[name]; !ok {
		return registry.ErrNotFound
	}
	delete(r.providers, name)
	return nil
}

func (r *mockRegistry) setEnabled(name string, enabled bool) (registry.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return registry.Provider{}, registry.ErrNotFound
	}
	p.Enabled = enabled
	r.providers[name] = p
	return p, nil
}

func (r *mockRegistry) Enable(_ context.Context, name string) (registry.Provider, error) {
	return r.setEnabled(name, true)
}

func (r *mockRegistry) Disable(_ context.Context, name string) (registry.Provider, error) {
	return r.setEnabled(name, false)
}

func (r *mockRegistry) Get(_ context.Context, name string) (registry.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return registry.Provider{}, registry.ErrNotFound
	}
	return p, nil
}

func (r *mockRegistry) List(_ context.Context, enabledOnly bool) ([]registry.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []registry.Provider
	for _, p := range r.providers {
		if enabledOnly && !p.Enabled {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *mockRegistry) Stats(_ context.Context, name string, days int) (registry.Stats, error) {
	p, err := r.Get(context.Background(), name)
	if err != nil {
		return registry.Stats{}, err
	}
	return registry.Stats{Name: p.Name, Type: p.Type, History: make([]registry.DailyStat, 0, days)}, nil
}

func (r *mockRegistry) HealthCheck(context.Context) registry.HealthReport { return r.health }

// mockEnqueuer implements queue.Enqueuer.
type mockEnqueuer struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

func (q *mockEnqueuer) Enqueue(_ context.Context, job *queue.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return "1-0", nil
}

// mockDLQ implements DeadLetters.
type mockDLQ struct {
	entries []queue.DLQEntry
	limit   int
	ids     []string
	n       int
	err     error
}

func (d *mockDLQ) DeadJobs(_ context.Context, limit int) ([]queue.DLQEntry, error) {
	d.limit = limit
	return d.entries, d.err
}

func (d *mockDLQ) Reprocess(_ context.Context, ids []string) (int, error) {
	d.ids = ids
	return d.n, d.err
}

// mockArchive is an in-memory ReportArchive.
type mockArchive struct {
	mu      sync.Mutex
	records map[string]reportstore.Record
}

func newMockArchive() *mockArchive {
	return &mockArchive{records: make(map[string]reportstore.Record)}
}

func (a *mockArchive) Save(_ context.Context, rec reportstore.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[rec.JobID] = rec
	return nil
}

func (a *mockArchive) Load(_ context.Context, id string) (reportstore.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id == ".." {
		return reportstore.Record{}, reportstore.ErrInvalidID
	}
	rec, ok := a.records[id]
	if !ok {
		return reportstore.Record{}, reportstore.ErrNotFound
	}
	return rec, nil
}

var errBoom = errors.New("boom")
