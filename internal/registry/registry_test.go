package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sungwon/mailrelay/internal/provider"
)

func addBrevo(t *testing.T, r *Registry, name string, priority int) Provider {
	t.Helper()
	p, err := r.Add(context.Background(), AddRequest{
		Name:        name,
		Type:        "brevo",
		Credentials: map[string]string{"api_key": "xkeysib-" + name},
		Priority:    priority,
	})
	if err != nil {
		t.Fatalf("Add(%s) failed: %v", name, err)
	}
	return p
}

func TestAdd_Defaults(t *testing.T) {
	r := newTestRegistry(newMemQuerier())

	p, err := r.Add(context.Background(), AddRequest{
		Name:        "  brevo  ",
		Type:        "brevo",
		Credentials: map[string]string{"api_key": "secret"},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if p.Name != "brevo" {
		t.Errorf("expected trimmed name 'brevo', got %q", p.Name)
	}
	if p.Priority != 1 {
		t.Errorf("expected brevo's static priority 1, got %d", p.Priority)
	}
	if p.DailyLimit != DefaultDailyLimit {
		t.Errorf("expected daily limit %d, got %d", DefaultDailyLimit, p.DailyLimit)
	}
	if !p.Enabled {
		t.Error("expected new provider to be enabled")
	}
	if p.Credentials["api_key"] != "secret" {
		t.Errorf("expected credentials to round-trip, got %v", p.Credentials)
	}
}

func TestAdd_DefaultPriorityFromDescriptor(t *testing.T) {
	r := newTestRegistry(newMemQuerier())

	tests := []struct {
		typ   string
		creds map[string]string
		want  int
	}{
		{"sendgrid", map[string]string{"api_key": "k"}, 1},
		{"postmark", map[string]string{"api_key": "k"}, 2},
		{"mailjet", map[string]string{"api_key": "k", "api_secret": "s"}, 3},
	}
	for _, tt := range tests {
		p, err := r.Add(context.Background(), AddRequest{Name: tt.typ, Type: tt.typ, Credentials: tt.creds})
		if err != nil {
			t.Fatalf("Add(%s): %v", tt.typ, err)
		}
		if p.Priority != tt.want {
			t.Errorf("%s priority = %d, want %d", tt.typ, p.Priority, tt.want)
		}
	}

	p, err := r.Add(context.Background(), AddRequest{
		Name: "pinned", Type: "sendgrid", Credentials: map[string]string{"api_key": "k"}, Priority: 7,
	})
	if err != nil {
		t.Fatalf("Add(pinned): %v", err)
	}
	if p.Priority != 7 {
		t.Errorf("explicit priority = %d, want 7", p.Priority)
	}
}

func TestAdd_Validation(t *testing.T) {
	tests := []struct {
		name    string
		req     AddRequest
		wantErr error
	}{
		{
			name:    "unknown type",
			req:     AddRequest{Name: "x", Type: "pigeon", Credentials: map[string]string{"api_key": "k"}},
			wantErr: ErrUnknownType,
		},
		{
			name:    "missing field",
			req:     AddRequest{Name: "mg", Type: "mailgun", Credentials: map[string]string{"api_key": "k"}},
			wantErr: ErrMissingCredentials,
		},
		{
			name:    "blank value",
			req:     AddRequest{Name: "b", Type: "brevo", Credentials: map[string]string{"api_key": "   "}},
			wantErr: ErrMissingCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(newMemQuerier())
			_, err := r.Add(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAdd_MissingName(t *testing.T) {
	r := newTestRegistry(newMemQuerier())
	_, err := r.Add(context.Background(), AddRequest{Type: "brevo", Credentials: map[string]string{"api_key": "k"}})
	if err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestAdd_Duplicate(t *testing.T) {
	r := newTestRegistry(newMemQuerier())
	addBrevo(t, r, "main", 10)

	_, err := r.Add(context.Background(), AddRequest{
		Name:        "main",
		Type:        "brevo",
		Credentials: map[string]string{"api_key": "other"},
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestUpdate_Partial(t *testing.T) {
	r := newTestRegistry(newMemQuerier())
	ctx := context.Background()
	addBrevo(t, r, "main", 10)

	priority := 2
	p, err := r.Update(ctx, "main", Update{Priority: &priority})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if p.Priority != 2 {
		t.Errorf("expected priority 2, got %d", p.Priority)
	}
	if p.Credentials["api_key"] != "xkeysib-main" {
		t.Errorf("expected credentials untouched, got %v", p.Credentials)
	}

	p, err = r.Update(ctx, "main", Update{Credentials: map[string]string{"api_key": "rotated"}})
	if err != nil {
		t.Fatalf("Update credentials failed: %v", err)
	}
	if p.Credentials["api_key"] != "rotated" {
		t.Errorf("expected rotated key, got %v", p.Credentials)
	}
}

func TestUpdate_Errors(t *testing.T) {
	r := newTestRegistry(newMemQuerier())
	ctx := context.Background()
	addBrevo(t, r, "main", 10)

	if _, err := r.Update(ctx, "main", Update{}); !errors.Is(err, ErrNoChanges) {
		t.Errorf("expected ErrNoChanges, got %v", err)
	}

	limit := 5
	if _, err := r.Update(ctx, "missing", Update{DailyLimit: &limit}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := r.Update(ctx, "main", Update{Credentials: map[string]string{"wrong": "x"}}); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestEnableDisable(t *testing.T) {
	r := newTestRegistry(newMemQuerier())
	ctx := context.Background()
	addBrevo(t, r, "main", 10)

	p, err := r.Disable(ctx, "main")
	if err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if p.Enabled {
		t.Error("expected provider disabled")
	}

	enabled, err := r.ListEnabledProviders(ctx)
	if err != nil {
		t.Fatalf("ListEnabledProviders failed: %v", err)
	}
	if len(enabled) != 0 {
		t.Errorf("expected no enabled providers, got %d", len(enabled))
	}

	if _, err := r.Enable(ctx, "main"); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if _, err := r.Enable(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	r := newTestRegistry(newMemQuerier())
	ctx := context.Background()
	addBrevo(t, r, "main", 10)

	if err := r.Remove(ctx, "main"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := r.Get(ctx, "main"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	if err := r.Remove(ctx, "main"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second remove, got %v", err)
	}
}

func TestListEnabledProviders_OrderedAndStable(t *testing.T) {
	r := newTestRegistry(newMemQuerier())
	ctx := context.Background()
	addBrevo(t, r, "zeta", 5)
	addBrevo(t, r, "alpha", 5)
	addBrevo(t, r, "first", 1)

	first, err := r.ListEnabledProviders(ctx)
	if err != nil {
		t.Fatalf("ListEnabledProviders failed: %v", err)
	}
	want := []string{"first", "alpha", "zeta"}
	for i, name := range want {
		if first[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, first[i].Name)
		}
	}

	second, err := r.ListEnabledProviders(ctx)
	if err != nil {
		t.Fatalf("ListEnabledProviders failed: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("expected same set twice, got %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("position %d differs between calls", i)
		}
	}
}

func TestList_DatabaseError(t *testing.T) {
	q := newMemQuerier()
	q.failWith = errDBDown
	r := newTestRegistry(q)

	_, err := r.List(context.Background(), false)
	if !errors.Is(err, errDBDown) {
		t.Fatalf("expected wrapped database error, got %v", err)
	}
}

func TestDecodeCredentials_NumericValues(t *testing.T) {
	creds, err := decodeCredentials([]byte(`{"host":"smtp.gmail.com","port":587,"user":"u","password":"p","extra":null}`))
	if err != nil {
		t.Fatalf("decodeCredentials failed: %v", err)
	}
	if creds["port"] != "587" {
		t.Errorf("expected port '587', got %q", creds["port"])
	}
	if _, ok := creds["extra"]; ok {
		t.Error("expected null values to be dropped")
	}

	if _, err := decodeCredentials([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed credentials")
	}
}

func TestCredentialFields_Sorted(t *testing.T) {
	p := Provider{Credentials: map[string]string{"user": "u", "host": "h", "password": "p"}}
	got := p.CredentialFields()
	want := []string{"host", "password", "user"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestLoadBackends_SkipsUnusable(t *testing.T) {
	q := newMemQuerier()
	r := newTestRegistry(q, WithSenderOptions(provider.Options{Timeout: time.Second}))
	ctx := context.Background()

	addBrevo(t, r, "brevo-a", 3)
	if _, err := r.Add(ctx, AddRequest{
		Name:        "gmail",
		Type:        "smtp-gmail",
		Credentials: map[string]string{"host": "smtp.gmail.com", "user": "u", "password": "p"},
		Priority:    99,
	}); err != nil {
		t.Fatalf("Add smtp failed: %v", err)
	}
	addBrevo(t, r, "off", 1)
	if _, err := r.Disable(ctx, "off"); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}

	// A stored document edited out-of-band so it no longer resolves.
	q.providers["broken"] = q.providers["brevo-a"]
	broken := q.providers["broken"]
	broken.Name = "broken"
	broken.Credentials = []byte(`{}`)
	q.providers["broken"] = broken

	backends, err := r.LoadBackends(ctx)
	if err != nil {
		t.Fatalf("LoadBackends failed: %v", err)
	}
	if len(backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(backends))
	}
	if backends[0].Name != "brevo-a" || backends[0].Priority != 3 {
		t.Errorf("expected brevo-a with priority 3 first, got %s/%d", backends[0].Name, backends[0].Priority)
	}
	if backends[1].Name != "gmail" {
		t.Errorf("expected gmail second, got %s", backends[1].Name)
	}
	for _, b := range backends {
		if b.Sender == nil || b.Sender.Name() != b.Name {
			t.Errorf("backend %s has mismatched sender", b.Name)
		}
	}
}

func TestEnvLoader(t *testing.T) {
	src := provider.EnvSource{Getenv: envOf(map[string]string{
		"SENDGRID_API_KEY": "SG.key",
		"MAILGUN_API_KEY":  "only-half",
	})}

	loader := EnvLoader(src, provider.Options{Timeout: time.Second}, newTestRegistry(newMemQuerier()).log)
	backends, err := loader.LoadBackends(context.Background())
	if err != nil {
		t.Fatalf("LoadBackends failed: %v", err)
	}
	if len(backends) != 1 {
		t.Fatalf("expected only sendgrid to be configured, got %d backends", len(backends))
	}
	if backends[0].Name != "sendgrid" || backends[0].Priority != 1 {
		t.Errorf("expected sendgrid with static priority 1, got %s/%d", backends[0].Name, backends[0].Priority)
	}
}
