package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sungwon/mailrelay/internal/auth"
	"github.com/sungwon/mailrelay/internal/mailer"
	"github.com/sungwon/mailrelay/internal/queue"
	"github.com/sungwon/mailrelay/internal/registry"
	"github.com/sungwon/mailrelay/internal/reportstore"
)

const testToken = "test-token"

type tokenVerifier struct{}

func (tokenVerifier) Verify(token string) (string, error) {
	if token == testToken {
		return "tests", nil
	}
	return "", auth.ErrInvalidKey
}

type testServer struct {
	handler  http.Handler
	mailer   *mockMailer
	registry *mockRegistry
	queue    *mockEnqueuer
	dlq      *mockDLQ
	archive  *mockArchive
}

func newTestServer() *testServer {
	ts := &testServer{
		mailer: &mockMailer{status: mailer.Status{Module: "email_sender", Status: "healthy", ProvidersAvailable: 2, PriorityOrder: []string{"brevo", "postmark"}}},
		registry: newMockRegistry(
			registry.Provider{Name: "brevo", Type: "brevo", Enabled: true, Priority: 1, Credentials: map[string]string{"api_key": "secret"}},
			registry.Provider{Name: "postmark", Type: "postmark", Enabled: false, Priority: 2},
		),
		queue:   &mockEnqueuer{},
		dlq:     &mockDLQ{},
		archive: newMockArchive(),
	}
	ts.handler = NewRouter(Deps{
		Mailer:   ts.mailer,
		Registry: ts.registry,
		Queue:    ts.queue,
		DLQ:      ts.dlq,
		Reports:  ts.archive,
		Checks:   map[string]Pinger{"database": fakePinger{}},
		Keys:     tokenVerifier{},
		Log:      zerolog.Nop(),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestRouter_PublicEndpointsSkipAuth(t *testing.T) {
	ts := newTestServer()
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, rec.Code)
		}
	}
}

func TestRouter_APIRequiresAuth(t *testing.T) {
	ts := newTestServer()
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestStatusHandler(t *testing.T) {
	ts := newTestServer()
	ts.registry.health = registry.HealthReport{Module: "providers", Status: registry.StatusHealthy, TotalProviders: 2}

	rec := ts.do(t, http.MethodGet, "/api/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp statusResponse
	decode(t, rec, &resp)
	if resp.Mailer.ProvidersAvailable != 2 {
		t.Errorf("providers_available = %d, want 2", resp.Mailer.ProvidersAvailable)
	}
	if resp.Providers == nil || resp.Providers.TotalProviders != 2 {
		t.Errorf("providers section = %+v", resp.Providers)
	}
}

func TestSendHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		sendErr    error
		result     mailer.SendResult
		wantStatus int
	}{
		{
			name:       "delivered",
			body:       `{"to":"a@example.com","subject":"Hi","html":"<p>x</p>","provider":"brevo"}`,
			result:     mailer.SendResult{Success: true, Provider: "brevo", Recipient: "a@example.com"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "all providers failed is still 200",
			body:       `{"to":"a@example.com","subject":"Hi","html":"<p>x</p>"}`,
			result:     mailer.SendResult{Success: false, Error: "all providers failed"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "no providers",
			body:       `{"to":"a@example.com","subject":"Hi","html":"<p>x</p>"}`,
			sendErr:    mailer.ErrNoProviders,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "aborted",
			body:       `{"to":"a@example.com","subject":"Hi","html":"<p>x</p>"}`,
			sendErr:    errBoom,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "invalid address",
			body:       `{"to":"nope","subject":"Hi","html":"<p>x</p>"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown field",
			body:       `{"to":"a@example.com","subject":"Hi","html":"<p>x</p>","cc":"b@example.com"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.mailer.result = tt.result
			ts.mailer.sendErr = tt.sendErr

			rec := ts.do(t, http.MethodPost, "/api/v1/send", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				var res mailer.SendResult
				decode(t, rec, &res)
				if res.Success != tt.result.Success {
					t.Errorf("success = %v, want %v", res.Success, tt.result.Success)
				}
			}
		})
	}
}

func TestSendHandler_PassesPreferredProvider(t *testing.T) {
	ts := newTestServer()
	ts.do(t, http.MethodPost, "/api/v1/send", `{"to":"a@example.com","subject":"Hi","html":"<p>x</p>","provider":"postmark"}`)
	if ts.mailer.preferred != "postmark" {
		t.Errorf("preferred = %q, want postmark", ts.mailer.preferred)
	}
}

func TestBulkHandler_QueuesJob(t *testing.T) {
	ts := newTestServer()
	body := `{"subject":"Hi {{name}}","html":"<p>x</p>","recipients":[{"email":"a@example.com","name":"A"},{"email":"b@example.com"}],"batch_size":50}`

	rec := ts.do(t, http.MethodPost, "/api/v1/bulk", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp bulkResponse
	decode(t, rec, &resp)
	if resp.JobID == "" || resp.Recipients != 2 || resp.Status != reportstore.StatusQueued {
		t.Errorf("response = %+v", resp)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/reports/"+resp.JobID {
		t.Errorf("Location = %q", loc)
	}

	if len(ts.queue.jobs) != 1 || ts.queue.jobs[0].ID != resp.JobID || ts.queue.jobs[0].BatchSize != 50 {
		t.Fatalf("queued jobs = %+v", ts.queue.jobs)
	}

	rec = ts.do(t, http.MethodGet, "/api/v1/reports/"+resp.JobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("report status = %d", rec.Code)
	}
	var record reportstore.Record
	decode(t, rec, &record)
	if record.Status != reportstore.StatusQueued || record.Recipients != 2 {
		t.Errorf("record = %+v", record)
	}
}

func TestBulkHandler_Rejects(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(t, http.MethodPost, "/api/v1/bulk", `{"subject":"Hi","html":"<p>x</p>","recipients":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty recipients status = %d, want 400", rec.Code)
	}

	ts.queue.err = errBoom
	rec = ts.do(t, http.MethodPost, "/api/v1/bulk", `{"subject":"Hi","html":"<p>x</p>","recipients":[{"email":"a@example.com"}]}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("queue failure status = %d, want 503", rec.Code)
	}
}

func TestReportHandler_Errors(t *testing.T) {
	ts := newTestServer()
	if rec := ts.do(t, http.MethodGet, "/api/v1/reports/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing report status = %d, want 404", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/reports/..", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", rec.Code)
	}
}

func TestDeadJobsHandler(t *testing.T) {
	ts := newTestServer()
	ts.dlq.entries = []queue.DLQEntry{{
		EntryID: "1-0",
		DeadJob: queue.DeadJob{Job: &queue.Job{ID: "job-1"}, FailureReason: "no providers"},
	}}

	rec := ts.do(t, http.MethodGet, "/api/v1/dlq?limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp deadJobsResponse
	decode(t, rec, &resp)
	if len(resp.Jobs) != 1 || resp.Jobs[0].EntryID != "1-0" || resp.Jobs[0].Job.ID != "job-1" {
		t.Errorf("response = %+v", resp)
	}
	if ts.dlq.limit != 10 {
		t.Errorf("limit = %d, want 10", ts.dlq.limit)
	}

	ts.dlq.entries = nil
	rec = ts.do(t, http.MethodGet, "/api/v1/dlq", "")
	if !strings.Contains(rec.Body.String(), `"jobs":[]`) {
		t.Errorf("empty list body = %s", rec.Body.String())
	}
	if ts.dlq.limit != defaultDeadJobLimit {
		t.Errorf("default limit = %d, want %d", ts.dlq.limit, defaultDeadJobLimit)
	}
}

func TestDeadJobsHandler_Errors(t *testing.T) {
	ts := newTestServer()

	for _, q := range []string{"0", "501", "ten"} {
		if rec := ts.do(t, http.MethodGet, "/api/v1/dlq?limit="+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", q, rec.Code)
		}
	}

	ts.dlq.err = errBoom
	if rec := ts.do(t, http.MethodGet, "/api/v1/dlq", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("list failure status = %d, want 500", rec.Code)
	}
}

func TestReprocessHandler(t *testing.T) {
	ts := newTestServer()
	ts.dlq.n = 2

	rec := ts.do(t, http.MethodPost, "/api/v1/dlq/reprocess", `{"entry_ids":["1-0","2-0","3-0"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}
	var resp reprocessResponse
	decode(t, rec, &resp)
	if resp.Reprocessed != 2 || resp.Requested != 3 {
		t.Errorf("response = %+v", resp)
	}
	if len(ts.dlq.ids) != 3 {
		t.Errorf("reprocess ids = %v", ts.dlq.ids)
	}
}

func TestReprocessHandler_Errors(t *testing.T) {
	ts := newTestServer()

	if rec := ts.do(t, http.MethodPost, "/api/v1/dlq/reprocess", "not json"); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid json status = %d, want 400", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/api/v1/dlq/reprocess", `{"entry_ids":[]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty ids status = %d, want 400", rec.Code)
	}

	ts.dlq.err = errBoom
	if rec := ts.do(t, http.MethodPost, "/api/v1/dlq/reprocess", `{"entry_ids":["1-0"]}`); rec.Code != http.StatusInternalServerError {
		t.Errorf("reprocess failure status = %d, want 500", rec.Code)
	}
}

func TestRouter_OptionalRoutesAbsent(t *testing.T) {
	h := NewRouter(Deps{Mailer: &mockMailer{}, Log: zerolog.Nop()})

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/bulk"},
		{http.MethodGet, "/api/v1/providers"},
		{http.MethodPost, "/api/v1/dlq/reprocess"},
		{http.MethodGet, "/api/v1/dlq"},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}")))
		if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s status = %d, want 404/405", tc.method, tc.path, rec.Code)
		}
	}

	// Without keys the API is open.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status without keys = %d, want 200", rec.Code)
	}
}
