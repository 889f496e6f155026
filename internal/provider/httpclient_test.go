package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestStdHTTPClient_Do(t *testing.T) {
	var gotUA, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("X-Request-Id", "abc")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"bad recipient"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(5 * time.Second)
	resp, err := c.Do(context.Background(), &HTTPRequest{
		Method:  http.MethodPost,
		URL:     srv.URL + "/v3/mail/send",
		Headers: map[string]string{"Authorization": "Bearer k"},
		Body:    []byte(`{"to":"a@example.com"}`),
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
	if resp.Header("x-request-id") != "abc" {
		t.Errorf("headers = %v", resp.Headers)
	}
	if !strings.Contains(string(resp.Body), "bad recipient") {
		t.Errorf("body = %q", resp.Body)
	}
	if gotUA != UserAgent || gotAuth != "Bearer k" || gotBody != `{"to":"a@example.com"}` {
		t.Errorf("server saw ua=%q auth=%q body=%q", gotUA, gotAuth, gotBody)
	}
}

func TestStdHTTPClient_TruncatesLargeBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", maxResponseBody+4096)))
	}))
	defer srv.Close()

	resp, err := NewHTTPClient(5*time.Second).Do(context.Background(), &HTTPRequest{Method: http.MethodGet, URL: srv.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(resp.Body) != maxResponseBody {
		t.Errorf("body length = %d, want %d", len(resp.Body), maxResponseBody)
	}
}

func TestStdHTTPClient_Errors(t *testing.T) {
	c := NewHTTPClient(time.Second)

	if _, err := c.Do(context.Background(), &HTTPRequest{Method: http.MethodGet, URL: "://bad"}); err == nil {
		t.Error("expected URL parse error")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()
	if _, err := c.Do(context.Background(), &HTTPRequest{Method: http.MethodGet, URL: url}); err == nil {
		t.Error("expected transport error against a closed server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Do(ctx, &HTTPRequest{Method: http.MethodGet, URL: "http://127.0.0.1:1"}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
