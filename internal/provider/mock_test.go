package provider

import (
	"context"
	"errors"
	"sync"
)

// mockHTTPClient records requests and replies with a canned response.
type mockHTTPClient struct {
	mu       sync.Mutex
	requests []*HTTPRequest
	resp     *HTTPResponse
	err      error
}

func (m *mockHTTPClient) Do(_ context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if m.resp == nil {
		return nil, errors.New("no response configured")
	}
	return m.resp, nil
}

func (m *mockHTTPClient) last() *HTTPRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func testMessage() *Message {
	return &Message{
		From:     "news@example.com",
		FromName: "Example News",
		To:       "alice@example.org",
		ToName:   "Alice",
		Subject:  "Hello Alice",
		HTMLBody: "<p>Hi Alice</p>",
		Tags:     []string{"telegram_bot"},
	}
}

func testBundle(t interface{ Fatalf(string, ...any) }, name string, values map[string]string) Bundle {
	d, ok := Lookup(name)
	if !ok {
		t.Fatalf("unknown descriptor %q", name)
	}
	b := Resolve(name, d, MapSource(values))
	if !b.Enabled {
		t.Fatalf("bundle %q not enabled, missing %v", name, b.Missing)
	}
	return b
}
