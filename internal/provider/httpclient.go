package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UserAgent is sent on every provider API call unless the request sets one.
const UserAgent = "mailrelay/1"

// maxResponseBody caps how much of a provider response is buffered. Success
// bodies are tiny; error pages can be large and only the head is reported.
const maxResponseBody = 1 << 20

var tracer = otel.Tracer("github.com/sungwon/mailrelay/internal/provider")

// StdHTTPClient is the HTTPClient used by API senders in production. Each
// call gets a client span named after the provider host.
type StdHTTPClient struct {
	client *http.Client
}

// NewHTTPClient returns a client with the given per-request timeout and a
// transport sized for many concurrent sends to a handful of API hosts.
func NewHTTPClient(timeout time.Duration) *StdHTTPClient {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 32
	tr.IdleConnTimeout = 90 * time.Second
	return &StdHTTPClient{client: &http.Client{Timeout: timeout, Transport: tr}}
}

// Do sends req bound to ctx. Transport failures are returned as errors;
// any HTTP status, including 4xx and 5xx, is a response.
func (c *StdHTTPClient) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse provider URL: %w", err)
	}

	ctx, span := tracer.Start(ctx, "HTTP "+req.Method+" "+u.Host,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("server.address", u.Host),
			attribute.String("url.path", u.Path),
		))
	defer span.End()

	hr, err := http.NewRequestWithContext(ctx, req.Method, u.String(), bytes.NewReader(req.Body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request")
		return nil, err
	}
	hr.Header.Set("User-Agent", UserAgent)
	for k, v := range req.Headers {
		hr.Header.Set(k, v)
	}

	resp, err := c.client.Do(hr)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	// Drain what is left so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 500 {
		span.SetStatus(codes.Error, resp.Status)
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	return &HTTPResponse{StatusCode: resp.StatusCode, Headers: headers, Body: body}, nil
}
