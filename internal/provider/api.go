package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"time"
)

// apiStyle builds the provider-specific request for one message and extracts
// the remote message id from a 2xx response.
type apiStyle interface {
	build(msg *Message, b Bundle) (*HTTPRequest, error)
	// accepted inspects a 2xx response. It returns the provider message id,
	// or an error when the body reports a refusal despite the 2xx status.
	accepted(resp *HTTPResponse) (string, error)
}

// APISender delivers through a provider's HTTPS API: one POST per attempt,
// status code interpreted by ClassifyHTTPError.
type APISender struct {
	bundle Bundle
	style  apiStyle
	client HTTPClient
}

// NewAPISender creates an APISender for a resolved API bundle.
func NewAPISender(b Bundle, client HTTPClient) (*APISender, error) {
	style, ok := apiStyles[b.Descriptor.Name]
	if !ok {
		return nil, fmt.Errorf("no api style for provider type %q", b.Descriptor.Name)
	}
	return &APISender{bundle: b, style: style, client: client}, nil
}

func (s *APISender) Name() string { return s.bundle.Name }

// Send performs one POST against the provider API.
func (s *APISender) Send(ctx context.Context, msg *Message) Attempt {
	start := time.Now()

	req, err := s.style.build(msg, s.bundle)
	if err != nil {
		return transportError(fmt.Errorf("%s: build request: %w", s.Name(), err), start)
	}

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return transportError(fmt.Errorf("%s: send request: %w", s.Name(), err), start)
	}

	if pe := ClassifyHTTPError(s.Name(), resp); pe != nil {
		return pe.Attempt(start)
	}

	id, err := s.style.accepted(resp)
	if err != nil {
		return Attempt{
			Outcome:    Rejected,
			Detail:     fmt.Sprintf("%s: %v", s.Name(), err),
			Elapsed:    time.Since(start),
			StatusCode: resp.StatusCode,
		}
	}
	return delivered(s.Name(), msg.To, id, resp.StatusCode, start)
}

var apiStyles = map[string]apiStyle{
	"brevo":        brevoStyle{},
	"sendgrid":     sendgridStyle{},
	"mailgun":      mailgunStyle{},
	"mailersend":   mailersendStyle{},
	"postmark":     postmarkStyle{},
	"mailjet":      mailjetStyle{},
	"elasticemail": elasticEmailStyle{},
	"sparkpost":    sparkpostStyle{},
}

// basicAuth encodes credentials as base64 for HTTP Basic Authentication.
func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// formatAddress renders "Name <email>" or the bare address when name is empty.
func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return (&mail.Address{Name: name, Address: email}).String()
}

func jsonHeaders(extra map[string]string) map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	for k, v := range extra {
		h[k] = v
	}
	return h
}
