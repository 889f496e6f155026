package provider

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDisabled is returned when a sender is requested for a bundle whose
// required credentials did not resolve.
var ErrDisabled = errors.New("provider disabled")

// Options configures sender construction.
type Options struct {
	// HTTPClient is shared by API senders. Defaults to NewHTTPClient(Timeout).
	HTTPClient HTTPClient
	// Timeout bounds one delivery attempt. Defaults to 30s.
	Timeout time.Duration
	// TLSConfig is used for SMTP STARTTLS. Nil verifies against the host.
	TLSConfig *tls.Config
}

// DefaultTimeout bounds one delivery attempt when Options.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// NewSender builds the Sender variant selected by the bundle's descriptor kind.
func NewSender(ctx context.Context, b Bundle, opts Options) (Sender, error) {
	if !b.Enabled {
		return nil, fmt.Errorf("%s: %w: missing %s", b.Name, ErrDisabled, strings.Join(b.Missing, ", "))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	switch b.Descriptor.Kind {
	case KindAPI:
		client := opts.HTTPClient
		if client == nil {
			client = NewHTTPClient(opts.Timeout)
		}
		return NewAPISender(b, client)
	case KindSMTP:
		return NewSMTPSender(b, opts.TLSConfig, opts.Timeout)
	case KindSES:
		return NewSESSender(ctx, b)
	default:
		return nil, fmt.Errorf("%s: unsupported provider kind %q", b.Name, b.Descriptor.Kind)
	}
}

// FromEnvironment resolves every built-in descriptor against src and returns
// senders for the ones whose credentials are complete, ordered by static
// priority. Disabled descriptors are reported in skipped.
func FromEnvironment(ctx context.Context, src CredentialSource, opts Options) (senders []Sender, bundles []Bundle, skipped []Bundle, err error) {
	for _, d := range Descriptors() {
		b := Resolve(d.Name, d, src)
		if !b.Enabled {
			skipped = append(skipped, b)
			continue
		}
		s, err := NewSender(ctx, b, opts)
		if err != nil {
			return nil, nil, nil, err
		}
		senders = append(senders, s)
		bundles = append(bundles, b)
	}
	return senders, bundles, skipped, nil
}
