package provider

import (
	"net/url"
	"os"
	"strings"
)

// CredentialSource yields raw credential values. A missing value is reported
// as the empty string; absence is never an error at this boundary.
type CredentialSource interface {
	Lookup(f Field) string
}

// EnvSource reads credentials from environment variables named by Field.Env.
type EnvSource struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

func (s EnvSource) Lookup(f Field) string {
	if f.Env == "" {
		return ""
	}
	get := s.Getenv
	if get == nil {
		get = os.Getenv
	}
	return strings.TrimSpace(get(f.Env))
}

// MapSource reads credentials from a stored provider document keyed by Field.Name.
type MapSource map[string]string

func (s MapSource) Lookup(f Field) string {
	return strings.TrimSpace(s[f.Name])
}

// ChainSource returns the first non-empty value among its sources.
type ChainSource []CredentialSource

func (c ChainSource) Lookup(f Field) string {
	for _, src := range c {
		if v := src.Lookup(f); v != "" {
			return v
		}
	}
	return ""
}

// Bundle is a resolved, ready-to-use credential set for one provider instance.
type Bundle struct {
	// Name is the provider instance name; it defaults to the descriptor name.
	Name       string
	Descriptor Descriptor
	Values     map[string]string
	// Endpoint is the final API URL with template fields substituted.
	Endpoint string
	Enabled  bool
	// Missing lists required fields that did not resolve.
	Missing []string
}

// Get returns the resolved value of a credential field.
func (b Bundle) Get(field string) string {
	return b.Values[field]
}

// endpointOverride lets a stored document or environment point an API
// provider at a different base URL (sandboxes, test servers).
func endpointOverride(d Descriptor) Field {
	return Field{
		Name:     "endpoint",
		Env:      strings.ToUpper(strings.ReplaceAll(d.Name, "-", "_")) + "_ENDPOINT",
		Optional: true,
	}
}

// Resolve turns a descriptor plus a credential source into a Bundle. The
// bundle is enabled only if every required field resolves to a non-empty
// value. Resolve never fails.
func Resolve(name string, d Descriptor, src CredentialSource) Bundle {
	if name == "" {
		name = d.Name
	}
	b := Bundle{
		Name:       name,
		Descriptor: d,
		Values:     make(map[string]string, len(d.Fields)),
	}

	for _, f := range d.Fields {
		v := src.Lookup(f)
		if v == "" {
			if !f.Optional {
				b.Missing = append(b.Missing, f.Name)
			}
			continue
		}
		b.Values[f.Name] = v
	}

	if d.Kind == KindAPI {
		b.Endpoint = d.Endpoint
		if override := src.Lookup(endpointOverride(d)); override != "" {
			b.Endpoint = override
		}
		for field, v := range b.Values {
			b.Endpoint = strings.ReplaceAll(b.Endpoint, "{"+field+"}", url.PathEscape(v))
		}
	}

	b.Enabled = len(b.Missing) == 0
	return b
}
