package provider

import "sort"

// Kind selects the backend variant used to deliver through a provider.
type Kind string

const (
	KindAPI  Kind = "api"
	KindSMTP Kind = "smtp"
	KindSES  Kind = "ses"
)

// Field is one credential field a provider needs. Name is the key used in
// stored provider documents, Env the environment variable it is read from.
type Field struct {
	Name     string
	Env      string
	Optional bool
}

// Descriptor is the static definition of a provider family.
type Descriptor struct {
	Name   string
	Kind   Kind
	Fields []Field
	// Endpoint is the API URL; {field} placeholders are replaced with the
	// resolved credential value. Empty for SMTP and SES.
	Endpoint string
	// StaticPriority expresses operator preference, lower is preferred.
	StaticPriority int
	// DefaultPort is used by SMTP descriptors when no port is configured.
	DefaultPort int
}

// RequiredFields returns the names of the fields that must resolve for the
// provider to be usable.
func (d Descriptor) RequiredFields() []string {
	names := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		if !f.Optional {
			names = append(names, f.Name)
		}
	}
	return names
}

// FieldNames returns every credential field name, required or optional.
func (d Descriptor) FieldNames() []string {
	names := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		names[i] = f.Name
	}
	return names
}

const smtpPriority = 99

var descriptors = map[string]Descriptor{
	"brevo": {
		Name:           "brevo",
		Kind:           KindAPI,
		Fields:         []Field{{Name: "api_key", Env: "BREVO_API_KEY"}},
		Endpoint:       "https://api.brevo.com/v3/smtp/email",
		StaticPriority: 1,
	},
	"sendgrid": {
		Name:           "sendgrid",
		Kind:           KindAPI,
		Fields:         []Field{{Name: "api_key", Env: "SENDGRID_API_KEY"}},
		Endpoint:       "https://api.sendgrid.com/v3/mail/send",
		StaticPriority: 1,
	},
	"mailgun": {
		Name: "mailgun",
		Kind: KindAPI,
		Fields: []Field{
			{Name: "api_key", Env: "MAILGUN_API_KEY"},
			{Name: "domain", Env: "MAILGUN_DOMAIN"},
		},
		Endpoint:       "https://api.mailgun.net/v3/{domain}/messages",
		StaticPriority: 2,
	},
	"mailersend": {
		Name:           "mailersend",
		Kind:           KindAPI,
		Fields:         []Field{{Name: "api_key", Env: "MAILERSEND_API_KEY"}},
		Endpoint:       "https://api.mailersend.com/v1/email",
		StaticPriority: 2,
	},
	"postmark": {
		Name:           "postmark",
		Kind:           KindAPI,
		Fields:         []Field{{Name: "api_key", Env: "POSTMARK_API_KEY"}},
		Endpoint:       "https://api.postmarkapp.com/email",
		StaticPriority: 2,
	},
	"mailjet": {
		Name: "mailjet",
		Kind: KindAPI,
		Fields: []Field{
			{Name: "api_key", Env: "MAILJET_API_KEY"},
			{Name: "api_secret", Env: "MAILJET_SECRET"},
		},
		Endpoint:       "https://api.mailjet.com/v3.1/send",
		StaticPriority: 3,
	},
	"elasticemail": {
		Name:           "elasticemail",
		Kind:           KindAPI,
		Fields:         []Field{{Name: "api_key", Env: "ELASTIC_API_KEY"}},
		Endpoint:       "https://api.elasticemail.com/v2/email/send",
		StaticPriority: 3,
	},
	"sparkpost": {
		Name:           "sparkpost",
		Kind:           KindAPI,
		Fields:         []Field{{Name: "api_key", Env: "SPARKPOST_API_KEY"}},
		Endpoint:       "https://api.sparkpost.com/api/v1/transmissions",
		StaticPriority: 3,
	},
	"ses": {
		Name: "ses",
		Kind: KindSES,
		Fields: []Field{
			{Name: "access_key_id", Env: "SES_ACCESS_KEY_ID"},
			{Name: "secret_access_key", Env: "SES_SECRET_ACCESS_KEY"},
			{Name: "region", Env: "SES_REGION"},
		},
		StaticPriority: 3,
	},
	"smtp-gmail":   smtpDescriptor("smtp-gmail", "SMTP_GMAIL"),
	"smtp-outlook": smtpDescriptor("smtp-outlook", "SMTP_OUTLOOK"),
	"smtp":         smtpDescriptor("smtp", "SMTP"),
}

func smtpDescriptor(name, envPrefix string) Descriptor {
	return Descriptor{
		Name: name,
		Kind: KindSMTP,
		Fields: []Field{
			{Name: "host", Env: envPrefix + "_HOST"},
			{Name: "port", Env: envPrefix + "_PORT", Optional: true},
			{Name: "user", Env: envPrefix + "_USER"},
			{Name: "password", Env: envPrefix + "_PASS"},
		},
		StaticPriority: smtpPriority,
		DefaultPort:    587,
	}
}

// Lookup returns the built-in descriptor with the given name.
func Lookup(name string) (Descriptor, bool) {
	d, ok := descriptors[name]
	return d, ok
}

// Descriptors returns all built-in descriptors ordered by static priority,
// then name.
func Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StaticPriority != out[j].StaticPriority {
			return out[i].StaticPriority < out[j].StaticPriority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Template describes what an operator must supply to register a provider.
type Template struct {
	Type           string   `json:"type"`
	Kind           Kind     `json:"kind"`
	RequiredFields []string `json:"required_fields"`
	OptionalFields []string `json:"optional_fields,omitempty"`
	Priority       int      `json:"priority"`
}

// Templates lists registration templates for every built-in descriptor.
func Templates() []Template {
	ds := Descriptors()
	out := make([]Template, len(ds))
	for i, d := range ds {
		var optional []string
		for _, f := range d.Fields {
			if f.Optional {
				optional = append(optional, f.Name)
			}
		}
		out[i] = Template{
			Type:           d.Name,
			Kind:           d.Kind,
			RequiredFields: d.RequiredFields(),
			OptionalFields: optional,
			Priority:       d.StaticPriority,
		}
	}
	return out
}
