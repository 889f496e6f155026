package smtp

import (
	"strings"
	"testing"
)

func TestMailbox(t *testing.T) {
	tests := []struct {
		arg  string
		want string
		ok   bool
	}{
		{"user@example.com", "user@example.com", true},
		{"user+tag@example.com", "user+tag@example.com", true},
		{"Jane Doe <jane@example.com>", "jane@example.com", true},
		{"<ops@localhost>", "ops@localhost", true},
		{"\"quoted user\"@example.com", "quoted user@example.com", true},
		{"", "", false},
		{"plaintext", "", false},
		{"@no-local.com", "", false},
		{"user@-bad.com", "", false},
		{"user@bad..com", "", false},
		{"user@under_score.com", "", false},
		{strings.Repeat("a", 250) + "@example.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := mailbox(tt.arg)
			if tt.ok && (err != nil || got != tt.want) {
				t.Errorf("mailbox(%q) = %q, %v; want %q", tt.arg, got, err, tt.want)
			}
			if !tt.ok && err == nil {
				t.Errorf("mailbox(%q) = %q, want error", tt.arg, got)
			}
		})
	}
}

func TestDomainOf(t *testing.T) {
	tests := map[string]string{
		"user@Example.COM":      "example.com",
		"user@mail.example.com": "mail.example.com",
		"\"a@b\"@example.com":   "example.com",
		"noemail":               "",
		"user@":                 "",
	}

	for addr, want := range tests {
		if got := domainOf(addr); got != want {
			t.Errorf("domainOf(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestValidDomain(t *testing.T) {
	tests := map[string]bool{
		"example.com":                        true,
		"sub.example.com":                    true,
		"xn--bcher-kva.example":              true,
		"a.b":                                true,
		"":                                   false,
		".example.com":                       false,
		"example.com.":                       false,
		"localhost":                          false,
		"exa mple.com":                       false,
		strings.Repeat("a", 64) + ".example": false,
	}

	for domain, want := range tests {
		if got := ValidDomain(domain); got != want {
			t.Errorf("ValidDomain(%q) = %v, want %v", domain, got, want)
		}
	}
}

func TestDomainSet(t *testing.T) {
	if !newDomainSet(nil).allows("anything.test") {
		t.Error("empty set should allow every domain")
	}

	s := newDomainSet([]string{"Example.com", " corp.example "})
	for domain, want := range map[string]bool{
		"example.com":      true,
		"EXAMPLE.COM":      true,
		"corp.example":     true,
		"evil.example.com": false,
	} {
		if got := s.allows(domain); got != want {
			t.Errorf("allows(%q) = %v, want %v", domain, got, want)
		}
	}
}
