package smtp

import (
	"errors"
	"net/mail"
	"strings"
)

// maxPathLen is the longest forward or reverse path RFC 5321 allows.
const maxPathLen = 254

var errBadMailbox = errors.New("invalid mailbox")

// mailbox reduces a MAIL FROM or RCPT TO argument to a bare address.
func mailbox(arg string) (string, error) {
	addr, err := mail.ParseAddress(arg)
	if err != nil {
		return "", err
	}
	if len(addr.Address) > maxPathLen {
		return "", errBadMailbox
	}
	if !validLabels(domainOf(addr.Address)) {
		return "", errBadMailbox
	}
	return addr.Address, nil
}

// domainOf returns the lowercased domain of a bare address, or "" without one.
func domainOf(addr string) string {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 {
		return ""
	}
	return strings.ToLower(addr[i+1:])
}

// ValidDomain reports whether domain is a dotted hostname usable in an
// allowed sender list.
func ValidDomain(domain string) bool {
	return strings.Contains(domain, ".") && validLabels(domain)
}

func validLabels(domain string) bool {
	if domain == "" || len(domain) > 253 {
		return false
	}
	// Address literals such as [192.0.2.1] pass through as-is.
	if strings.HasPrefix(domain, "[") && strings.HasSuffix(domain, "]") {
		return true
	}
	for label := range strings.SplitSeq(domain, ".") {
		if len(label) == 0 || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range []byte(label) {
			if c >= 0x80 {
				continue // internationalized, SMTPUTF8 is enabled
			}
			if !(c == '-' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
				return false
			}
		}
	}
	return true
}

// domainSet matches sender domains case-insensitively. An empty set allows
// everything.
type domainSet map[string]struct{}

func newDomainSet(domains []string) domainSet {
	s := make(domainSet, len(domains))
	for _, d := range domains {
		s[strings.ToLower(strings.TrimSpace(d))] = struct{}{}
	}
	return s
}

func (s domainSet) allows(domain string) bool {
	if len(s) == 0 {
		return true
	}
	_, ok := s[strings.ToLower(domain)]
	return ok
}
