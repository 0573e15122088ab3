// Package guard validates relay targets and blocks requests to local addresses.
package guard

import (
	"net/url"
	"strings"

	"spec-relay-go/internal/model"
)

// blocklist holds the literal hostnames that may never be relayed to.
// IPv6 literals are stored in their bracketed URL form.
var blocklist = [...]string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
	"[::1]",
}

// Blocklist returns a copy of the blocked hostnames.
func Blocklist() []string {
	out := blocklist
	return out[:]
}

// IsBlockedHost reports whether hostname exactly matches a blocklist entry.
// The comparison is case-insensitive and accepts IPv6 literals with or
// without brackets. No DNS resolution or IP canonicalization is performed.
func IsBlockedHost(hostname string) bool {
	h := normalizeHost(hostname)
	for _, b := range blocklist {
		if h == b {
			return true
		}
	}
	return false
}

// ValidateTarget parses raw as an absolute http(s) URL and rejects blocked
// hosts. It never performs network I/O.
func ValidateTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, model.Validation(model.ErrInvalidURL, "", err)
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return nil, model.Validation(model.ErrUnsupportedScheme, schemeDetail(u.Scheme), nil)
	}

	if u.Host == "" || u.Hostname() == "" {
		return nil, model.Validation(model.ErrInvalidURL, "missing host", nil)
	}

	if IsBlockedHost(u.Hostname()) {
		return nil, model.Blocked(u.Hostname())
	}

	return u, nil
}

// normalizeHost lower-cases the host and brackets bare IPv6 literals.
func normalizeHost(host string) string {
	h := strings.ToLower(host)
	if strings.Contains(h, ":") && !strings.HasPrefix(h, "[") {
		h = "[" + h + "]"
	}
	return h
}

func schemeDetail(scheme string) string {
	if scheme == "" {
		return "url has no scheme; use http or https"
	}
	return "scheme " + scheme + " is not allowed; use http or https"
}
