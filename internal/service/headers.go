package service

import (
	"net/http"
	"slices"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// forwardableRequestHeaders are the only inbound headers copied upstream
// without the caller asking for them explicitly.
var forwardableRequestHeaders = []string{
	"Content-Type",
	"Authorization",
	"Accept",
}

// forwardableResponseHeaders are the only upstream response headers relayed
// back to the caller.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":          true,
	"X-Request-Id":          true,
	"X-Ratelimit-Remaining": true,
}

const userAgent = "spec-relay-go/1.0"

var crlf = strings.NewReplacer("\r", "", "\n", "")

// reservedRequestHeaders frame the message or address the connection. The
// transport derives them itself, so a caller-supplied copy is never sent.
var reservedRequestHeaders = map[string]bool{
	"Host":              true,
	"Content-Length":    true,
	"Transfer-Encoding": true,
	"Connection":        true,
	"Keep-Alive":        true,
	"Te":                true,
	"Trailer":           true,
	"Upgrade":           true,
}

func isReservedHeader(canonical string) bool {
	return reservedRequestHeaders[canonical] || strings.HasPrefix(canonical, "Proxy-")
}

// SanitizeHeaders builds the outbound header set: the allow-listed inbound
// headers, then the caller's custom headers with CR and LF stripped. Custom
// entries replace allow-listed ones with the same name, ignoring case.
// Entries that are still not valid HTTP after stripping, or that name a
// reserved header, are dropped. Names are stored in canonical form so the
// transport recognizes the headers it manages.
func SanitizeHeaders(inbound http.Header, custom map[string]string) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := inbound.Values(key); len(vals) > 0 {
			dst[key] = slices.Clone(vals)
		}
	}

	keys := make([]string, 0, len(custom))
	for k := range custom {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		name := crlf.Replace(k)
		value := crlf.Replace(custom[k])
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			continue
		}
		name = http.CanonicalHeaderKey(name)
		if isReservedHeader(name) {
			continue
		}
		dst[name] = []string{value}
	}

	if dst.Get("User-Agent") == "" {
		dst.Set("User-Agent", userAgent)
	}
	return dst
}

// FilterResponseHeaders keeps only the allow-listed upstream response headers.
func FilterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		canonical := http.CanonicalHeaderKey(key)
		if forwardableResponseHeaders[canonical] {
			dst[canonical] = slices.Clone(vals)
		}
	}
	return dst
}
