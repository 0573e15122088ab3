// Package model defines shared types for the relay.
package model

import (
	"net/http"
	"net/url"
)

// Descriptor is the caller's description of the outbound call, as parsed from
// the inbound request before any validation.
type Descriptor struct {
	TargetURL string
	Method    string
	// Headers holds the caller's custom headers, already coerced to text but
	// not yet sanitized.
	Headers map[string]string
	Body    []byte
}

// ProxyRequest is a validated, sanitized outbound call.
type ProxyRequest struct {
	Target *url.URL
	Method string
	Header http.Header
	Body   []byte
}

// ProxyResponse is the filtered upstream response relayed back to the caller.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}
