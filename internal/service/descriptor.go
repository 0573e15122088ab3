package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/net/http/httpguts"

	"spec-relay-go/internal/model"
)

// payload is the optional JSON body of an inbound relay call. Fields are kept
// raw so that wrongly-typed values can be ignored instead of failing the call.
type payload struct {
	URL     json.RawMessage `json:"url"`
	Method  json.RawMessage `json:"method"`
	Headers json.RawMessage `json:"headers"`
	Body    json.RawMessage `json:"body"`
}

// ParseDescriptor extracts the outbound call description from an inbound
// request. The target comes from the "url" query parameter, falling back to
// the payload's "url" field. It reads r.Body but performs no network I/O.
func ParseDescriptor(r *http.Request) (*model.Descriptor, error) {
	p, err := readPayload(r)
	if err != nil {
		return nil, err
	}

	target := r.URL.Query().Get("url")
	if target == "" {
		target, _ = stringValue(p.URL)
	}
	if target == "" {
		return nil, model.ErrMissingTarget
	}

	method := r.Method
	if m, ok := stringValue(p.Method); ok && m != "" {
		method = m
	}
	method = strings.ToUpper(method)
	if !httpguts.ValidHeaderFieldName(method) {
		return nil, model.Validation(model.ErrInvalidMethod, fmt.Sprintf("%q is not a valid HTTP method", method), nil)
	}

	d := &model.Descriptor{
		TargetURL: target,
		Method:    method,
		Headers:   headerValues(p.Headers),
	}
	if method != http.MethodGet {
		d.Body = bodyBytes(p.Body)
	}
	return d, nil
}

// readPayload decodes the request body when it is declared as JSON. Any other
// content type yields an empty payload.
func readPayload(r *http.Request) (payload, error) {
	var p payload
	if r.Body == nil || !isJSONContentType(r.Header.Get("Content-Type")) {
		return p, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return p, fmt.Errorf("read request body: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return p, nil
	}
	if !json.Valid(data) {
		return p, model.Validation(model.ErrInvalidPayload, "request body is not valid JSON", nil)
	}
	if data[0] != '{' {
		// Arrays and scalars carry no descriptor fields.
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, model.Validation(model.ErrInvalidPayload, "", err)
	}
	return p, nil
}

func isJSONContentType(ct string) bool {
	if ct == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// stringValue returns raw as a Go string if it is a JSON string.
func stringValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// textValue coerces any JSON value to text: strings as-is, everything else
// as compact JSON.
func textValue(raw json.RawMessage) string {
	if s, ok := stringValue(raw); ok {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// headerValues returns the custom header map, or nil unless raw is a JSON object.
func headerValues(raw json.RawMessage) map[string]string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		out[k] = textValue(v)
	}
	return out
}

// bodyBytes returns the outbound body. Missing, null, and empty-string bodies
// yield nil; non-string values are sent as compact JSON.
func bodyBytes(raw json.RawMessage) []byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	s := textValue(raw)
	if s == "" {
		return nil
	}
	return []byte(s)
}
