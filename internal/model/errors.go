package model

import (
	"errors"
	"fmt"
)

// Kind classifies a relay failure.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindSecurity
	KindUpstream
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSecurity:
		return "security"
	case KindUpstream:
		return "upstream"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// RelayError is a classified relay failure. Message is safe to show to the
// caller; Details is optional diagnostic text; Err is the underlying cause.
type RelayError struct {
	Kind    Kind
	Message string
	Details string
	Err     error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RelayError) Unwrap() error { return e.Err }

// Is reports a match against another RelayError with the same kind and message,
// so the package-level sentinels work with errors.Is.
func (e *RelayError) Is(target error) bool {
	t, ok := target.(*RelayError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// Sentinels for the fixed rejection reasons.
var (
	ErrMissingTarget     = &RelayError{Kind: KindValidation, Message: "missing target url"}
	ErrInvalidURL        = &RelayError{Kind: KindValidation, Message: "invalid url"}
	ErrUnsupportedScheme = &RelayError{Kind: KindValidation, Message: "unsupported scheme"}
	ErrInvalidMethod     = &RelayError{Kind: KindValidation, Message: "invalid method"}
	ErrInvalidPayload    = &RelayError{Kind: KindValidation, Message: "invalid json payload"}
	ErrBlockedAddress    = &RelayError{Kind: KindSecurity, Message: "blocked local address"}
)

// Validation returns a validation failure derived from a sentinel, carrying
// caller-visible details.
func Validation(sentinel *RelayError, details string, cause error) *RelayError {
	return &RelayError{Kind: KindValidation, Message: sentinel.Message, Details: details, Err: cause}
}

// Blocked returns a security failure for the given host.
func Blocked(host string) *RelayError {
	return &RelayError{Kind: KindSecurity, Message: ErrBlockedAddress.Message, Err: fmt.Errorf("host %q", host)}
}

// Upstream wraps a transport-level failure.
func Upstream(message string, cause error) *RelayError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &RelayError{Kind: KindUpstream, Message: message, Details: details, Err: cause}
}

// Timeout wraps a deadline expiry.
func Timeout(cause error) *RelayError {
	return &RelayError{Kind: KindTimeout, Message: "upstream request timed out", Err: cause}
}

// KindOf returns the kind of the first RelayError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}
