package handler

import (
	"errors"
	"net/http"

	"spec-relay-go/internal/model"
)

// ErrorBody is the JSON body of every failed relay call.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusFor maps relay failure kinds to caller-visible status codes.
var statusFor = map[model.Kind]int{
	model.KindValidation: http.StatusBadRequest,
	model.KindSecurity:   http.StatusForbidden,
	model.KindUpstream:   http.StatusBadGateway,
	model.KindTimeout:    http.StatusGatewayTimeout,
	model.KindInternal:   http.StatusInternalServerError,
}

// Classify maps err to a status code and response body. Security, timeout
// and internal failures never expose details; unclassified errors are
// reported as internal.
func Classify(err error) (int, ErrorBody) {
	var re *model.RelayError
	if !errors.As(err, &re) {
		return http.StatusInternalServerError, ErrorBody{Error: "internal server error"}
	}

	status, ok := statusFor[re.Kind]
	if !ok {
		return http.StatusInternalServerError, ErrorBody{Error: "internal server error"}
	}

	body := ErrorBody{Error: re.Message}
	switch re.Kind {
	case model.KindValidation, model.KindUpstream:
		body.Details = re.Details
	case model.KindInternal:
		body.Error = "internal server error"
	}
	return status, body
}
