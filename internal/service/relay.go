// Package service implements the relay pipeline: descriptor parsing, target
// validation, header sanitization, forwarding and response filtering.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"spec-relay-go/internal/guard"
	"spec-relay-go/internal/model"
)

// Forwarder performs exactly one outbound exchange.
type Forwarder interface {
	Forward(ctx context.Context, req *model.ProxyRequest) (*model.ProxyResponse, error)
}

// RelayService turns inbound relay calls into upstream exchanges.
type RelayService struct {
	forwarder Forwarder
	logger    *slog.Logger
}

// NewRelayService creates a RelayService.
func NewRelayService(f Forwarder, logger *slog.Logger) *RelayService {
	return &RelayService{
		forwarder: f,
		logger:    logger.With("component", "relay_service"),
	}
}

// Relay handles one inbound call. Validation and security failures are
// returned before the forwarder is touched.
func (s *RelayService) Relay(ctx context.Context, r *http.Request) (*model.ProxyResponse, error) {
	pr, err := s.Prepare(r)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("relaying request",
		"method", pr.Method,
		"scheme", pr.Target.Scheme,
		"host", pr.Target.Host,
		"path", pr.Target.Path,
	)

	resp, err := s.forwarder.Forward(ctx, pr)
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", pr.Target.Host, err)
	}

	resp.Header = FilterResponseHeaders(resp.Header)
	return resp, nil
}

// Prepare parses, validates and sanitizes an inbound call into a ProxyRequest.
func (s *RelayService) Prepare(r *http.Request) (*model.ProxyRequest, error) {
	d, err := ParseDescriptor(r)
	if err != nil {
		return nil, err
	}

	target, err := guard.ValidateTarget(d.TargetURL)
	if err != nil {
		return nil, err
	}

	return &model.ProxyRequest{
		Target: target,
		Method: d.Method,
		Header: SanitizeHeaders(r.Header, d.Headers),
		Body:   d.Body,
	}, nil
}
