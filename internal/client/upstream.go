// Package client provides the outbound HTTP client that performs relayed calls.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/doyensec/safeurl"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"spec-relay-go/internal/config"
	"spec-relay-go/internal/guard"
	"spec-relay-go/internal/metrics"
	"spec-relay-go/internal/model"
)

// errTooManyRedirects is returned from CheckRedirect when the hop cap is hit.
var errTooManyRedirects = errors.New("too many redirects")

// Relayable upstream status codes. Informational codes are never final, and
// anything outside three digits cannot be written back to the caller.
const (
	minFinalStatus = 200
	maxStatus      = 999
)

// defaultTimeout applies when the configured deadline is unset.
const defaultTimeout = 30 * time.Second

// UpstreamClient sends relayed requests to arbitrary third-party hosts.
type UpstreamClient struct {
	httpClient       *http.Client
	transport        *http.Transport
	timeout          time.Duration
	maxResponseBytes int64
	logger           *slog.Logger
	metrics          *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling, the
// configured redirect policy and, when enabled, the dial-time address guard.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*UpstreamClient, error) {
	timeout := cfg.Relay.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	checkRedirect := redirectPolicy(cfg.Relay.Redirects, cfg.Relay.MaxRedirects)

	var transport *http.Transport
	if cfg.Relay.StrictAddressCheck {
		var err error
		if transport, err = strictTransport(timeout, checkRedirect); err != nil {
			return nil, err
		}
	} else {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}
		transport = &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
			DialContext:           dialer.DialContext,
		}
	}

	// Proxy is cleared: environment proxies must not reroute relayed calls.
	transport.Proxy = nil
	transport.MaxIdleConns = cfg.Relay.IdleConnections
	transport.MaxIdleConnsPerHost = cfg.Relay.IdleConnections
	transport.IdleConnTimeout = 90 * time.Second

	c := &UpstreamClient{
		transport:        transport,
		timeout:          timeout,
		maxResponseBytes: cfg.Relay.MaxResponseBytes,
		logger:           logger.With("component", "upstream_client"),
		metrics:          m,
	}
	c.httpClient = &http.Client{
		Transport:     otelhttp.NewTransport(transport),
		CheckRedirect: checkRedirect,
	}
	return c, nil
}

// strictTransport returns safeurl's guarded transport. Its dialer refuses
// loopback, private, link-local and other reserved addresses after DNS
// resolution, which also covers every followed redirect hop.
func strictTransport(timeout time.Duration, checkRedirect func(*http.Request, []*http.Request) error) (*http.Transport, error) {
	sc := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		EnableIPv6(true).
		SetCheckRedirect(checkRedirect).
		Build()

	t, ok := safeurl.Client(sc).Client.Transport.(*http.Transport)
	if !ok {
		return nil, fmt.Errorf("client: unexpected safeurl transport %T", safeurl.Client(sc).Client.Transport)
	}
	return t, nil
}

// SetDialContext replaces the transport's dial function, bypassing the strict
// address guard. Tests use it to serve public-looking hostnames from a local
// listener.
func (c *UpstreamClient) SetDialContext(dial func(ctx context.Context, network, addr string) (net.Conn, error)) {
	c.transport.DialContext = dial
}

// redirectPolicy returns the CheckRedirect hook for the configured policy.
// Followed hops are re-validated exactly like the initial target.
func redirectPolicy(policy string, maxHops int) func(*http.Request, []*http.Request) error {
	if policy != config.RedirectsFollow {
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > maxHops {
			return errTooManyRedirects
		}
		if _, err := guard.ValidateTarget(req.URL.String()); err != nil {
			return fmt.Errorf("redirect to %s: %w", req.URL.Host, err)
		}
		return nil
	}
}

// Forward performs one exchange under the configured deadline and buffers
// the full response body. The connection is torn down before any error is
// returned. No retries are attempted.
func (c *UpstreamClient) Forward(ctx context.Context, pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader = http.NoBody
	if pr.Method != http.MethodGet && len(pr.Body) > 0 {
		body = bytes.NewReader(pr.Body)
	}

	req, err := http.NewRequestWithContext(ctx, pr.Method, pr.Target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = pr.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	c.logger.Debug("upstream request",
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(req.Method, 0, start)
		return nil, c.classify(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < minFinalStatus || resp.StatusCode > maxStatus {
		c.observe(req.Method, 0, start)
		return nil, model.Upstream("invalid upstream status",
			fmt.Errorf("status %d is not a final response code", resp.StatusCode))
	}

	data, err := c.readBody(resp.Body)
	c.observe(req.Method, resp.StatusCode, start)
	if err != nil {
		return nil, c.classify(ctx, err)
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

func (c *UpstreamClient) readBody(r io.Reader) ([]byte, error) {
	if c.maxResponseBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, c.maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.maxResponseBytes {
		return nil, model.Upstream("upstream response too large",
			fmt.Errorf("body exceeds %d bytes", c.maxResponseBytes))
	}
	return data, nil
}

// classify maps a transport failure onto the relay error taxonomy.
func (c *UpstreamClient) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return model.Timeout(err)
	}

	var re *model.RelayError
	if errors.As(err, &re) {
		return err
	}

	if host, ok := blockedBySafeURL(err); ok {
		return model.Blocked(host)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.Timeout(err)
	}

	if errors.Is(err, errTooManyRedirects) {
		return model.Upstream("upstream redirected too many times", errTooManyRedirects)
	}

	// Drop the method and URL that *url.Error prepends; the caller already knows them.
	cause := err
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		cause = urlErr.Err
	}
	return model.Upstream("upstream request failed", cause)
}

// blockedBySafeURL reports whether the strict dial guard refused the
// connection, and the address it refused.
func blockedBySafeURL(err error) (string, bool) {
	var ipErr *safeurl.AllowedIPError
	if errors.As(err, &ipErr) {
		return ipErr.Error(), true
	}
	var v6Err *safeurl.IPv6BlockedError
	if errors.As(err, &v6Err) {
		return v6Err.Error(), true
	}
	var portErr *safeurl.AllowedPortError
	if errors.As(err, &portErr) {
		return portErr.Error(), true
	}
	return "", false
}

func (c *UpstreamClient) observe(method string, status int, start time.Time) {
	if c.metrics == nil {
		return
	}
	m := metrics.NormalizeMethod(method)
	c.metrics.UpstreamDuration.WithLabelValues(m).Observe(time.Since(start).Seconds())
	if status > 0 {
		c.metrics.UpstreamResponses.WithLabelValues(m, strconv.Itoa(status)).Inc()
	}
}
