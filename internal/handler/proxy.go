package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/labstack/echo/v4"

	"spec-relay-go/internal/metrics"
	"spec-relay-go/internal/model"
	"spec-relay-go/internal/service"
)

// queryPattern matches the query string of URLs embedded in error messages.
var queryPattern = regexp.MustCompile(`(?i)(https?://[^\s"?]*)\?[^\s"]*`)

// ProxyHandler relays browser-described calls to third-party APIs.
type ProxyHandler struct {
	service *service.RelayService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler. The metrics parameter may be nil.
func NewProxyHandler(svc *service.RelayService, m *metrics.Metrics, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		metrics: m,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle relays one call. Status and allow-listed headers are decided from
// the fully buffered upstream response before anything is written back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	resp, err := h.service.Relay(req.Context(), req)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			// Body limit exceeded while reading the payload.
			return he
		}
		return h.writeError(c, err)
	}

	header := c.Response().Header()
	for key, vals := range resp.Header {
		for _, v := range vals {
			header.Add(key, v)
		}
	}
	if len(resp.Header.Values(echo.HeaderContentType)) == 0 {
		// Suppress content sniffing so no type is invented for the caller.
		header[echo.HeaderContentType] = nil
	}
	// A HEAD reply has no body to measure; upstream lengths are not relayed.
	if req.Method != http.MethodHead {
		header.Set(echo.HeaderContentLength, strconv.Itoa(len(resp.Body)))
	}

	c.Response().WriteHeader(resp.StatusCode)
	if _, err := c.Response().Write(resp.Body); err != nil {
		h.logger.Error("writing relayed response",
			"err", err,
			"status", resp.StatusCode,
		)
	}
	return nil
}

func (h *ProxyHandler) writeError(c echo.Context, err error) error {
	status, body := Classify(err)
	kind := model.KindOf(err)

	level := slog.LevelError
	if kind == model.KindValidation || kind == model.KindSecurity {
		level = slog.LevelWarn
	}
	h.logger.Log(c.Request().Context(), level, "relay failed",
		"kind", kind.String(),
		"status", status,
		"err", sanitizeError(err),
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	)
	h.metrics.RecordFailure(kind.String())

	return c.JSON(status, body)
}

// sanitizeError redacts query strings from URLs that may appear in error
// messages, since callers put credentials there.
func sanitizeError(err error) string {
	return queryPattern.ReplaceAllString(err.Error(), "${1}?[REDACTED]")
}
