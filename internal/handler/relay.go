package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"signin-relay/internal/client"
	"signin-relay/internal/metrics"
	"signin-relay/internal/model"
	"signin-relay/internal/reqbody"
	"signin-relay/internal/service"
)

// RelayHandler serves the method-multiplexed relay endpoint.
type RelayHandler struct {
	service *service.RelayService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRelayHandler creates a RelayHandler. The metrics parameter may be nil.
func NewRelayHandler(svc *service.RelayService, m *metrics.Metrics, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		service: svc,
		metrics: m,
		logger:  logger.With("component", "relay_handler"),
	}
}

// Handle routes POST ?action=signin to the sign-in exchange and every GET to
// the pass-through. Anything else is refused with 405.
func (h *RelayHandler) Handle(c echo.Context) error {
	req := c.Request()

	// The upstream call is bounded by the client timeout, not by the caller
	// staying connected.
	ctx := context.WithoutCancel(req.Context())

	var (
		resp *model.ProxyResponse
		err  error
	)
	switch {
	case req.Method == http.MethodPost && c.QueryParam("action") == "signin":
		fields := reqbody.Parse(reqbody.Stream{R: req.Body})
		resp, err = h.service.Signin(ctx, reqbody.LoginOverride(fields))
	case req.Method == http.MethodGet:
		resp, err = h.service.PassThrough(ctx, c.QueryParam("url"), req.Header.Get(echo.HeaderAuthorization))
	default:
		h.metrics.Reject(metrics.ReasonMethodNotAllowed)
		return c.JSON(http.StatusMethodNotAllowed, model.ErrorEnvelope{Error: "Method not allowed"})
	}
	if err != nil {
		return h.mapError(c, err)
	}

	return writeBody(c, resp.StatusCode, resp.Body)
}

func (h *RelayHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, service.ErrMissingURL) {
		h.metrics.Reject(metrics.ReasonMissingURL)
		return c.JSON(http.StatusBadRequest, model.ErrorEnvelope{Error: "Missing url parameter"})
	}

	if errors.Is(err, service.ErrUnauthorizedDomain) {
		h.metrics.Reject(metrics.ReasonUnauthorizedDomain)
		h.logger.Warn("rejected target outside allowed host", "url", c.QueryParam("url"))
		return c.JSON(http.StatusForbidden, model.ErrorEnvelope{Error: "Unauthorized domain"})
	}

	var cfgErr *service.ConfigError
	if errors.As(err, &cfgErr) {
		h.metrics.Reject(metrics.ReasonConfigError)
		h.logger.Error("signin configuration missing", "details", cfgErr.Reason)
		return c.JSON(http.StatusInternalServerError, model.ErrorEnvelope{
			Error:   "Missing signin configuration",
			Details: cfgErr.Reason,
		})
	}

	status := http.StatusInternalServerError
	envelope := model.ErrorEnvelope{Error: "Proxy error", Details: failureMessage(err)}

	var upErr *service.UpstreamError
	if errors.As(err, &upErr) {
		status = upErr.StatusCode
		envelope.Status = upErr.StatusCode
		envelope.Details = upErr.Error()
		if !falsy(upErr.Body) {
			envelope.Details = bodyValue(upErr.Body)
		}
	}

	h.logger.Error("proxy error",
		"status", envelope.Status,
		"response", string(bodyOf(upErr)),
		"err", err.Error(),
		"path", c.Request().URL.Path,
	)

	return c.JSON(status, envelope)
}

// failureMessage returns the message of the failure itself, without the
// relay's own wrapping.
func failureMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Error()
	}
	if errors.Is(err, client.ErrResponseTooLarge) {
		return client.ErrResponseTooLarge.Error()
	}
	return err.Error()
}

// falsy reports whether an upstream error body carries nothing worth
// returning: empty, or a JSON null, false, 0 or "".
func falsy(body []byte) bool {
	if len(body) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	}
	return false
}

func bodyOf(e *service.UpstreamError) []byte {
	if e == nil {
		return nil
	}
	return e.Body
}

// bodyValue returns a JSON body unchanged and wraps anything else as a JSON string.
func bodyValue(body []byte) any {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}

// writeBody writes an upstream body back verbatim.
func writeBody(c echo.Context, status int, body []byte) error {
	if status == http.StatusNoContent || status == http.StatusNotModified {
		return c.NoContent(status)
	}
	if json.Valid(body) {
		return c.JSONBlob(status, body)
	}
	return c.JSON(status, string(body))
}
