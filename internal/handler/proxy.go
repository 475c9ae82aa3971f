package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"replay-proxy/internal/metrics"
	"replay-proxy/internal/middleware"
	"replay-proxy/internal/reqctx"
	"replay-proxy/internal/service"
	"replay-proxy/internal/stream"
)

// ErrNotEnded is reported when a request was served without the response
// being completed.
var ErrNotEnded = errors.New("handler returned without ending the response")

// Diagnostics is the logger for faults nobody declared a status for. It is
// kept apart from the request log so unexpected failures stand out.
type Diagnostics struct {
	*slog.Logger
}

// ProxyHandler serves every non-admin request: replay, or forward and
// record. It is the per-request error boundary.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	diag    Diagnostics
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger, diag Diagnostics) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
		diag:    diag,
	}
}

// Handle answers the request and always leaves it with a terminated
// response, whatever fails along the way.
func (h *ProxyHandler) Handle(c echo.Context) error {
	res := reqctx.NewResponse(c.Response())

	rc, err := reqctx.New(c.Request(), middleware.Index(c), h.logger)
	if err != nil {
		h.fail(c, res, err)
		return nil
	}

	outcome, err := h.service.Serve(rc, res)
	if err == nil && !res.Ended() {
		err = ErrNotEnded
	}
	if err != nil {
		h.fail(c, res, err)
		return nil
	}

	middleware.SetOutcome(c, outcome)
	return nil
}

// fail reports err to the client in whatever way the response state still
// allows.
func (h *ProxyHandler) fail(c echo.Context, res *reqctx.Response, err error) {
	middleware.SetOutcome(c, metrics.OutcomeError)
	req := c.Request()
	status, declared := statusOf(err)
	msg := messageOf(err)

	h.logger.Error("request failed",
		"index", middleware.Index(c),
		"method", req.Method,
		"path", req.URL.RequestURI(),
		"status", status,
		"headers_sent", res.HeadersSent(),
		"err", err,
	)
	if !declared && h.diag.Logger != nil {
		h.diag.Error("unexpected fault",
			"index", middleware.Index(c),
			"correlation_id", middleware.CorrelationID(c),
			"method", req.Method,
			"path", req.URL.RequestURI(),
			"err", err,
		)
	}

	var werr error
	switch {
	case res.Ended():
		return
	case res.HeadersSent():
		// The status is on the wire; mark the body instead.
		werr = res.WriteString("ERROR{{" + msg + "}}").End()
	default:
		clear(res.Header())
		werr = res.Status(status).Text(msg).End()
	}
	if werr != nil {
		h.logger.Warn("failed to deliver error response",
			"index", middleware.Index(c),
			"headers_sent", res.HeadersSent(),
			"err", werr,
		)
	}
}

// statusOf maps an error to the status sent when headers are still
// unsent. declared is false for faults nothing assigned a status to.
func statusOf(err error) (status int, declared bool) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, true
	}

	switch {
	case errors.Is(err, reqctx.ErrMissingHost), errors.Is(err, reqctx.ErrBadURL):
		return http.StatusBadRequest, true
	case errors.Is(err, service.ErrNoFixture):
		return http.StatusInternalServerError, true
	case errors.Is(err, stream.ErrCorrupt):
		return http.StatusBadGateway, true
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, true
	case errors.Is(err, context.Canceled):
		return http.StatusBadGateway, true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return http.StatusBadGateway, true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return http.StatusGatewayTimeout, true
		}
		return http.StatusBadGateway, true
	}

	return http.StatusInternalServerError, false
}

func messageOf(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fmt.Sprint(he.Message)
	}
	return err.Error()
}
