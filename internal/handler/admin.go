package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"replay-proxy/internal/config"
	"replay-proxy/internal/fixture"
	"replay-proxy/internal/metrics"
	"replay-proxy/internal/middleware"
	"replay-proxy/internal/model"
	"replay-proxy/internal/service"
)

// Version is a string type for dependency injection of the build version.
type Version string

// AdminHandler serves the proxy's own endpoints under config.AdminPrefix.
type AdminHandler struct {
	cfg     *config.Config
	service *service.ProxyService
	store   *fixture.Store
	version Version
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(cfg *config.Config, svc *service.ProxyService, store *fixture.Store, v Version) *AdminHandler {
	return &AdminHandler{cfg: cfg, service: svc, store: store, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *AdminHandler) Healthz(c echo.Context) error {
	middleware.SetOutcome(c, metrics.OutcomeAdmin)
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statusResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Mode         string `json:"mode"`
	UpstreamURL  string `json:"upstream_url"`
	FixturesDir  string `json:"fixtures_dir"`
	FixtureCount int    `json:"fixture_count"`
	Error        string `json:"error,omitempty"`
}

// Status returns proxy status information. An unreadable fixtures directory
// is reported in the body with status "degraded".
func (h *AdminHandler) Status(c echo.Context) error {
	middleware.SetOutcome(c, metrics.OutcomeAdmin)
	resp := statusResponse{
		Status:      "ok",
		Version:     string(h.version),
		Mode:        string(h.service.Mode()),
		UpstreamURL: h.cfg.Upstream.BaseURL,
		FixturesDir: h.store.Dir(),
	}
	names, err := h.store.List()
	if err != nil {
		resp.Status = "degraded"
		resp.Error = err.Error()
	}
	resp.FixtureCount = len(names)
	return c.JSON(http.StatusOK, resp)
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// GetMode returns the current proxy mode.
func (h *AdminHandler) GetMode(c echo.Context) error {
	middleware.SetOutcome(c, metrics.OutcomeAdmin)
	return c.JSON(http.StatusOK, map[string]string{
		"mode": string(h.service.Mode()),
	})
}

// PutMode switches the proxy mode. Requests already in progress keep the
// mode they started with.
func (h *AdminHandler) PutMode(c echo.Context) error {
	middleware.SetOutcome(c, metrics.OutcomeAdmin)
	var req modeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if req.Mode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "mode is required")
	}
	m, err := model.ParseMode(req.Mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	prev := h.service.SetMode(m)
	return c.JSON(http.StatusOK, map[string]string{
		"mode":     string(m),
		"previous": string(prev),
	})
}
