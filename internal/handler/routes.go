package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"replay-proxy/internal/config"
	"replay-proxy/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance. Admin
// routes live under config.AdminPrefix; every other path and method goes
// to the proxy. m may be nil when metrics are disabled.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, admin *AdminHandler, m *metrics.Metrics) {
	g := e.Group(config.AdminPrefix)
	g.GET("/healthz", admin.Healthz)
	g.GET("/status", admin.Status)
	g.GET("/mode", admin.GetMode)
	g.PUT("/mode", admin.PutMode)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	e.Any("/*", proxy.Handle)
}
