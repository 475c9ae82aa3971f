package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"replay-proxy/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()

			err := next(c)

			// When a handler returns an *echo.HTTPError, the response status
			// hasn't been written yet; Echo's central error handler will do
			// that later.
			statusCode := c.Response().Status
			if err != nil {
				var he *echo.HTTPError
				if errors.As(err, &he) {
					statusCode = he.Code
				}
			}

			status := strconv.Itoa(statusCode)
			method := metrics.NormalizeMethod(c.Request().Method)
			outcome := metrics.NormalizeOutcome(Outcome(c))
			duration := time.Since(start).Seconds()

			m.RequestsTotal.WithLabelValues(method, status, outcome).Inc()
			m.RequestDuration.WithLabelValues(method, status, outcome).Observe(duration)

			return err
		}
	}
}
