// Package middleware provides Echo middleware for request bookkeeping,
// logging, metrics and panic recovery.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogger returns an Echo middleware that logs each completed request with slog.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelWarn
			}
			logger.Log(req.Context(), level, "request",
				"index", Index(c),
				"correlation_id", CorrelationID(c),
				"method", req.Method,
				"path", req.URL.RequestURI(),
				"remote_ip", c.RealIP(),
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"bytes_out", res.Size,
				"outcome", Outcome(c),
			)

			return err
		}
	}
}
