package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"replay-proxy/internal/metrics"
	"replay-proxy/internal/reqctx"
)

// Recover returns Echo's recover middleware logging through slog. A panic
// with reqctx.ErrAlreadyEnded means two code paths completed the same
// response and is reported as a protocol violation.
func Recover(logger *slog.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			SetOutcome(c, metrics.OutcomeError)
			msg := "panic recovered"
			if errors.Is(err, reqctx.ErrAlreadyEnded) {
				msg = "protocol violation: response completed twice"
			}
			logger.Error(msg,
				"index", Index(c),
				"method", c.Request().Method,
				"path", c.Request().URL.RequestURI(),
				"err", err,
				"stack", string(stack),
			)
			if c.Response().Committed {
				// Nothing more can be sent; Echo's error handler would only log again.
				return nil
			}
			return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("internal error: %v", err))
		},
	})
}
