package middleware

import (
	"github.com/labstack/echo/v4"

	"replay-proxy/internal/model"
)

// StripHopByHop returns an Echo middleware that removes hop-by-hop headers
// from the incoming request before any handler sees it.
func StripHopByHop() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			model.RemoveHopByHop(c.Request().Header)
			return next(c)
		}
	}
}
