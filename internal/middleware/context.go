package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"replay-proxy/internal/reqctx"
)

// Keys under which per-request values are stored on the echo.Context.
const (
	indexKey         = "replay_proxy.index"
	correlationIDKey = "replay_proxy.correlation_id"
	outcomeKey       = "replay_proxy.outcome"
)

// RequestIndex returns an Echo middleware that numbers every request from
// seq on arrival and tags it with a random correlation id. Neither value is
// added to the response, so replayed responses stay byte-identical.
func RequestIndex(seq *reqctx.Sequencer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(indexKey, seq.Next())
			c.Set(correlationIDKey, uuid.NewString())
			return next(c)
		}
	}
}

// Index returns the request index assigned by RequestIndex, or 0.
func Index(c echo.Context) uint64 {
	v, _ := c.Get(indexKey).(uint64)
	return v
}

// CorrelationID returns the correlation id assigned by RequestIndex.
func CorrelationID(c echo.Context) string {
	v, _ := c.Get(correlationIDKey).(string)
	return v
}

// SetOutcome records how the request was answered, for logs and metrics.
func SetOutcome(c echo.Context, outcome string) {
	c.Set(outcomeKey, outcome)
}

// Outcome returns the value stored by SetOutcome.
func Outcome(c echo.Context) string {
	v, _ := c.Get(outcomeKey).(string)
	return v
}
