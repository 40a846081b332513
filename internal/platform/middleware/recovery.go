package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"github.com/shr/shr/internal/platform/auth"
	"github.com/shr/shr/internal/platform/fhir"
)

// Recovery turns a handler panic into a 500 OperationOutcome and logs the
// panic value with its stack.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var err error
			var pc panics.Catcher
			pc.Try(func() { err = next(c) })

			r := pc.Recovered()
			if r == nil {
				return err
			}
			rid, _ := c.Get("request_id").(string)
			logger.Error().
				Str("request_id", rid).
				Str("caller", auth.IdentityFromContext(c.Request().Context()).ID).
				Str("path", c.Request().URL.Path).
				Interface("panic", r.Value).
				Bytes("stack", r.Stack).
				Msg("panic recovered")
			return echo.NewHTTPError(http.StatusInternalServerError, fhir.ErrorOutcome("internal server error"))
		}
	}
}
