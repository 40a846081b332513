package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shr/shr/internal/platform/fhir"
)

// RequestTimeout puts a deadline on the request context. Handlers pass that
// context to storage and collaborators; when one of them gives up on the
// deadline and nothing has been written yet, the client gets a 504
// OperationOutcome. A non-positive timeout disables the deadline.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err == nil || c.Response().Committed {
				return err
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return c.JSON(http.StatusGatewayTimeout,
					fhir.NewOperationOutcome("error", "timeout", "request processing exceeded the allowed time limit"))
			}
			return err
		}
	}
}
