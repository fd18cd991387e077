package gate

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carevault/carevault/internal/platform/actor"
)

// CapabilityHeader carries the capability token on enforced record reads.
// The Authorization header is already taken by the identity token.
const CapabilityHeader = "X-Capability-Token"

// Middleware returns echo middleware enforcing the gate on routes whose
// patientParam path parameter names the record owner. It must run after the
// identity middleware so the actor is in the request context.
func Middleware(g *Gate, patientParam string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			act, ok := actor.FromContext(c.Request().Context())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			patientID, err := uuid.Parse(c.Param(patientParam))
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
			}

			meta := RequestMeta{
				IPAddress: c.RealIP(),
				UserAgent: c.Request().UserAgent(),
			}

			rawToken := c.Request().Header.Get(CapabilityHeader)
			if err := g.CheckAndLog(c.Request().Context(), act, rawToken, patientID, meta); err != nil {
				// Every denial reads the same from outside.
				return echo.NewHTTPError(http.StatusForbidden, ErrDenied.Error())
			}

			return next(c)
		}
	}
}
