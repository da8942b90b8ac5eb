package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/policy"
)

// RequireRole aborts with 403 unless the resolved actor holds one of the
// given capabilities. It is a coarse route-group gate; the workflow engine
// repeats the check for every operation.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			a, ok := ActorFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			if !policy.HasCapability(a.Role, roles...) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
