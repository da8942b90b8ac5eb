package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/model"
	"github.com/iliyamo/mindwell/internal/policy"
)

// UserLookup is the part of the identity store ResolveActor needs.
type UserLookup interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// ResolveActor turns the authenticated subject into a policy.Actor using
// the user's current role and active flag. Unknown users get 401 and
// deactivated users 403. Must run after JWTAuth.
func ResolveActor(users UserLookup, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := c.Get(ctxUserID).(uint64)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
			defer cancel()
			u, err := users.GetByID(ctx, id)
			switch {
			case errors.Is(err, apperr.ErrNotFound):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unknown user"})
			case err != nil:
				log.Error("resolve actor", zap.Uint64("user_id", id), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
			case !u.IsActive:
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account is deactivated"})
			}
			c.Set(ctxActor, policy.Actor{UserID: u.ID, Role: u.Role})
			return next(c)
		}
	}
}

// ActorFrom returns the actor stored by ResolveActor.
func ActorFrom(c echo.Context) (policy.Actor, bool) {
	a, ok := c.Get(ctxActor).(policy.Actor)
	return a, ok
}

// SetActor stores a resolved actor; used by tests and internal callers
// that authenticate by other means.
func SetActor(c echo.Context, a policy.Actor) { c.Set(ctxActor, a) }

// userID returns the caller's id for keying, or "anon".
func userID(c echo.Context) string {
	if a, ok := ActorFrom(c); ok {
		return strconv.FormatUint(a.UserID, 10)
	}
	if id, ok := c.Get(ctxUserID).(uint64); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
