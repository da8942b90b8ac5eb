package handler // handler translates HTTP requests into engine and service calls

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/middleware"
	"github.com/iliyamo/mindwell/internal/policy"
)

const requestTimeout = 5 * time.Second

var errNoActor = errors.New("no actor in context")

// actorFrom returns the actor resolved by middleware.ResolveActor. A
// missing actor is a routing mistake, not a client error.
func actorFrom(c echo.Context) (policy.Actor, error) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		return policy.Actor{}, errNoActor
	}
	return a, nil
}

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// queryID reads an optional numeric query parameter; absent means 0.
func queryID(c echo.Context, name string) (uint64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// page reads skip and limit, defaulting limit to 50 and capping it at 200.
func page(c echo.Context) (skip, limit int, err error) {
	skip, limit = 0, 50
	if s := c.QueryParam("skip"); s != "" {
		if skip, err = strconv.Atoi(s); err != nil || skip < 0 {
			return 0, 0, apperr.Validation("invalid skip")
		}
	}
	if s := c.QueryParam("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
			return 0, 0, apperr.Validation("invalid limit")
		}
	}
	if limit > 200 {
		limit = 200
	}
	return skip, limit, nil
}

// writeError maps error kinds to status codes. Internal errors are logged
// and answered with a generic message.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var status int
	switch k := apperr.Kind(err); {
	case errors.Is(k, apperr.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(k, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(k, apperr.ErrConflict), errors.Is(k, apperr.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(k, apperr.ErrValidation):
		status = http.StatusBadRequest
	default:
		middleware.LoggerFrom(c, log).Error("request failed",
			zap.String("route", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func bindErr(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
}

type listResp[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func list[T any](items []T, total int) listResp[T] {
	if items == nil {
		items = []T{}
	}
	return listResp[T]{Items: items, Total: total}
}
