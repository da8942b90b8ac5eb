package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/mindwell/internal/model"
)

type roleReq struct {
	Role string `json:"role"`
}

type activeReq struct {
	IsActive *bool `json:"is_active"`
}

// ListUsers handles GET /v1/admin/users?search=&role=&skip=&limit=.
func (h *WorkflowHandler) ListUsers(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	skip, limit, err := page(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	f := model.UserFilter{
		Search: strings.TrimSpace(c.QueryParam("search")),
		Role:   model.Role(strings.ToLower(strings.TrimSpace(c.QueryParam("role")))),
		Skip:   skip,
		Limit:  limit,
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, total, err := h.Engine.ListUsers(ctx, a, f)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(items, total))
}

// GetUser handles GET /v1/users/:id.
func (h *WorkflowHandler) GetUser(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	u, err := h.Engine.GetUser(ctx, a, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// PromoteUser handles PUT /v1/admin/users/:id/role.
func (h *WorkflowHandler) PromoteUser(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return bindErr(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	u, err := h.Engine.PromoteUser(ctx, a, id, model.Role(strings.ToLower(strings.TrimSpace(req.Role))))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}

// SetUserActive handles PUT /v1/admin/users/:id/active.
func (h *WorkflowHandler) SetUserActive(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req activeReq
	if err := c.Bind(&req); err != nil || req.IsActive == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "is_active required"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	u, err := h.Engine.SetUserActive(ctx, a, id, *req.IsActive)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, u)
}
