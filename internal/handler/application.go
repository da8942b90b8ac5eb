package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/mindwell/internal/model"
)

type applicationReq struct {
	model.ApplicationFields
	// ApplicantUserID lets an admin file on behalf of another user.
	ApplicantUserID uint64 `json:"applicant_user_id"`
}

// SubmitApplication handles POST /v1/therapist/applications.
func (h *WorkflowHandler) SubmitApplication(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req applicationReq
	if err := c.Bind(&req); err != nil {
		return bindErr(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	app, err := h.Engine.SubmitApplication(ctx, a, req.ApplicantUserID, req.ApplicationFields)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, app)
}

// MyApplication handles GET /v1/therapist/applications/me.
func (h *WorkflowHandler) MyApplication(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	app, err := h.Engine.MyApplication(ctx, a)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, app)
}

// GetApplication handles GET /v1/admin/applications/:id.
func (h *WorkflowHandler) GetApplication(c echo.Context) error {
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
	app, err := h.Engine.GetApplication(ctx, a, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, app)
}

// ListApplications handles GET /v1/admin/applications?status=&skip=&limit=.
func (h *WorkflowHandler) ListApplications(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	skip, limit, err := page(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	f := model.ApplicationFilter{
		Status: model.ApplicationStatus(strings.ToLower(strings.TrimSpace(c.QueryParam("status")))),
		Skip:   skip,
		Limit:  limit,
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, total, err := h.Engine.ListApplications(ctx, a, f)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(items, total))
}

// SetApplicationStatus handles PUT /v1/admin/applications/:id/status.
func (h *WorkflowHandler) SetApplicationStatus(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return bindErr(c)
	}
	to := model.ApplicationStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	ctx, cancel := requestCtx(c)
	defer cancel()
	app, err := h.Engine.SetApplicationStatus(ctx, a, id, to)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, app)
}
