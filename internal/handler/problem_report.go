package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/mindwell/internal/model"
)

func reportFilter(c echo.Context) (model.ReportFilter, error) {
	skip, limit, err := page(c)
	if err != nil {
		return model.ReportFilter{}, err
	}
	return model.ReportFilter{
		Status:   model.ReportStatus(strings.ToLower(strings.TrimSpace(c.QueryParam("status")))),
		Category: model.ReportCategory(strings.ToLower(strings.TrimSpace(c.QueryParam("category")))),
		Skip:     skip,
		Limit:    limit,
	}, nil
}

// CreateProblemReport handles POST /v1/problems.
func (h *WorkflowHandler) CreateProblemReport(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req model.NewProblemReport
	if err := c.Bind(&req); err != nil {
		return bindErr(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	r, err := h.Engine.CreateProblemReport(ctx, a, req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// GetProblemReport handles GET /v1/problems/:id.
func (h *WorkflowHandler) GetProblemReport(c echo.Context) error {
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
	r, err := h.Engine.GetProblemReport(ctx, a, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// MyProblemReports handles GET /v1/problems/mine.
func (h *WorkflowHandler) MyProblemReports(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	f, err := reportFilter(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, total, err := h.Engine.MyProblemReports(ctx, a, f)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(items, total))
}

// ListProblemReports handles GET /v1/problems.
func (h *WorkflowHandler) ListProblemReports(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	f, err := reportFilter(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, total, err := h.Engine.ListProblemReports(ctx, a, f)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(items, total))
}

// SetProblemReportStatus handles PUT /v1/problems/:id/status.
func (h *WorkflowHandler) SetProblemReportStatus(c echo.Context) error {
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
	to := model.ReportStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	ctx, cancel := requestCtx(c)
	defer cancel()
	r, err := h.Engine.SetProblemReportStatus(ctx, a, id, to)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}
