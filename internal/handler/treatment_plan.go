package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/mindwell/internal/model"
)

// planStatus accepts "active", "ACTIVE" or "Active".
func planStatus(raw string) model.PlanStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	return model.PlanStatus(strings.ToUpper(s[:1]) + s[1:])
}

// CreateTreatmentPlan handles POST /v1/treatment-plans.
func (h *WorkflowHandler) CreateTreatmentPlan(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req model.NewTreatmentPlan
	if err := c.Bind(&req); err != nil {
		return bindErr(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Engine.CreateTreatmentPlan(ctx, a, req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// GetTreatmentPlan handles GET /v1/treatment-plans/:id.
func (h *WorkflowHandler) GetTreatmentPlan(c echo.Context) error {
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
	p, err := h.Engine.GetTreatmentPlan(ctx, a, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, p)
}

// ListTreatmentPlans handles GET /v1/treatment-plans?patient_id=&therapist_id=&status=.
func (h *WorkflowHandler) ListTreatmentPlans(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	patient, err := queryID(c, "patient_id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	therapist, err := queryID(c, "therapist_id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	f := model.PlanFilter{
		PatientUserID:   patient,
		TherapistUserID: therapist,
		Status:          planStatus(c.QueryParam("status")),
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, err := h.Engine.ListTreatmentPlans(ctx, a, f)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(items, len(items)))
}

// SetTreatmentPlanStatus handles PUT /v1/treatment-plans/:id/status.
func (h *WorkflowHandler) SetTreatmentPlanStatus(c echo.Context) error {
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
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Engine.SetTreatmentPlanStatus(ctx, a, id, planStatus(req.Status))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, p)
}
