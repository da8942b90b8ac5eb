package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/mindwell/internal/model"
)

// CreateReview handles POST /v1/reviews.
func (h *WorkflowHandler) CreateReview(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req model.NewReview
	if err := c.Bind(&req); err != nil {
		return bindErr(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	r, err := h.Engine.CreateReview(ctx, a, req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

// GetReview handles GET /v1/reviews/:id.
func (h *WorkflowHandler) GetReview(c echo.Context) error {
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
	r, err := h.Engine.GetReview(ctx, a, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// ListReviews handles GET /v1/reviews?disorder=&patient_id=.
func (h *WorkflowHandler) ListReviews(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	patient, err := queryID(c, "patient_id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	f := model.ReviewFilter{
		DisorderName:  strings.TrimSpace(c.QueryParam("disorder")),
		PatientUserID: patient,
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, err := h.Engine.ListReviews(ctx, a, f)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(items, len(items)))
}
