package handler

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/apperr"
	"github.com/iliyamo/mindwell/internal/knowledge"
)

// KnowledgeHandler exposes the disorder/symptom graph.
type KnowledgeHandler struct {
	Svc *knowledge.Service
	Log *zap.Logger
}

func NewKnowledgeHandler(s *knowledge.Service, log *zap.Logger) *KnowledgeHandler {
	if s == nil {
		panic("nil service passed to NewKnowledgeHandler")
	}
	return &KnowledgeHandler{Svc: s, Log: log}
}

type nameReq struct {
	Name string `json:"name"`
}

type linkReq struct {
	Symptom string `json:"symptom"`
}

type diagnoseReq struct {
	Symptoms []string `json:"symptoms"`
}

// nameParam returns a path parameter with percent-escapes decoded, since
// disorder and symptom names may contain spaces.
func nameParam(c echo.Context, name string) (string, error) {
	v, err := url.PathUnescape(c.Param(name))
	if err != nil {
		return "", apperr.Validation("invalid %s", name)
	}
	return v, nil
}

// ListDisorders handles GET /v1/disorders.
func (h *KnowledgeHandler) ListDisorders(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, err := h.Svc.ListDisorders(ctx, a)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(items, len(items)))
}

// ListSymptoms handles GET /v1/symptoms?disorder=.
func (h *KnowledgeHandler) ListSymptoms(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	items, err := h.Svc.ListSymptoms(ctx, a, c.QueryParam("disorder"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(items, len(items)))
}

// AddDisorder handles POST /v1/disorders.
func (h *KnowledgeHandler) AddDisorder(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req nameReq
	if err := c.Bind(&req); err != nil {
		return bindErr(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	d, err := h.Svc.AddDisorder(ctx, a, req.Name)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, d)
}

// AddSymptom handles POST /v1/symptoms.
func (h *KnowledgeHandler) AddSymptom(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req nameReq
	if err := c.Bind(&req); err != nil {
		return bindErr(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	s, err := h.Svc.AddSymptom(ctx, a, req.Name)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// LinkSymptom handles POST /v1/disorders/:name/symptoms.
func (h *KnowledgeHandler) LinkSymptom(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	disorder, err := nameParam(c, "name")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req linkReq
	if err := c.Bind(&req); err != nil {
		return bindErr(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	l, err := h.Svc.LinkSymptom(ctx, a, disorder, req.Symptom)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, l)
}

// UnlinkSymptom handles DELETE /v1/disorders/:name/symptoms/:symptom.
func (h *KnowledgeHandler) UnlinkSymptom(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	disorder, err := nameParam(c, "name")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	symptom, err := nameParam(c, "symptom")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Svc.UnlinkSymptom(ctx, a, disorder, symptom); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteDisorder handles DELETE /v1/disorders/:name.
func (h *KnowledgeHandler) DeleteDisorder(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	name, err := nameParam(c, "name")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Svc.DeleteDisorder(ctx, a, name); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteSymptom handles DELETE /v1/symptoms/:name.
func (h *KnowledgeHandler) DeleteSymptom(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	name, err := nameParam(c, "name")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Svc.DeleteSymptom(ctx, a, name); err != nil {
		return writeError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Diagnose handles POST /v1/diagnose.
func (h *KnowledgeHandler) Diagnose(c echo.Context) error {
	a, err := actorFrom(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req diagnoseReq
	if err := c.Bind(&req); err != nil {
		return bindErr(c)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Svc.Diagnose(ctx, a, req.Symptoms)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, list(out, len(out)))
}
