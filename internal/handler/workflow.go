package handler

import (
	"go.uber.org/zap"

	"github.com/iliyamo/mindwell/internal/workflow"
)

// WorkflowHandler exposes the workflow engine: applications, treatment
// plans, problem reports, reviews and user administration.
type WorkflowHandler struct {
	Engine *workflow.Engine
	Log    *zap.Logger
}

func NewWorkflowHandler(e *workflow.Engine, log *zap.Logger) *WorkflowHandler {
	if e == nil {
		panic("nil engine passed to NewWorkflowHandler")
	}
	return &WorkflowHandler{Engine: e, Log: log}
}

// statusReq is the body of every PUT .../status endpoint.
type statusReq struct {
	Status string `json:"status"`
}
