package handler

import (
	"net/http"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/service"

	"github.com/go-chi/chi/v5"
)

// WorkflowHandler serves approval workflow definitions.
type WorkflowHandler struct {
	service *service.WorkflowService
}

func NewWorkflowHandler(service *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{service: service}
}

// ListWorkflows handles GET /api/v1/approval-workflows?documentType=
func (h *WorkflowHandler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var docType *domain.RecordKind
	if raw := optionalQuery(r, "documentType"); raw != nil {
		kind, ok := parseKind(w, ctx, *raw)
		if !ok {
			return
		}
		docType = &kind
	}

	workflows, err := h.service.List(ctx, wctx, docType)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeList(w, workflows)
}

// GetWorkflow handles GET /api/v1/approval-workflows/{workflowId}
func (h *WorkflowHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	wf, err := h.service.Get(ctx, wctx, chi.URLParam(r, "workflowId"))
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// CreateWorkflow handles POST /api/v1/approval-workflows
func (h *WorkflowHandler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.CreateWorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wf, err := h.service.Create(ctx, wctx, &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	w.Header().Set("Location", "/api/v1/approval-workflows/"+wf.ID)
	writeJSON(w, http.StatusCreated, wf)
}

// UpdateWorkflow handles PUT /api/v1/approval-workflows/{workflowId}
func (h *WorkflowHandler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.UpdateWorkflowRequest
	if !decodeBody(w, r, &req) {
		return
	}

	wf, err := h.service.Update(ctx, wctx, chi.URLParam(r, "workflowId"), &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

// DeleteWorkflow handles DELETE /api/v1/approval-workflows/{workflowId}.
// Workflows are deactivated, instances keep referencing them.
func (h *WorkflowHandler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, wctx, chi.URLParam(r, "workflowId")); err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
