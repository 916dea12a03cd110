package handler

import (
	"context"
	"net/http"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/service"

	"github.com/go-chi/chi/v5"
)

// ApprovalHandler serves approval inbox and transition endpoints.
type ApprovalHandler struct {
	service *service.ApprovalService
}

func NewApprovalHandler(service *service.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// ListApprovals handles GET /api/v1/approvals?box=pending|submitted&status=
func (h *ApprovalHandler) ListApprovals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	params := domain.ListApprovalsParams{Box: domain.BoxPending}
	if box := optionalQuery(r, "box"); box != nil {
		params.Box = domain.ApprovalBox(*box)
		if !params.Box.IsValid() {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidParameter, "box must be one of: pending, submitted")
			return
		}
	}
	if statusStr := optionalQuery(r, "status"); statusStr != nil {
		status := domain.ApprovalStatus(*statusStr)
		if !status.IsValid() {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidStatus, "status must be a valid approval status")
			return
		}
		params.Status = &status
	}
	if params.Limit, ok = parseLimit(w, r); !ok {
		return
	}

	instances, err := h.service.List(ctx, wctx, params)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeList(w, instances)
}

// GetApproval handles GET /api/v1/approvals/{instanceId}
func (h *ApprovalHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	detail, err := h.service.Get(ctx, wctx, chi.URLParam(r, "instanceId"))
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// GetHistory handles GET /api/v1/approvals/{instanceId}/history
func (h *ApprovalHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	history, err := h.service.History(ctx, wctx, chi.URLParam(r, "instanceId"))
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeList(w, history)
}

type approvalAction func(ctx context.Context, wctx domain.WorkspaceContext, instanceID string, req *domain.ApprovalActionRequest) (*domain.ApprovalInstance, error)

// action adapts an approve/reject/resubmit/cancel/comment service call.
func (h *ApprovalHandler) action(fn approvalAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := logger.GetLogger(ctx)

		wctx, ok := workspaceFrom(w, r)
		if !ok {
			return
		}

		var req domain.ApprovalActionRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		instance, err := fn(ctx, wctx, chi.URLParam(r, "instanceId"), &req)
		if err != nil {
			handleServiceError(w, ctx, log, err)
			return
		}

		writeJSON(w, http.StatusOK, instance)
	}
}

// Approve handles POST /api/v1/approvals/{instanceId}/approve
func (h *ApprovalHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.action(h.service.Approve)(w, r)
}

// Reject handles POST /api/v1/approvals/{instanceId}/reject
func (h *ApprovalHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.action(h.service.Reject)(w, r)
}

// Resubmit handles POST /api/v1/approvals/{instanceId}/resubmit
func (h *ApprovalHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	h.action(h.service.Resubmit)(w, r)
}

// Cancel handles POST /api/v1/approvals/{instanceId}/cancel
func (h *ApprovalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.action(h.service.Cancel)(w, r)
}

// Comment handles POST /api/v1/approvals/{instanceId}/comment
func (h *ApprovalHandler) Comment(w http.ResponseWriter, r *http.Request) {
	h.action(h.service.Comment)(w, r)
}

// Return handles POST /api/v1/approvals/{instanceId}/return
func (h *ApprovalHandler) Return(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.ReturnApprovalRequest
	if !decodeBody(w, r, &req) {
		return
	}

	instance, err := h.service.Return(ctx, wctx, chi.URLParam(r, "instanceId"), &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, instance)
}
