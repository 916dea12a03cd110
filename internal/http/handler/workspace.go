package handler

import (
	"net/http"

	"weldflow-api/internal/auth"
	"weldflow-api/internal/domain"
	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/service"
)

// WorkspaceHandler serves the workspace switcher and the quota report.
type WorkspaceHandler struct {
	workspaces *service.WorkspaceService
	quota      *service.QuotaService
}

func NewWorkspaceHandler(workspaces *service.WorkspaceService, quota *service.QuotaService) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: workspaces, quota: quota}
}

// ListWorkspaces handles GET /api/v1/workspaces. It needs only the token,
// so it is mounted outside WorkspaceMiddleware.
func (h *WorkspaceHandler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication required")
		return
	}

	workspaces, err := h.workspaces.ListWorkspaces(ctx, claims.UserID())
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeList(w, workspaces)
}

// currentWorkspace is the body of GET /api/v1/workspaces/current.
type currentWorkspace struct {
	ID string `json:"id"`
	domain.WorkspaceContext
}

// CurrentWorkspace handles GET /api/v1/workspaces/current
func (h *WorkspaceHandler) CurrentWorkspace(w http.ResponseWriter, r *http.Request) {
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, currentWorkspace{ID: wctx.ID(), WorkspaceContext: wctx})
}

// GetQuota handles GET /api/v1/quota
func (h *WorkspaceHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	report, err := h.quota.Usage(ctx, wctx)
	if err != nil {
		handleServiceError(w, ctx, logger.GetLogger(ctx), err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
