package handler

import (
	"net/http"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RecordHandler serves the per-kind business record endpoints.
type RecordHandler struct {
	service   *service.RecordService
	approvals *service.ApprovalService
}

func NewRecordHandler(service *service.RecordService, approvals *service.ApprovalService) *RecordHandler {
	return &RecordHandler{service: service, approvals: approvals}
}

// ListRecords handles GET /api/v1/records/{kind}
func (h *RecordHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	kind, ok := parseKind(w, ctx, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	params := domain.ListRecordsParams{Kind: kind}
	if params.Limit, ok = parseLimit(w, r); !ok {
		return
	}
	params.Cursor = optionalQuery(r, "cursor")
	params.FactoryID = optionalQuery(r, "factoryId")
	params.Query = optionalQuery(r, "q")

	// Filtros opcionais
	if statusStr := optionalQuery(r, "status"); statusStr != nil {
		status := domain.RecordStatus(*statusStr)
		if !status.IsValid() {
			httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidStatus, "status must be one of: draft, pending_approval, approved, rejected, archived")
			return
		}
		params.Status = &status
	}

	response, err := h.service.List(ctx, wctx, params)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	log.Debug(ctx, "records listed",
		logger.Module("records"),
		logger.Action("list"),
		logger.Kind(string(kind)),
		zap.Int("count", len(response.Data)),
		zap.Bool("hasNextPage", response.Meta.HasNextPage),
	)

	writeJSON(w, http.StatusOK, response)
}

// GetRecord handles GET /api/v1/records/{kind}/{recordId}
func (h *RecordHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	kind, ok := parseKind(w, ctx, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	record, err := h.service.Get(ctx, wctx, kind, chi.URLParam(r, "recordId"))
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// CreateRecord handles POST /api/v1/records/{kind}
func (h *RecordHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	kind, ok := parseKind(w, ctx, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.CreateRecordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := h.service.Create(ctx, wctx, kind, &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	w.Header().Set("Location", "/api/v1/records/"+string(kind)+"/"+record.ID)
	writeJSON(w, http.StatusCreated, record)
}

// UpdateRecord handles PATCH /api/v1/records/{kind}/{recordId}
func (h *RecordHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	kind, ok := parseKind(w, ctx, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.UpdateRecordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := h.service.Update(ctx, wctx, kind, chi.URLParam(r, "recordId"), &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// DeleteRecord handles DELETE /api/v1/records/{kind}/{recordId}
func (h *RecordHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	kind, ok := parseKind(w, ctx, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(ctx, wctx, kind, chi.URLParam(r, "recordId")); err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SubmitForApproval handles POST /api/v1/records/{kind}/{recordId}/approval
func (h *RecordHandler) SubmitForApproval(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.GetLogger(ctx)

	kind, ok := parseKind(w, ctx, chi.URLParam(r, "kind"))
	if !ok {
		return
	}
	wctx, ok := workspaceFrom(w, r)
	if !ok {
		return
	}

	var req domain.SubmitApprovalRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	instance, err := h.approvals.Submit(ctx, wctx, kind, chi.URLParam(r, "recordId"), &req)
	if err != nil {
		handleServiceError(w, ctx, log, err)
		return
	}

	w.Header().Set("Location", "/api/v1/approvals/"+instance.ID)
	writeJSON(w, http.StatusCreated, instance)
}
