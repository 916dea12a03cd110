package service

import (
	"context"
	"errors"
	"fmt"

	"weldflow-api/internal/access"
	"weldflow-api/internal/domain"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"
	"weldflow-api/internal/telemetry"

	"github.com/google/uuid"
)

// RecordService is the CRUD service shared by every business entity kind.
// Visibility comes from access.Filter, module rights from PermissionChecker,
// and creates are bounded by QuotaService.
type RecordService struct {
	records   RecordStore
	approvals ApprovalStore
	quota     *QuotaService
	perms     *PermissionChecker
	audit     AuditLogger
	metrics   *telemetry.DomainMetrics
	log       *logger.Logger
}

func NewRecordService(records RecordStore, approvals ApprovalStore, quota *QuotaService, perms *PermissionChecker, audit AuditLogger, metrics *telemetry.DomainMetrics, log *logger.Logger) *RecordService {
	return &RecordService{
		records:   records,
		approvals: approvals,
		quota:     quota,
		perms:     perms,
		audit:     audit,
		metrics:   metrics,
		log:       log,
	}
}

// authorize validates the kind, builds the filter and checks the module action.
func (s *RecordService) authorize(ctx context.Context, wctx domain.WorkspaceContext, kind domain.RecordKind, action domain.ModuleAction) (access.Filter, error) {
	if !kind.IsValid() {
		return access.Filter{}, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	f, err := access.NewFilter(wctx)
	if err != nil {
		return access.Filter{}, err
	}
	if err := s.perms.Check(ctx, wctx, kind.Module(), action); err != nil {
		return access.Filter{}, err
	}
	return f, nil
}

// List returns visible records of one kind: system rows plus the tenant's own.
func (s *RecordService) List(ctx context.Context, wctx domain.WorkspaceContext, params domain.ListRecordsParams) (*domain.RecordListResponse, error) {
	f, err := s.authorize(ctx, wctx, params.Kind, domain.ActionView)
	if err != nil {
		return nil, err
	}
	params.Limit = clampLimit(params.Limit)

	records, nextCursor, err := s.records.List(ctx, f, params)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	response := &domain.RecordListResponse{Data: records}
	response.Meta.HasNextPage = nextCursor != ""
	if nextCursor != "" {
		response.Meta.NextCursor = &nextCursor
	}
	return response, nil
}

// Get returns one visible record.
func (s *RecordService) Get(ctx context.Context, wctx domain.WorkspaceContext, kind domain.RecordKind, id string) (*domain.Record, error) {
	f, err := s.authorize(ctx, wctx, kind, domain.ActionView)
	if err != nil {
		return nil, err
	}
	return s.records.Get(ctx, f, kind, id)
}

// Create stamps the scope columns from the context and enforces the quota
// of the kind and the storage quota.
func (s *RecordService) Create(ctx context.Context, wctx domain.WorkspaceContext, kind domain.RecordKind, req *domain.CreateRecordRequest) (*domain.Record, error) {
	f, err := s.authorize(ctx, wctx, kind, domain.ActionCreate)
	if err != nil {
		return nil, err
	}

	if err := s.quota.Check(ctx, f, kind.QuotaResource(), 1); err != nil {
		return nil, err
	}
	if err := s.quota.Check(ctx, f, domain.ResourceStorage, req.AttachmentsSize); err != nil {
		return nil, err
	}

	rec := &domain.Record{
		ID:              uuid.NewString(),
		Kind:            kind,
		AccessLevel:     domain.AccessPrivate,
		Code:            req.Code,
		Title:           req.Title,
		Status:          domain.RecordDraft,
		Data:            req.Data,
		AttachmentsSize: req.AttachmentsSize,
	}
	if req.AccessLevel != nil {
		rec.AccessLevel = *req.AccessLevel
	}
	if req.IsShared != nil {
		rec.IsShared = *req.IsShared
	}
	if rec.Data == nil {
		rec.Data = map[string]interface{}{}
	}
	f.Stamp(rec)

	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	s.metrics.RecordWrite(string(kind), "create", string(wctx.WorkspaceType))
	s.log.Info(ctx, "record created",
		logger.Module(kind.Module()),
		logger.Action("create"),
		logger.Kind(string(kind)),
		logger.RecordID(rec.ID),
	)
	logAudit(ctx, s.audit, s.log, wctx, "create", kind.Module(), rec.ID, map[string]interface{}{"code": rec.Code})

	return rec, nil
}

// Update applies a PATCH. Only the creator can modify a row, system rows are
// read-only and rows under approval are locked.
func (s *RecordService) Update(ctx context.Context, wctx domain.WorkspaceContext, kind domain.RecordKind, id string, req *domain.UpdateRecordRequest) (*domain.Record, error) {
	f, err := s.authorize(ctx, wctx, kind, domain.ActionEdit)
	if err != nil {
		return nil, err
	}

	rec, err := s.records.Get(ctx, f, kind, id)
	if err != nil {
		return nil, err
	}
	if err := f.CanWrite(rec); err != nil {
		return nil, err
	}
	if rec.IsLocked() {
		return nil, domain.ErrRecordLocked
	}

	if req.Status != nil && !req.Status.IsSettableByUser() {
		return nil, ErrInvalidStatusChange
	}
	if req.AttachmentsSize != nil {
		if delta := *req.AttachmentsSize - rec.AttachmentsSize; delta > 0 {
			if err := s.quota.Check(ctx, f, domain.ResourceStorage, delta); err != nil {
				return nil, err
			}
		}
	}

	if req.Code != nil {
		rec.Code = *req.Code
	}
	if req.Title != nil {
		rec.Title = *req.Title
	}
	if req.Status != nil {
		rec.Status = *req.Status
	}
	if req.AccessLevel != nil {
		rec.AccessLevel = *req.AccessLevel
	}
	if req.IsShared != nil {
		rec.IsShared = *req.IsShared
	}
	if req.Data != nil {
		rec.Data = req.Data
	}
	if req.AttachmentsSize != nil {
		rec.AttachmentsSize = *req.AttachmentsSize
	}

	if err := s.records.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	s.metrics.RecordWrite(string(kind), "update", string(wctx.WorkspaceType))
	logAudit(ctx, s.audit, s.log, wctx, "update", kind.Module(), rec.ID, nil)
	return rec, nil
}

// Delete soft-deletes a record. Deleted rows stop counting against quota.
func (s *RecordService) Delete(ctx context.Context, wctx domain.WorkspaceContext, kind domain.RecordKind, id string) error {
	f, err := s.authorize(ctx, wctx, kind, domain.ActionDelete)
	if err != nil {
		return err
	}

	rec, err := s.records.Get(ctx, f, kind, id)
	if err != nil {
		return err
	}
	if err := f.CanWrite(rec); err != nil {
		return err
	}
	if rec.IsLocked() {
		return domain.ErrRecordLocked
	}
	// A returned document is back in draft but its instance is still open.
	if rec.WorkspaceType == domain.WorkspaceEnterprise {
		if _, err := s.approvals.GetActiveByDocument(ctx, rec.ID); err == nil {
			return ErrActiveApprovalExists
		} else if !errors.Is(err, repo.ErrApprovalNotFound) {
			return fmt.Errorf("check active approval: %w", err)
		}
	}

	if err := s.records.SoftDelete(ctx, rec.ID); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}

	s.metrics.RecordWrite(string(kind), "delete", string(wctx.WorkspaceType))
	logAudit(ctx, s.audit, s.log, wctx, "delete", kind.Module(), rec.ID, nil)
	return nil
}
