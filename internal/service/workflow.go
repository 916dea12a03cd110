package service

import (
	"context"
	"errors"
	"fmt"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WorkflowService manages approval workflow definitions of a company.
// Members can read them, only owners and admins can change them.
type WorkflowService struct {
	workflows WorkflowStore
	roles     RoleStore
	perms     *PermissionChecker
	audit     AuditLogger
	log       *logger.Logger
}

func NewWorkflowService(workflows WorkflowStore, roles RoleStore, perms *PermissionChecker, audit AuditLogger, log *logger.Logger) *WorkflowService {
	return &WorkflowService{workflows: workflows, roles: roles, perms: perms, audit: audit, log: log}
}

// List returns the company workflows plus system defaults.
func (s *WorkflowService) List(ctx context.Context, wctx domain.WorkspaceContext, docType *domain.RecordKind) ([]domain.ApprovalWorkflow, error) {
	if _, err := s.perms.Membership(ctx, wctx); err != nil {
		return nil, err
	}
	if docType != nil && !docType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, *docType)
	}
	out, err := s.workflows.List(ctx, wctx.Company(), docType)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	return out, nil
}

func (s *WorkflowService) Get(ctx context.Context, wctx domain.WorkspaceContext, workflowID string) (*domain.ApprovalWorkflow, error) {
	if _, err := s.perms.Membership(ctx, wctx); err != nil {
		return nil, err
	}
	return s.workflows.Get(ctx, wctx.Company(), workflowID)
}

// Create stores a new company workflow. Setting IsDefault clears the
// previous default of the same document type.
func (s *WorkflowService) Create(ctx context.Context, wctx domain.WorkspaceContext, req *domain.CreateWorkflowRequest) (*domain.ApprovalWorkflow, error) {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return nil, err
	}
	if !req.DocumentType.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, req.DocumentType)
	}
	if !req.DocumentType.Approvable() {
		return nil, fmt.Errorf("%w: %s", ErrNotApprovable, req.DocumentType)
	}
	if err := s.validateSteps(ctx, wctx.Company(), req.Steps); err != nil {
		return nil, err
	}

	companyID := wctx.Company()
	createdBy := wctx.UserID
	steps := append([]domain.WorkflowStep(nil), req.Steps...)
	domain.SortSteps(steps)

	wf := &domain.ApprovalWorkflow{
		ID:           uuid.NewString(),
		Name:         req.Name,
		DocumentType: req.DocumentType,
		CompanyID:    &companyID,
		Steps:        steps,
		IsDefault:    req.IsDefault,
		IsActive:     true,
		CreatedBy:    &createdBy,
	}
	if err := s.workflows.Create(ctx, wf); err != nil {
		if errors.Is(err, repo.ErrDefaultWorkflowConflict) {
			return nil, ErrDefaultWorkflowConflict
		}
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	s.log.Info(ctx, "approval workflow created",
		logger.Module(domain.ModuleApproval),
		logger.Action("workflow_create"),
		logger.Kind(string(wf.DocumentType)),
		logger.WorkflowID(wf.ID),
		zap.Int("steps", len(wf.Steps)),
		zap.Bool("is_default", wf.IsDefault),
	)
	logAudit(ctx, s.audit, s.log, wctx, "workflow_create", "approval_workflow", wf.ID,
		map[string]interface{}{"document_type": string(wf.DocumentType)})
	return wf, nil
}

// Update replaces a workflow definition. Instances already submitted keep
// their own snapshot of the steps.
func (s *WorkflowService) Update(ctx context.Context, wctx domain.WorkspaceContext, workflowID string, req *domain.UpdateWorkflowRequest) (*domain.ApprovalWorkflow, error) {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return nil, err
	}

	wf, err := s.workflows.Get(ctx, wctx.Company(), workflowID)
	if err != nil {
		return nil, err
	}
	if wf.IsSystem() {
		return nil, fmt.Errorf("%w: system workflows are read-only", ErrPermissionDenied)
	}
	if err := s.validateSteps(ctx, wctx.Company(), req.Steps); err != nil {
		return nil, err
	}

	steps := append([]domain.WorkflowStep(nil), req.Steps...)
	domain.SortSteps(steps)
	wf.Name = req.Name
	wf.Steps = steps
	wf.IsDefault = req.IsDefault && req.IsActive
	wf.IsActive = req.IsActive

	if err := s.workflows.Update(ctx, wf); err != nil {
		if errors.Is(err, repo.ErrDefaultWorkflowConflict) {
			return nil, ErrDefaultWorkflowConflict
		}
		return nil, fmt.Errorf("update workflow: %w", err)
	}

	logAudit(ctx, s.audit, s.log, wctx, "workflow_update", "approval_workflow", wf.ID, nil)
	return wf, nil
}

// Delete deactivates a workflow. In-flight instances are unaffected.
func (s *WorkflowService) Delete(ctx context.Context, wctx domain.WorkspaceContext, workflowID string) error {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return err
	}

	wf, err := s.workflows.Get(ctx, wctx.Company(), workflowID)
	if err != nil {
		return err
	}
	if wf.IsSystem() {
		return fmt.Errorf("%w: system workflows are read-only", ErrPermissionDenied)
	}
	if err := s.workflows.Deactivate(ctx, wctx.Company(), wf.ID); err != nil {
		return fmt.Errorf("deactivate workflow: %w", err)
	}

	logAudit(ctx, s.audit, s.log, wctx, "workflow_delete", "approval_workflow", wf.ID, nil)
	return nil
}

// validateSteps checks the step structure and that role approvers exist in the company.
func (s *WorkflowService) validateSteps(ctx context.Context, companyID string, steps []domain.WorkflowStep) error {
	if err := domain.ValidateSteps(steps); err != nil {
		return err
	}
	for _, step := range steps {
		if step.ApproverType != domain.ApproverRole {
			continue
		}
		for _, roleID := range step.ApproverIDs {
			if _, err := s.roles.Get(ctx, companyID, roleID); err != nil {
				if errors.Is(err, repo.ErrRoleNotFound) {
					return fmt.Errorf("%w: step %d references unknown role %s", ErrInvalidReference, step.StepNumber, roleID)
				}
				return fmt.Errorf("get company role: %w", err)
			}
		}
	}
	return nil
}
