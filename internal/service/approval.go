package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"weldflow-api/internal/access"
	"weldflow-api/internal/domain"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"
	"weldflow-api/internal/telemetry"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// inboxScanLimit bounds how many in-flight instances are scanned for the pending box.
const inboxScanLimit = 500

// ApprovalService drives documents through approval workflows. State rules
// live on domain.ApprovalInstance; this layer authorizes, resolves workflows
// and persists each transition atomically.
type ApprovalService struct {
	approvals ApprovalStore
	workflows WorkflowStore
	records   RecordStore
	perms     *PermissionChecker
	audit     AuditLogger
	metrics   *telemetry.DomainMetrics
	log       *logger.Logger
	now       func() time.Time
}

func NewApprovalService(approvals ApprovalStore, workflows WorkflowStore, records RecordStore, perms *PermissionChecker, audit AuditLogger, metrics *telemetry.DomainMetrics, log *logger.Logger) *ApprovalService {
	return &ApprovalService{
		approvals: approvals,
		workflows: workflows,
		records:   records,
		perms:     perms,
		audit:     audit,
		metrics:   metrics,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit starts an approval for a record the caller owns. The workflow is
// the explicit one if given, else the company default for the document
// type, else the system default.
func (s *ApprovalService) Submit(ctx context.Context, wctx domain.WorkspaceContext, kind domain.RecordKind, recordID string, req *domain.SubmitApprovalRequest) (*domain.ApprovalInstance, error) {
	if !wctx.IsEnterprise() {
		return nil, ErrEnterpriseOnly
	}
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if !kind.Approvable() {
		return nil, fmt.Errorf("%w: %s", ErrNotApprovable, kind)
	}
	if err := s.perms.Check(ctx, wctx, domain.ModuleApproval, domain.ActionCreate); err != nil {
		return nil, err
	}

	f, err := access.NewFilter(wctx)
	if err != nil {
		return nil, err
	}
	doc, err := s.records.Get(ctx, f, kind, recordID)
	if err != nil {
		return nil, err
	}
	if err := f.CanWrite(doc); err != nil {
		return nil, err
	}

	if _, err := s.approvals.GetActiveByDocument(ctx, doc.ID); err == nil {
		return nil, ErrActiveApprovalExists
	} else if !errors.Is(err, repo.ErrApprovalNotFound) {
		return nil, fmt.Errorf("check active approval: %w", err)
	}

	wf, err := s.resolveWorkflow(ctx, wctx.Company(), kind, req.WorkflowID)
	if err != nil {
		return nil, err
	}

	inst, hist, err := domain.NewApprovalInstance(uuid.NewString(), wf, doc, wctx.UserID, s.now())
	if err != nil {
		return nil, err
	}
	hist.ID = uuid.NewString()
	hist.Comment = req.Comment

	if err := s.approvals.Create(ctx, inst, hist); err != nil {
		if errors.Is(err, repo.ErrActiveApprovalExists) {
			return nil, ErrActiveApprovalExists
		}
		return nil, fmt.Errorf("create approval: %w", err)
	}

	s.metrics.ApprovalTransition(string(domain.ActionSubmit), string(inst.Status))
	s.log.Info(ctx, "approval submitted",
		logger.Module(domain.ModuleApproval),
		logger.Action(string(domain.ActionSubmit)),
		logger.Kind(string(kind)),
		logger.InstanceID(inst.ID),
		logger.WorkflowID(wf.ID),
		zap.String("document_id", doc.ID),
	)
	logAudit(ctx, s.audit, s.log, wctx, string(domain.ActionSubmit), domain.ModuleApproval, inst.ID,
		map[string]interface{}{"document_id": doc.ID, "workflow_id": wf.ID})

	return inst, nil
}

func (s *ApprovalService) resolveWorkflow(ctx context.Context, companyID string, kind domain.RecordKind, workflowID *string) (*domain.ApprovalWorkflow, error) {
	if workflowID == nil || *workflowID == "" {
		wf, err := s.workflows.FindDefault(ctx, companyID, kind)
		if err != nil {
			return nil, err
		}
		return wf, nil
	}

	wf, err := s.workflows.Get(ctx, companyID, *workflowID)
	if err != nil {
		return nil, err
	}
	if !wf.IsActive {
		return nil, ErrWorkflowNotFound
	}
	if wf.DocumentType != kind {
		return nil, fmt.Errorf("%w: workflow is for %s documents", domain.ErrInvalidWorkflow, wf.DocumentType)
	}
	return wf, nil
}

// Approve records the caller's approval on the current step.
func (s *ApprovalService) Approve(ctx context.Context, wctx domain.WorkspaceContext, instanceID string, req *domain.ApprovalActionRequest) (*domain.ApprovalInstance, error) {
	return s.transition(ctx, wctx, instanceID, domain.ActionApprove, func(inst *domain.ApprovalInstance, actor domain.Actor, now time.Time) (*domain.ApprovalHistory, error) {
		return inst.Approve(actor, req.Comment, now)
	})
}

// Reject ends the approval as rejected.
func (s *ApprovalService) Reject(ctx context.Context, wctx domain.WorkspaceContext, instanceID string, req *domain.ApprovalActionRequest) (*domain.ApprovalInstance, error) {
	return s.transition(ctx, wctx, instanceID, domain.ActionReject, func(inst *domain.ApprovalInstance, actor domain.Actor, now time.Time) (*domain.ApprovalHistory, error) {
		return inst.Reject(actor, req.Comment, now)
	})
}

// Return sends the document back to an earlier (or the current) step.
func (s *ApprovalService) Return(ctx context.Context, wctx domain.WorkspaceContext, instanceID string, req *domain.ReturnApprovalRequest) (*domain.ApprovalInstance, error) {
	return s.transition(ctx, wctx, instanceID, domain.ActionReturn, func(inst *domain.ApprovalInstance, actor domain.Actor, now time.Time) (*domain.ApprovalHistory, error) {
		return inst.Return(actor, req.ToStep, req.Comment, now)
	})
}

// Resubmit puts a returned document back in progress. Submitter only.
func (s *ApprovalService) Resubmit(ctx context.Context, wctx domain.WorkspaceContext, instanceID string, req *domain.ApprovalActionRequest) (*domain.ApprovalInstance, error) {
	return s.transition(ctx, wctx, instanceID, domain.ActionResubmit, func(inst *domain.ApprovalInstance, actor domain.Actor, now time.Time) (*domain.ApprovalHistory, error) {
		return inst.Resubmit(actor.UserID, req.Comment, now)
	})
}

// Cancel withdraws the approval. Submitter only.
func (s *ApprovalService) Cancel(ctx context.Context, wctx domain.WorkspaceContext, instanceID string, req *domain.ApprovalActionRequest) (*domain.ApprovalInstance, error) {
	return s.transition(ctx, wctx, instanceID, domain.ActionCancel, func(inst *domain.ApprovalInstance, actor domain.Actor, now time.Time) (*domain.ApprovalHistory, error) {
		return inst.Cancel(actor.UserID, req.Comment, now)
	})
}

// Comment appends a note to the history without changing state.
func (s *ApprovalService) Comment(ctx context.Context, wctx domain.WorkspaceContext, instanceID string, req *domain.ApprovalActionRequest) (*domain.ApprovalInstance, error) {
	return s.transition(ctx, wctx, instanceID, domain.ActionComment, func(inst *domain.ApprovalInstance, actor domain.Actor, now time.Time) (*domain.ApprovalHistory, error) {
		return inst.Comment(actor.UserID, req.Comment, now)
	})
}

type transitionFunc func(inst *domain.ApprovalInstance, actor domain.Actor, now time.Time) (*domain.ApprovalHistory, error)

func (s *ApprovalService) transition(ctx context.Context, wctx domain.WorkspaceContext, instanceID string, action domain.ApprovalAction, fn transitionFunc) (*domain.ApprovalInstance, error) {
	actor, err := s.actor(ctx, wctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	inst, hist, err := s.approvals.Transition(ctx, wctx.Company(), instanceID, func(inst *domain.ApprovalInstance) (*domain.ApprovalHistory, error) {
		return fn(inst, actor, now)
	})
	if err != nil {
		if isApprovalRuleError(err) {
			s.log.Warn(ctx, "approval transition refused",
				logger.Module(domain.ModuleApproval),
				logger.Action(string(action)),
				logger.InstanceID(instanceID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.metrics.ApprovalTransition(string(action), string(inst.Status))
	s.log.Info(ctx, "approval transition applied",
		logger.Module(domain.ModuleApproval),
		logger.Action(string(action)),
		logger.InstanceID(inst.ID),
		zap.String("status", string(inst.Status)),
		zap.Int("current_step", inst.CurrentStep),
		zap.Int("history_step", hist.StepNumber),
	)
	if action != domain.ActionComment {
		logAudit(ctx, s.audit, s.log, wctx, string(action), domain.ModuleApproval, inst.ID,
			map[string]interface{}{"status": string(inst.Status), "current_step": inst.CurrentStep})
	}
	return inst, nil
}

// actor loads the caller's membership so role-type approver slots resolve.
func (s *ApprovalService) actor(ctx context.Context, wctx domain.WorkspaceContext) (domain.Actor, error) {
	emp, err := s.perms.Membership(ctx, wctx)
	if err != nil {
		return domain.Actor{}, err
	}
	return domain.Actor{UserID: wctx.UserID, CompanyRoleID: emp.CompanyRoleID}, nil
}

// List returns the caller's inbox: instances awaiting their action
// (BoxPending) or instances they submitted (BoxSubmitted).
func (s *ApprovalService) List(ctx context.Context, wctx domain.WorkspaceContext, params domain.ListApprovalsParams) ([]domain.ApprovalInstance, error) {
	actor, err := s.actor(ctx, wctx)
	if err != nil {
		return nil, err
	}
	limit := clampLimit(params.Limit)

	if params.Box == domain.BoxSubmitted {
		out, err := s.approvals.ListBySubmitter(ctx, wctx.Company(), wctx.UserID, params.Status, limit)
		if err != nil {
			return nil, fmt.Errorf("list submitted approvals: %w", err)
		}
		return out, nil
	}

	inFlight, err := s.approvals.ListActiveByCompany(ctx, wctx.Company(), inboxScanLimit)
	if err != nil {
		return nil, fmt.Errorf("list pending approvals: %w", err)
	}

	out := make([]domain.ApprovalInstance, 0, limit)
	for _, inst := range inFlight {
		if params.Status != nil && inst.Status != *params.Status {
			continue
		}
		if !inst.AwaitsAction(actor) {
			continue
		}
		out = append(out, inst)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Get returns an instance with its history and the current step deadline.
func (s *ApprovalService) Get(ctx context.Context, wctx domain.WorkspaceContext, instanceID string) (*domain.ApprovalDetail, error) {
	if _, err := s.actor(ctx, wctx); err != nil {
		return nil, err
	}

	inst, err := s.approvals.Get(ctx, wctx.Company(), instanceID)
	if err != nil {
		return nil, err
	}
	history, err := s.approvals.History(ctx, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("get approval history: %w", err)
	}

	detail := &domain.ApprovalDetail{Instance: inst, History: history}
	if deadline, ok := inst.Deadline(); ok && !inst.Status.IsTerminal() {
		detail.Deadline = &deadline
	}
	return detail, nil
}

// History returns the append-only history of an instance.
func (s *ApprovalService) History(ctx context.Context, wctx domain.WorkspaceContext, instanceID string) ([]domain.ApprovalHistory, error) {
	detail, err := s.Get(ctx, wctx, instanceID)
	if err != nil {
		return nil, err
	}
	return detail.History, nil
}

// OverdueApproval is an in-flight instance past its current step deadline.
type OverdueApproval struct {
	InstanceID   string            `json:"instanceId"`
	CompanyID    string            `json:"companyId"`
	DocumentType domain.RecordKind `json:"documentType"`
	DocumentID   string            `json:"documentId"`
	CurrentStep  int               `json:"currentStep"`
	StepName     string            `json:"stepName"`
	Deadline     time.Time         `json:"deadline"`
	OverdueBy    time.Duration     `json:"overdueBy"`
}

// ListOverdue reports in-flight instances past their step deadline, for
// one company or all of them. It is an operator report, not a request path.
func (s *ApprovalService) ListOverdue(ctx context.Context, companyID *string) ([]OverdueApproval, error) {
	instances, err := s.approvals.ListInFlight(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list in-flight approvals: %w", err)
	}

	now := s.now()
	out := []OverdueApproval{}
	for _, inst := range instances {
		if !inst.IsOverdue(now) {
			continue
		}
		deadline, _ := inst.Deadline()
		step, _ := inst.Step(inst.CurrentStep)
		out = append(out, OverdueApproval{
			InstanceID:   inst.ID,
			CompanyID:    inst.CompanyID,
			DocumentType: inst.DocumentType,
			DocumentID:   inst.DocumentID,
			CurrentStep:  inst.CurrentStep,
			StepName:     step.StepName,
			Deadline:     deadline,
			OverdueBy:    now.Sub(deadline),
		})
	}
	return out, nil
}

func isApprovalRuleError(err error) bool {
	for _, target := range []error{
		domain.ErrApprovalFinished, domain.ErrNotApprover, domain.ErrNotYourTurn,
		domain.ErrAlreadyActed, domain.ErrNotSubmitter, domain.ErrInvalidReturnStep,
		domain.ErrInvalidApprovalTransition,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
