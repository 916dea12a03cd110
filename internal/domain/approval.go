package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// =====================================================
// Approval Errors
// =====================================================

var (
	// ErrApprovalFinished is returned for any transition on a terminal instance.
	ErrApprovalFinished = errors.New("approval already finished")

	// ErrNotApprover indicates the actor is not an approver of the current step.
	ErrNotApprover = errors.New("user is not an approver of the current step")

	// ErrNotYourTurn indicates a sequential step expecting a different approver first.
	ErrNotYourTurn = errors.New("not your turn in sequential approval")

	// ErrAlreadyActed indicates the actor already approved the current step.
	ErrAlreadyActed = errors.New("approver already acted on this step")

	// ErrNotSubmitter indicates an action reserved to the submitter.
	ErrNotSubmitter = errors.New("only the submitter can perform this action")

	// ErrInvalidReturnStep indicates a return target outside 1..current_step.
	ErrInvalidReturnStep = errors.New("invalid return step")

	// ErrInvalidApprovalTransition indicates an action not allowed in the current status.
	ErrInvalidApprovalTransition = errors.New("invalid approval transition")

	// ErrInvalidWorkflow indicates a workflow definition that violates step rules.
	ErrInvalidWorkflow = errors.New("invalid approval workflow")
)

// =====================================================
// Enums
// =====================================================

// ApprovalStatus is the status of an approval instance.
type ApprovalStatus string

const (
	ApprovalDraft      ApprovalStatus = "draft"
	ApprovalPending    ApprovalStatus = "pending"
	ApprovalInProgress ApprovalStatus = "in_progress"
	ApprovalApproved   ApprovalStatus = "approved"
	ApprovalRejected   ApprovalStatus = "rejected"
	ApprovalCancelled  ApprovalStatus = "cancelled"
	ApprovalReturned   ApprovalStatus = "returned"
)

// IsValid checks if the status is one of the defined constants
func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalDraft, ApprovalPending, ApprovalInProgress, ApprovalApproved,
		ApprovalRejected, ApprovalCancelled, ApprovalReturned:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalCancelled
}

// IsActive reports whether the instance still holds the document.
func (s ApprovalStatus) IsActive() bool {
	return s == ApprovalPending || s == ApprovalInProgress || s == ApprovalReturned
}

// ApproverType says whether approver_ids are user ids or company role ids.
type ApproverType string

const (
	ApproverUser ApproverType = "user"
	ApproverRole ApproverType = "role"
)

// IsValid checks if the approver type is one of the defined constants
func (t ApproverType) IsValid() bool {
	return t == ApproverUser || t == ApproverRole
}

// ApprovalMode controls how many approvers a step needs.
type ApprovalMode string

const (
	ModeAny        ApprovalMode = "any"
	ModeAll        ApprovalMode = "all"
	ModeSequential ApprovalMode = "sequential"
)

// IsValid checks if the mode is one of the defined constants
func (m ApprovalMode) IsValid() bool {
	switch m {
	case ModeAny, ModeAll, ModeSequential:
		return true
	}
	return false
}

// ApprovalAction is the verb recorded in history.
type ApprovalAction string

const (
	ActionSubmit   ApprovalAction = "submit"
	ActionApprove  ApprovalAction = "approve"
	ActionReject   ApprovalAction = "reject"
	ActionReturn   ApprovalAction = "return"
	ActionResubmit ApprovalAction = "resubmit"
	ActionCancel   ApprovalAction = "cancel"
	ActionComment  ApprovalAction = "comment"
)

// =====================================================
// Workflow definition
// =====================================================

// WorkflowStep is one stage of a workflow.
type WorkflowStep struct {
	StepNumber     int          `json:"stepNumber" validate:"required,gte=1"`
	StepName       string       `json:"stepName" validate:"required,min=1,max=100"`
	ApproverType   ApproverType `json:"approverType" validate:"required,oneof=user role"`
	ApproverIDs    []string     `json:"approverIds"`
	ApprovalMode   ApprovalMode `json:"approvalMode" validate:"required,oneof=any all sequential"`
	TimeLimitHours int          `json:"timeLimitHours" validate:"gte=0"`
	IsRequired     bool         `json:"isRequired"`
	CanSkip        bool         `json:"canSkip"`
}

// skipped reports whether the step is passed over when advancing.
func (s WorkflowStep) skipped() bool {
	return !s.IsRequired && len(s.ApproverIDs) == 0
}

// ApprovalWorkflow is a workflow definition. CompanyID nil means system default.
type ApprovalWorkflow struct {
	ID           string         `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	DocumentType RecordKind     `json:"documentType" db:"document_type"`
	CompanyID    *string        `json:"companyId,omitempty" db:"company_id"`
	Steps        []WorkflowStep `json:"steps" db:"steps"`
	IsDefault    bool           `json:"isDefault" db:"is_default"`
	IsActive     bool           `json:"isActive" db:"is_active"`
	CreatedBy    *string        `json:"createdBy,omitempty" db:"created_by"`
	CreatedAt    time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time      `json:"updatedAt" db:"updated_at"`
}

// IsSystem reports whether the workflow is a global default.
func (w *ApprovalWorkflow) IsSystem() bool {
	return w.CompanyID == nil
}

// ValidateSteps checks numbering, enums and approver presence.
// Steps must be numbered 1..n without gaps once sorted.
func ValidateSteps(steps []WorkflowStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("%w: at least one step is required", ErrInvalidWorkflow)
	}

	sorted := make([]WorkflowStep, len(steps))
	copy(sorted, steps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StepNumber < sorted[j].StepNumber })

	actionable := 0
	for i, s := range sorted {
		if s.StepNumber != i+1 {
			return fmt.Errorf("%w: step numbers must be contiguous from 1 (got %d at position %d)", ErrInvalidWorkflow, s.StepNumber, i+1)
		}
		if !s.ApproverType.IsValid() {
			return fmt.Errorf("%w: step %d has invalid approver type %q", ErrInvalidWorkflow, s.StepNumber, s.ApproverType)
		}
		if !s.ApprovalMode.IsValid() {
			return fmt.Errorf("%w: step %d has invalid approval mode %q", ErrInvalidWorkflow, s.StepNumber, s.ApprovalMode)
		}
		if s.IsRequired && len(s.ApproverIDs) == 0 {
			return fmt.Errorf("%w: required step %d has no approvers", ErrInvalidWorkflow, s.StepNumber)
		}
		if s.TimeLimitHours < 0 {
			return fmt.Errorf("%w: step %d has negative time limit", ErrInvalidWorkflow, s.StepNumber)
		}
		seen := make(map[string]bool, len(s.ApproverIDs))
		for _, id := range s.ApproverIDs {
			if id == "" || seen[id] {
				return fmt.Errorf("%w: step %d has empty or duplicated approver id", ErrInvalidWorkflow, s.StepNumber)
			}
			seen[id] = true
		}
		if !s.skipped() {
			actionable++
		}
	}

	if actionable == 0 {
		return fmt.Errorf("%w: workflow has no step with approvers", ErrInvalidWorkflow)
	}
	return nil
}

// SortSteps orders steps by step number in place.
func SortSteps(steps []WorkflowStep) {
	sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
}

// CreateWorkflowRequest DTO para criação de fluxo de aprovação.
type CreateWorkflowRequest struct {
	Name         string         `json:"name" validate:"required,min=1,max=255"`
	DocumentType RecordKind     `json:"documentType" validate:"required"`
	Steps        []WorkflowStep `json:"steps" validate:"required,min=1,dive"`
	IsDefault    bool           `json:"isDefault"`
}

// UpdateWorkflowRequest replaces a workflow definition (PUT).
type UpdateWorkflowRequest struct {
	Name      string         `json:"name" validate:"required,min=1,max=255"`
	Steps     []WorkflowStep `json:"steps" validate:"required,min=1,dive"`
	IsDefault bool           `json:"isDefault"`
	IsActive  bool           `json:"isActive"`
}

// =====================================================
// Instance
// =====================================================

// StepApproval is one approval given at a step. SlotID is the approver_ids
// entry the approval fills (a user id or a company role id).
type StepApproval struct {
	StepNumber int       `json:"stepNumber"`
	ApproverID string    `json:"approverId"`
	SlotID     string    `json:"slotId"`
	Comment    *string   `json:"comment,omitempty"`
	ApprovedAt time.Time `json:"approvedAt"`
}

// Actor is the user acting on an instance, with the company role they hold.
type Actor struct {
	UserID        string
	CompanyRoleID *string
}

// ApprovalInstance tracks one document through a workflow. Steps is a
// snapshot of the workflow steps taken at submission.
type ApprovalInstance struct {
	ID              string         `json:"id" db:"id"`
	WorkflowID      string         `json:"workflowId" db:"workflow_id"`
	DocumentType    RecordKind     `json:"documentType" db:"document_type"`
	DocumentID      string         `json:"documentId" db:"document_id"`
	CompanyID       string         `json:"companyId" db:"company_id"`
	Status          ApprovalStatus `json:"status" db:"status"`
	CurrentStep     int            `json:"currentStep" db:"current_step"`
	Steps           []WorkflowStep `json:"steps" db:"workflow_snapshot"`
	StepApprovals   []StepApproval `json:"stepApprovals" db:"step_approvals"`
	StepStartedAt   time.Time      `json:"stepStartedAt" db:"step_started_at"`
	SubmitterID     string         `json:"submitterId" db:"submitter_id"`
	FinalApproverID *string        `json:"finalApproverId,omitempty" db:"final_approver_id"`
	SubmittedAt     time.Time      `json:"submittedAt" db:"submitted_at"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty" db:"completed_at"`
	UpdatedAt       time.Time      `json:"updatedAt" db:"updated_at"`
}

// ApprovalHistory is an append-only log line. Result is the instance status
// after the action.
type ApprovalHistory struct {
	ID         string         `json:"id" db:"id"`
	InstanceID string         `json:"instanceId" db:"instance_id"`
	StepNumber int            `json:"stepNumber" db:"step_number"`
	Action     ApprovalAction `json:"action" db:"action"`
	OperatorID string         `json:"operatorId" db:"operator_id"`
	Result     ApprovalStatus `json:"result" db:"result"`
	Comment    *string        `json:"comment,omitempty" db:"comment"`
	CreatedAt  time.Time      `json:"createdAt" db:"created_at"`
}

// NewApprovalInstance starts an instance for doc at the first actionable step.
func NewApprovalInstance(id string, wf *ApprovalWorkflow, doc *Record, submitterID string, now time.Time) (*ApprovalInstance, *ApprovalHistory, error) {
	if err := ValidateSteps(wf.Steps); err != nil {
		return nil, nil, err
	}

	steps := make([]WorkflowStep, len(wf.Steps))
	copy(steps, wf.Steps)
	SortSteps(steps)

	inst := &ApprovalInstance{
		ID:            id,
		WorkflowID:    wf.ID,
		DocumentType:  doc.Kind,
		DocumentID:    doc.ID,
		CompanyID:     doc.Company(),
		Status:        ApprovalPending,
		Steps:         steps,
		StepApprovals: []StepApproval{},
		SubmitterID:   submitterID,
		SubmittedAt:   now,
		StepStartedAt: now,
		UpdatedAt:     now,
	}

	first, ok := inst.nextActionableStep(0)
	if !ok {
		return nil, nil, fmt.Errorf("%w: workflow has no step with approvers", ErrInvalidWorkflow)
	}
	inst.CurrentStep = first

	return inst, inst.history(ActionSubmit, submitterID, nil, now), nil
}

// Step returns the definition of step n.
func (i *ApprovalInstance) Step(n int) (WorkflowStep, bool) {
	for _, s := range i.Steps {
		if s.StepNumber == n {
			return s, true
		}
	}
	return WorkflowStep{}, false
}

// CurrentApprovals returns the approvals given at the current step.
func (i *ApprovalInstance) CurrentApprovals() []StepApproval {
	var out []StepApproval
	for _, a := range i.StepApprovals {
		if a.StepNumber == i.CurrentStep {
			out = append(out, a)
		}
	}
	return out
}

// IsApprover reports whether actor may act on the current step.
func (i *ApprovalInstance) IsApprover(actor Actor) bool {
	step, ok := i.Step(i.CurrentStep)
	if !ok {
		return false
	}
	return len(slotsFor(step, actor)) > 0
}

// AwaitsAction reports whether actor can approve the current step right now
// (an approver who has not acted yet and, in sequential mode, is next).
func (i *ApprovalInstance) AwaitsAction(actor Actor) bool {
	if i.Status != ApprovalPending && i.Status != ApprovalInProgress {
		return false
	}
	step, ok := i.Step(i.CurrentStep)
	if !ok {
		return false
	}
	_, err := i.pickSlot(step, actor)
	return err == nil
}

// Deadline returns when the current step times out, if it has a limit.
func (i *ApprovalInstance) Deadline() (time.Time, bool) {
	step, ok := i.Step(i.CurrentStep)
	if !ok || step.TimeLimitHours <= 0 {
		return time.Time{}, false
	}
	return i.StepStartedAt.Add(time.Duration(step.TimeLimitHours) * time.Hour), true
}

// IsOverdue reports whether an active instance is past the current step deadline.
func (i *ApprovalInstance) IsOverdue(now time.Time) bool {
	if i.Status != ApprovalPending && i.Status != ApprovalInProgress {
		return false
	}
	deadline, ok := i.Deadline()
	return ok && now.After(deadline)
}

// Approve records actor's approval and advances when the step is complete.
func (i *ApprovalInstance) Approve(actor Actor, comment *string, now time.Time) (*ApprovalHistory, error) {
	if err := i.requireActionable(); err != nil {
		return nil, err
	}

	step, ok := i.Step(i.CurrentStep)
	if !ok {
		return nil, fmt.Errorf("%w: current step %d missing from snapshot", ErrInvalidWorkflow, i.CurrentStep)
	}

	slot, err := i.pickSlot(step, actor)
	if err != nil {
		return nil, err
	}

	stepNumber := i.CurrentStep
	i.StepApprovals = append(i.StepApprovals, StepApproval{
		StepNumber: stepNumber,
		ApproverID: actor.UserID,
		SlotID:     slot,
		Comment:    comment,
		ApprovedAt: now,
	})
	i.UpdatedAt = now

	if !i.stepComplete(step) {
		i.Status = ApprovalInProgress
		return i.historyAt(stepNumber, ActionApprove, actor.UserID, comment, now), nil
	}

	next, ok := i.nextActionableStep(stepNumber)
	if !ok {
		i.Status = ApprovalApproved
		i.FinalApproverID = &actor.UserID
		i.CompletedAt = &now
		return i.historyAt(stepNumber, ActionApprove, actor.UserID, comment, now), nil
	}

	i.Status = ApprovalInProgress
	i.CurrentStep = next
	i.StepStartedAt = now
	return i.historyAt(stepNumber, ActionApprove, actor.UserID, comment, now), nil
}

// Reject ends the instance as rejected. Any approver of the current step may
// reject, including one whose sequential turn has not come yet.
func (i *ApprovalInstance) Reject(actor Actor, comment *string, now time.Time) (*ApprovalHistory, error) {
	if err := i.requireActionable(); err != nil {
		return nil, err
	}
	if !i.IsApprover(actor) {
		return nil, ErrNotApprover
	}

	i.Status = ApprovalRejected
	i.CompletedAt = &now
	i.UpdatedAt = now
	return i.history(ActionReject, actor.UserID, comment, now), nil
}

// Return sends the instance back to step toStep (1 <= toStep <= current).
// Like Reject it ignores sequential turn order.
func (i *ApprovalInstance) Return(actor Actor, toStep int, comment *string, now time.Time) (*ApprovalHistory, error) {
	if err := i.requireActionable(); err != nil {
		return nil, err
	}
	if !i.IsApprover(actor) {
		return nil, ErrNotApprover
	}
	if toStep < 1 || toStep > i.CurrentStep {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidReturnStep, i.CurrentStep)
	}

	fromStep := i.CurrentStep

	kept := i.StepApprovals[:0]
	for _, a := range i.StepApprovals {
		if a.StepNumber < toStep {
			kept = append(kept, a)
		}
	}
	i.StepApprovals = kept

	i.Status = ApprovalReturned
	i.CurrentStep = toStep
	i.StepStartedAt = now
	i.UpdatedAt = now
	return i.historyAt(fromStep, ActionReturn, actor.UserID, comment, now), nil
}

// Resubmit puts a returned instance back in progress at its current step.
func (i *ApprovalInstance) Resubmit(userID string, comment *string, now time.Time) (*ApprovalHistory, error) {
	if i.Status.IsTerminal() {
		return nil, ErrApprovalFinished
	}
	if userID != i.SubmitterID {
		return nil, ErrNotSubmitter
	}
	if i.Status != ApprovalReturned {
		return nil, fmt.Errorf("%w: resubmit requires status returned, got %s", ErrInvalidApprovalTransition, i.Status)
	}

	i.Status = ApprovalInProgress
	i.StepStartedAt = now
	i.UpdatedAt = now
	return i.history(ActionResubmit, userID, comment, now), nil
}

// Cancel withdraws the instance. Only the submitter may cancel.
func (i *ApprovalInstance) Cancel(userID string, comment *string, now time.Time) (*ApprovalHistory, error) {
	if i.Status.IsTerminal() {
		return nil, ErrApprovalFinished
	}
	if userID != i.SubmitterID {
		return nil, ErrNotSubmitter
	}

	i.Status = ApprovalCancelled
	i.CompletedAt = &now
	i.UpdatedAt = now
	return i.history(ActionCancel, userID, comment, now), nil
}

// Comment appends a note without changing state.
func (i *ApprovalInstance) Comment(userID string, comment *string, now time.Time) (*ApprovalHistory, error) {
	if comment == nil || *comment == "" {
		return nil, fmt.Errorf("%w: comment text is required", ErrInvalidApprovalTransition)
	}
	return i.history(ActionComment, userID, comment, now), nil
}

// RecordStatusFor maps an instance status to the document status it implies.
func RecordStatusFor(s ApprovalStatus) (RecordStatus, bool) {
	switch s {
	case ApprovalPending, ApprovalInProgress:
		return RecordPendingApproval, true
	case ApprovalApproved:
		return RecordApproved, true
	case ApprovalRejected:
		return RecordRejected, true
	case ApprovalReturned, ApprovalCancelled:
		return RecordDraft, true
	}
	return "", false
}

// =====================================================
// internals
// =====================================================

func (i *ApprovalInstance) requireActionable() error {
	if i.Status.IsTerminal() {
		return ErrApprovalFinished
	}
	if i.Status != ApprovalPending && i.Status != ApprovalInProgress {
		return fmt.Errorf("%w: instance is %s", ErrInvalidApprovalTransition, i.Status)
	}
	return nil
}

// nextActionableStep returns the first non-skipped step after `after`.
func (i *ApprovalInstance) nextActionableStep(after int) (int, bool) {
	for _, s := range i.Steps {
		if s.StepNumber <= after {
			continue
		}
		if s.skipped() {
			continue
		}
		return s.StepNumber, true
	}
	return 0, false
}

// slotsFor returns the approver_ids entries actor can fill.
func slotsFor(step WorkflowStep, actor Actor) []string {
	var slots []string
	for _, id := range step.ApproverIDs {
		switch step.ApproverType {
		case ApproverUser:
			if id == actor.UserID {
				slots = append(slots, id)
			}
		case ApproverRole:
			if actor.CompanyRoleID != nil && *actor.CompanyRoleID == id {
				slots = append(slots, id)
			}
		}
	}
	return slots
}

// pickSlot chooses the slot the actor's approval fills, enforcing mode rules.
func (i *ApprovalInstance) pickSlot(step WorkflowStep, actor Actor) (string, error) {
	slots := slotsFor(step, actor)
	if len(slots) == 0 {
		return "", ErrNotApprover
	}

	given := i.CurrentApprovals()
	for _, a := range given {
		if a.ApproverID == actor.UserID {
			return "", ErrAlreadyActed
		}
	}

	filled := make(map[string]bool, len(given))
	for _, a := range given {
		filled[a.SlotID] = true
	}

	if step.ApprovalMode == ModeSequential {
		if len(given) >= len(step.ApproverIDs) {
			return "", ErrAlreadyActed
		}
		expected := step.ApproverIDs[len(given)]
		for _, s := range slots {
			if s == expected {
				return s, nil
			}
		}
		return "", ErrNotYourTurn
	}

	for _, s := range slots {
		if !filled[s] {
			return s, nil
		}
	}
	return "", ErrAlreadyActed
}

func (i *ApprovalInstance) stepComplete(step WorkflowStep) bool {
	given := i.CurrentApprovals()
	switch step.ApprovalMode {
	case ModeAny:
		return len(given) >= 1
	case ModeAll, ModeSequential:
		filled := make(map[string]bool, len(given))
		for _, a := range given {
			filled[a.SlotID] = true
		}
		for _, id := range step.ApproverIDs {
			if !filled[id] {
				return false
			}
		}
		return true
	}
	return false
}

func (i *ApprovalInstance) history(action ApprovalAction, operatorID string, comment *string, now time.Time) *ApprovalHistory {
	return i.historyAt(i.CurrentStep, action, operatorID, comment, now)
}

func (i *ApprovalInstance) historyAt(step int, action ApprovalAction, operatorID string, comment *string, now time.Time) *ApprovalHistory {
	return &ApprovalHistory{
		InstanceID: i.ID,
		StepNumber: step,
		Action:     action,
		OperatorID: operatorID,
		Result:     i.Status,
		Comment:    comment,
		CreatedAt:  now,
	}
}

// =====================================================
// DTOs
// =====================================================

// SubmitApprovalRequest DTO para submissão de documento à aprovação.
type SubmitApprovalRequest struct {
	WorkflowID *string `json:"workflowId,omitempty" validate:"omitempty,max=64"`
	Comment    *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

// ApprovalActionRequest carries the optional comment of approve/reject/resubmit/cancel/comment.
type ApprovalActionRequest struct {
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

// ReturnApprovalRequest names the step the document is sent back to.
type ReturnApprovalRequest struct {
	ToStep  int     `json:"toStep" validate:"required,gte=1"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

// ApprovalBox selects the inbox view.
type ApprovalBox string

const (
	BoxPending   ApprovalBox = "pending"
	BoxSubmitted ApprovalBox = "submitted"
)

// IsValid checks if the box is one of the defined constants
func (b ApprovalBox) IsValid() bool {
	return b == BoxPending || b == BoxSubmitted
}

// ListApprovalsParams filters the approval list.
type ListApprovalsParams struct {
	Box    ApprovalBox
	Status *ApprovalStatus
	Limit  int
}

// ApprovalDetail is an instance with its history.
type ApprovalDetail struct {
	Instance *ApprovalInstance `json:"instance"`
	History  []ApprovalHistory `json:"history"`
	Deadline *time.Time        `json:"deadline,omitempty"`
}
