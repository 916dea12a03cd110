package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"weldflow-api/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrApprovalNotFound     = errors.New("approval instance not found")
	ErrActiveApprovalExists = errors.New("document already has an active approval")
)

const uniqueActiveApprovalConstraint = "unique_active_approval_per_document"

const instanceColumns = `
	id, workflow_id, document_type, document_id, company_id, status, current_step,
	workflow_snapshot, step_approvals, step_started_at, submitter_id, final_approver_id,
	submitted_at, completed_at, updated_at`

// ApprovalRepository persists instances and their append-only history.
type ApprovalRepository struct {
	pool *pgxpool.Pool
}

func NewApprovalRepository(pool *pgxpool.Pool) *ApprovalRepository {
	return &ApprovalRepository{pool: pool}
}

// TransitionFunc mutates a locked instance and returns the history line to append.
type TransitionFunc func(inst *domain.ApprovalInstance) (*domain.ApprovalHistory, error)

func scanInstance(row rowScanner) (*domain.ApprovalInstance, error) {
	var inst domain.ApprovalInstance
	var snapshot, approvals []byte
	err := row.Scan(
		&inst.ID, &inst.WorkflowID, &inst.DocumentType, &inst.DocumentID, &inst.CompanyID,
		&inst.Status, &inst.CurrentStep, &snapshot, &approvals, &inst.StepStartedAt,
		&inst.SubmitterID, &inst.FinalApproverID, &inst.SubmittedAt, &inst.CompletedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(snapshot, &inst.Steps); err != nil {
		return nil, err
	}
	inst.StepApprovals = []domain.StepApproval{}
	if err := unmarshalJSONB(approvals, &inst.StepApprovals); err != nil {
		return nil, err
	}
	return &inst, nil
}

// Create inserts a new instance with its submit history line and moves the
// document to pending_approval, all in one transaction.
func (r *ApprovalRepository) Create(ctx context.Context, inst *domain.ApprovalInstance, hist *domain.ApprovalHistory) error {
	snapshot, err := marshalJSONB(inst.Steps)
	if err != nil {
		return err
	}
	approvals, err := marshalJSONB(inst.StepApprovals)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `
			INSERT INTO approval_instances (
				id, workflow_id, document_type, document_id, company_id, status, current_step,
				workflow_snapshot, step_approvals, step_started_at, submitter_id, submitted_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		`
		_, err := tx.Exec(ctx, query,
			inst.ID, inst.WorkflowID, inst.DocumentType, inst.DocumentID, inst.CompanyID, inst.Status,
			inst.CurrentStep, snapshot, approvals, inst.StepStartedAt, inst.SubmitterID, inst.SubmittedAt, inst.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err, uniqueActiveApprovalConstraint) {
				return ErrActiveApprovalExists
			}
			return fmt.Errorf("insert approval instance: %w", err)
		}

		if err := insertHistoryTx(ctx, tx, hist); err != nil {
			return err
		}

		status, _ := domain.RecordStatusFor(inst.Status)
		return setStatusTx(ctx, tx, inst.DocumentID, status)
	})
}

// Get retrieves an instance scoped to the company.
func (r *ApprovalRepository) Get(ctx context.Context, companyID, instanceID string) (*domain.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM approval_instances WHERE id = $1 AND company_id = $2`

	inst, err := scanInstance(r.pool.QueryRow(ctx, query, instanceID, companyID))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("get approval instance: %w", err)
	}
	return inst, nil
}

// GetActiveByDocument returns the pending/in_progress/returned instance of a document.
func (r *ApprovalRepository) GetActiveByDocument(ctx context.Context, documentID string) (*domain.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE document_id = $1 AND status IN ('pending', 'in_progress', 'returned')`

	inst, err := scanInstance(r.pool.QueryRow(ctx, query, documentID))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrApprovalNotFound
		}
		return nil, fmt.Errorf("get active approval: %w", err)
	}
	return inst, nil
}

// Transition locks the instance row, applies fn, then persists the new state,
// appends the history line and syncs the document status in the same transaction.
// When fn fails nothing is written.
func (r *ApprovalRepository) Transition(ctx context.Context, companyID, instanceID string, fn TransitionFunc) (*domain.ApprovalInstance, *domain.ApprovalHistory, error) {
	var inst *domain.ApprovalInstance
	var hist *domain.ApprovalHistory

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + instanceColumns + `
			FROM approval_instances
			WHERE id = $1 AND company_id = $2
			FOR UPDATE`

		var err error
		inst, err = scanInstance(tx.QueryRow(ctx, query, instanceID, companyID))
		if err != nil {
			if isNoRows(err) {
				return ErrApprovalNotFound
			}
			return fmt.Errorf("lock approval instance: %w", err)
		}

		before := inst.Status
		hist, err = fn(inst)
		if err != nil {
			return err
		}

		if err := updateInstanceTx(ctx, tx, inst); err != nil {
			return err
		}
		if err := insertHistoryTx(ctx, tx, hist); err != nil {
			return err
		}

		if inst.Status != before {
			if status, ok := domain.RecordStatusFor(inst.Status); ok {
				return setStatusTx(ctx, tx, inst.DocumentID, status)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return inst, hist, nil
}

// ListActiveByCompany returns pending and in_progress instances of a company,
// oldest first. The caller filters by approver.
func (r *ApprovalRepository) ListActiveByCompany(ctx context.Context, companyID string, limit int) ([]domain.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE company_id = $1 AND status IN ('pending', 'in_progress')
		ORDER BY submitted_at ASC
		LIMIT $2`

	return r.queryInstances(ctx, query, companyID, limit)
}

// ListBySubmitter returns the instances a user submitted in a company, newest first.
func (r *ApprovalRepository) ListBySubmitter(ctx context.Context, companyID, submitterID string, status *domain.ApprovalStatus, limit int) ([]domain.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE company_id = $1 AND submitter_id = $2`
	args := []any{companyID, submitterID}
	argIdx := 3

	if status != nil {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, *status)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY submitted_at DESC LIMIT $%d`, argIdx)
	args = append(args, limit)

	return r.queryInstances(ctx, query, args...)
}

// ListInFlight returns every pending or in_progress instance, optionally for one company.
// The overdue report evaluates deadlines in memory against the snapshot.
func (r *ApprovalRepository) ListInFlight(ctx context.Context, companyID *string) ([]domain.ApprovalInstance, error) {
	query := `SELECT ` + instanceColumns + `
		FROM approval_instances
		WHERE status IN ('pending', 'in_progress') AND ($1::TEXT IS NULL OR company_id = $1)
		ORDER BY step_started_at ASC`

	return r.queryInstances(ctx, query, companyID)
}

// History returns the history of an instance in insertion order.
func (r *ApprovalRepository) History(ctx context.Context, instanceID string) ([]domain.ApprovalHistory, error) {
	query := `
		SELECT id, instance_id, step_number, action, operator_id, result, comment, created_at
		FROM approval_history
		WHERE instance_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, instanceID)
	if err != nil {
		return nil, fmt.Errorf("query approval history: %w", err)
	}
	defer rows.Close()

	history := []domain.ApprovalHistory{}
	for rows.Next() {
		var h domain.ApprovalHistory
		if err := rows.Scan(&h.ID, &h.InstanceID, &h.StepNumber, &h.Action, &h.OperatorID, &h.Result, &h.Comment, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan approval history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (r *ApprovalRepository) queryInstances(ctx context.Context, query string, args ...any) ([]domain.ApprovalInstance, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query approval instances: %w", err)
	}
	defer rows.Close()

	instances := []domain.ApprovalInstance{}
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan approval instance: %w", err)
		}
		instances = append(instances, *inst)
	}
	return instances, rows.Err()
}

func updateInstanceTx(ctx context.Context, tx pgx.Tx, inst *domain.ApprovalInstance) error {
	approvals, err := marshalJSONB(inst.StepApprovals)
	if err != nil {
		return err
	}

	query := `
		UPDATE approval_instances
		SET status = $2, current_step = $3, step_approvals = $4, step_started_at = $5,
		    final_approver_id = $6, completed_at = $7, updated_at = $8
		WHERE id = $1
	`
	_, err = tx.Exec(ctx, query,
		inst.ID, inst.Status, inst.CurrentStep, approvals, inst.StepStartedAt,
		inst.FinalApproverID, inst.CompletedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update approval instance: %w", err)
	}
	return nil
}

func insertHistoryTx(ctx context.Context, tx pgx.Tx, h *domain.ApprovalHistory) error {
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO approval_history (id, instance_id, step_number, action, operator_id, result, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.Exec(ctx, query, h.ID, h.InstanceID, h.StepNumber, h.Action, h.OperatorID, h.Result, h.Comment, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert approval history: %w", err)
	}
	return nil
}
