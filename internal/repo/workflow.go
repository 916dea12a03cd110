package repo

import (
	"context"
	"errors"
	"fmt"

	"weldflow-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrWorkflowNotFound        = errors.New("approval workflow not found")
	ErrDefaultWorkflowConflict = errors.New("another default workflow exists for this document type")
)

const uniqueDefaultWorkflowConstraint = "unique_default_workflow_per_company"

const workflowColumns = `
	id, name, document_type, company_id, steps, is_default, is_active, created_by, created_at, updated_at`

type WorkflowRepository struct {
	pool *pgxpool.Pool
}

func NewWorkflowRepository(pool *pgxpool.Pool) *WorkflowRepository {
	return &WorkflowRepository{pool: pool}
}

func scanWorkflow(row rowScanner) (*domain.ApprovalWorkflow, error) {
	var wf domain.ApprovalWorkflow
	var steps []byte
	err := row.Scan(
		&wf.ID, &wf.Name, &wf.DocumentType, &wf.CompanyID, &steps,
		&wf.IsDefault, &wf.IsActive, &wf.CreatedBy, &wf.CreatedAt, &wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSONB(steps, &wf.Steps); err != nil {
		return nil, err
	}
	domain.SortSteps(wf.Steps)
	return &wf, nil
}

// Get returns a workflow visible to the company: its own or a system default.
func (r *WorkflowRepository) Get(ctx context.Context, companyID, workflowID string) (*domain.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE id = $1 AND (company_id = $2 OR company_id IS NULL)`

	wf, err := scanWorkflow(r.pool.QueryRow(ctx, query, workflowID, companyID))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("get workflow: %w", err)
	}
	return wf, nil
}

// FindDefault resolves the active default workflow for a document type:
// the company default first, then the system default.
func (r *WorkflowRepository) FindDefault(ctx context.Context, companyID string, docType domain.RecordKind) (*domain.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE document_type = $2 AND is_default AND is_active
		  AND (company_id = $1 OR company_id IS NULL)
		ORDER BY company_id NULLS LAST
		LIMIT 1`

	wf, err := scanWorkflow(r.pool.QueryRow(ctx, query, companyID, docType))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("find default workflow: %w", err)
	}
	return wf, nil
}

// List returns the company workflows plus active system defaults.
func (r *WorkflowRepository) List(ctx context.Context, companyID string, docType *domain.RecordKind) ([]domain.ApprovalWorkflow, error) {
	query := `SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE (company_id = $1 OR (company_id IS NULL AND is_active))`
	args := []any{companyID}

	if docType != nil {
		query += ` AND document_type = $2`
		args = append(args, *docType)
	}
	query += ` ORDER BY document_type, company_id NULLS LAST, created_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	workflows := []domain.ApprovalWorkflow{}
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		workflows = append(workflows, *wf)
	}
	return workflows, rows.Err()
}

// Create inserts a workflow. A new default demotes the previous one in the
// same transaction.
func (r *WorkflowRepository) Create(ctx context.Context, wf *domain.ApprovalWorkflow) error {
	steps, err := marshalJSONB(wf.Steps)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if wf.IsDefault && wf.IsActive {
			if err := clearDefaultTx(ctx, tx, wf.CompanyID, wf.DocumentType, wf.ID); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO approval_workflows (id, name, document_type, company_id, steps, is_default, is_active, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			wf.ID, wf.Name, wf.DocumentType, wf.CompanyID, steps, wf.IsDefault, wf.IsActive, wf.CreatedBy,
		).Scan(&wf.CreatedAt, &wf.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, uniqueDefaultWorkflowConstraint) {
				return ErrDefaultWorkflowConflict
			}
			return fmt.Errorf("insert workflow: %w", err)
		}
		return nil
	})
}

// Update replaces a company workflow definition. System workflows are not
// reachable through this path.
func (r *WorkflowRepository) Update(ctx context.Context, wf *domain.ApprovalWorkflow) error {
	steps, err := marshalJSONB(wf.Steps)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if wf.IsDefault && wf.IsActive {
			if err := clearDefaultTx(ctx, tx, wf.CompanyID, wf.DocumentType, wf.ID); err != nil {
				return err
			}
		}

		query := `
			UPDATE approval_workflows
			SET name = $3, steps = $4, is_default = $5, is_active = $6, updated_at = NOW()
			WHERE id = $1 AND company_id = $2
			RETURNING updated_at
		`
		err := tx.QueryRow(ctx, query, wf.ID, wf.CompanyID, wf.Name, steps, wf.IsDefault, wf.IsActive).Scan(&wf.UpdatedAt)
		if err != nil {
			if isNoRows(err) {
				return ErrWorkflowNotFound
			}
			if isUniqueViolation(err, uniqueDefaultWorkflowConstraint) {
				return ErrDefaultWorkflowConflict
			}
			return fmt.Errorf("update workflow: %w", err)
		}
		return nil
	})
}

// Deactivate retires a company workflow. Rows are kept because instances
// reference them.
func (r *WorkflowRepository) Deactivate(ctx context.Context, companyID, workflowID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE approval_workflows
		SET is_active = FALSE, is_default = FALSE, updated_at = NOW()
		WHERE id = $1 AND company_id = $2`, workflowID, companyID)
	if err != nil {
		return fmt.Errorf("deactivate workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

func clearDefaultTx(ctx context.Context, tx pgx.Tx, companyID *string, docType domain.RecordKind, keepID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE approval_workflows
		SET is_default = FALSE, updated_at = NOW()
		WHERE company_id IS NOT DISTINCT FROM $1 AND document_type = $2 AND id <> $3 AND is_default`,
		companyID, docType, keepID)
	if err != nil {
		return fmt.Errorf("clear default workflow: %w", err)
	}
	return nil
}
