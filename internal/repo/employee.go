package repo

import (
	"context"
	"errors"
	"fmt"

	"weldflow-api/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrEmployeeNotFound = errors.New("employee not found in company")
	ErrEmployeeConflict = errors.New("user is already a member of this company")
	ErrInvalidReference = errors.New("referenced role, factory or user does not exist")
)

const uniqueEmployeeConstraint = "unique_employee_per_company"

const employeeColumns = `
	id, company_id, user_id, role, company_role_id, factory_id, status, data_access_scope, joined_at, updated_at`

type EmployeeRepository struct {
	pool *pgxpool.Pool
}

func NewEmployeeRepository(pool *pgxpool.Pool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

func scanEmployee(row rowScanner) (*domain.CompanyEmployee, error) {
	var e domain.CompanyEmployee
	err := row.Scan(
		&e.ID, &e.CompanyID, &e.UserID, &e.Role, &e.CompanyRoleID, &e.FactoryID,
		&e.Status, &e.DataAccessScope, &e.JoinedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetActive returns the active membership of a user in a company.
func (r *EmployeeRepository) GetActive(ctx context.Context, companyID, userID string) (*domain.CompanyEmployee, error) {
	query := `SELECT ` + employeeColumns + `
		FROM company_employees
		WHERE company_id = $1 AND user_id = $2 AND status = 'active'`

	e, err := scanEmployee(r.pool.QueryRow(ctx, query, companyID, userID))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("get active employee: %w", err)
	}
	return e, nil
}

// ActiveMembership is an active employee row joined with its company name.
type ActiveMembership struct {
	Employee    domain.CompanyEmployee
	CompanyName string
}

// ListActiveByUser returns the active memberships of a user, earliest joined first.
func (r *EmployeeRepository) ListActiveByUser(ctx context.Context, userID string) ([]ActiveMembership, error) {
	query := `
		SELECT e.id, e.company_id, e.user_id, e.role, e.company_role_id, e.factory_id,
		       e.status, e.data_access_scope, e.joined_at, e.updated_at, c.name
		FROM company_employees e
		JOIN companies c ON c.id = e.company_id
		WHERE e.user_id = $1 AND e.status = 'active'
		ORDER BY e.joined_at ASC, e.id ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var out []ActiveMembership
	for rows.Next() {
		var m ActiveMembership
		e := &m.Employee
		if err := rows.Scan(
			&e.ID, &e.CompanyID, &e.UserID, &e.Role, &e.CompanyRoleID, &e.FactoryID,
			&e.Status, &e.DataAccessScope, &e.JoinedAt, &e.UpdatedAt, &m.CompanyName,
		); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// List returns all employees of a company (active and inactive).
func (r *EmployeeRepository) List(ctx context.Context, companyID string) ([]domain.CompanyEmployee, error) {
	query := `SELECT ` + employeeColumns + `
		FROM company_employees
		WHERE company_id = $1
		ORDER BY joined_at ASC`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	employees := []domain.CompanyEmployee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, *e)
	}
	return employees, rows.Err()
}

// Get retrieves an employee scoped to the company.
func (r *EmployeeRepository) Get(ctx context.Context, companyID, employeeID string) (*domain.CompanyEmployee, error) {
	query := `SELECT ` + employeeColumns + `
		FROM company_employees
		WHERE id = $1 AND company_id = $2`

	e, err := scanEmployee(r.pool.QueryRow(ctx, query, employeeID, companyID))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("get employee: %w", err)
	}
	return e, nil
}

// Create inserts a membership.
func (r *EmployeeRepository) Create(ctx context.Context, e *domain.CompanyEmployee) error {
	query := `
		INSERT INTO company_employees (
			id, company_id, user_id, role, company_role_id, factory_id, status, data_access_scope
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING joined_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		e.ID, e.CompanyID, e.UserID, e.Role, e.CompanyRoleID, e.FactoryID, e.Status, e.DataAccessScope,
	).Scan(&e.JoinedAt, &e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, uniqueEmployeeConstraint) {
			return ErrEmployeeConflict
		}
		if isForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

// Update writes the mutable membership columns.
func (r *EmployeeRepository) Update(ctx context.Context, e *domain.CompanyEmployee) error {
	query := `
		UPDATE company_employees
		SET role = $3, company_role_id = $4, factory_id = $5, status = $6,
		    data_access_scope = $7, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		e.ID, e.CompanyID, e.Role, e.CompanyRoleID, e.FactoryID, e.Status, e.DataAccessScope,
	).Scan(&e.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return ErrEmployeeNotFound
		}
		if isForeignKeyViolation(err) {
			return ErrInvalidReference
		}
		return fmt.Errorf("update employee: %w", err)
	}
	return nil
}

// Delete removes the membership row (hard removal).
func (r *EmployeeRepository) Delete(ctx context.Context, companyID, employeeID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM company_employees WHERE id = $1 AND company_id = $2`, employeeID, companyID)
	if err != nil {
		return fmt.Errorf("delete employee: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}
