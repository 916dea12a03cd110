package repo

import (
	"context"
	"errors"
	"fmt"

	"weldflow-api/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrRoleNotFound     = errors.New("company role not found")
	ErrRoleNameConflict = errors.New("company role with this name already exists")
)

const uniqueRoleNameConstraint = "unique_role_name_per_company"

const roleColumns = `
	id, company_id, name, description, permissions, data_access_scope, is_active, created_at, updated_at`

type RoleRepository struct {
	pool *pgxpool.Pool
}

func NewRoleRepository(pool *pgxpool.Pool) *RoleRepository {
	return &RoleRepository{pool: pool}
}

func scanRole(row rowScanner) (*domain.CompanyRole, error) {
	var role domain.CompanyRole
	var perms []byte
	err := row.Scan(
		&role.ID, &role.CompanyID, &role.Name, &role.Description, &perms,
		&role.DataAccessScope, &role.IsActive, &role.CreatedAt, &role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	role.Permissions = map[string]domain.ModulePermission{}
	if err := unmarshalJSONB(perms, &role.Permissions); err != nil {
		return nil, err
	}
	return &role, nil
}

// Get retrieves a role scoped to the company.
func (r *RoleRepository) Get(ctx context.Context, companyID, roleID string) (*domain.CompanyRole, error) {
	query := `SELECT ` + roleColumns + ` FROM company_roles WHERE id = $1 AND company_id = $2`

	role, err := scanRole(r.pool.QueryRow(ctx, query, roleID, companyID))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return role, nil
}

// List returns the roles of a company ordered by name.
func (r *RoleRepository) List(ctx context.Context, companyID string) ([]domain.CompanyRole, error) {
	query := `SELECT ` + roleColumns + ` FROM company_roles WHERE company_id = $1 ORDER BY name`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	roles := []domain.CompanyRole{}
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// Create inserts a role.
func (r *RoleRepository) Create(ctx context.Context, role *domain.CompanyRole) error {
	perms, err := marshalJSONB(role.Permissions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO company_roles (id, company_id, name, description, permissions, data_access_scope, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		role.ID, role.CompanyID, role.Name, role.Description, perms, role.DataAccessScope, role.IsActive,
	).Scan(&role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, uniqueRoleNameConstraint) {
			return ErrRoleNameConflict
		}
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

// Update writes every mutable column of the role.
func (r *RoleRepository) Update(ctx context.Context, role *domain.CompanyRole) error {
	perms, err := marshalJSONB(role.Permissions)
	if err != nil {
		return err
	}

	query := `
		UPDATE company_roles
		SET name = $3, description = $4, permissions = $5, data_access_scope = $6,
		    is_active = $7, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		role.ID, role.CompanyID, role.Name, role.Description, perms, role.DataAccessScope, role.IsActive,
	).Scan(&role.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return ErrRoleNotFound
		}
		if isUniqueViolation(err, uniqueRoleNameConstraint) {
			return ErrRoleNameConflict
		}
		return fmt.Errorf("update role: %w", err)
	}
	return nil
}

// Delete removes a role. Employees holding it fall back to no role (ON DELETE SET NULL).
func (r *RoleRepository) Delete(ctx context.Context, companyID, roleID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM company_roles WHERE id = $1 AND company_id = $2`, roleID, companyID)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoleNotFound
	}
	return nil
}
