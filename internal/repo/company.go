package repo

import (
	"context"
	"errors"
	"fmt"

	"weldflow-api/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrCompanyNotFound     = errors.New("company not found")
	ErrFactoryNotFound     = errors.New("factory not found in company")
	ErrFactoryNameConflict = errors.New("factory with this name already exists in company")
)

const uniqueFactoryNameConstraint = "unique_factory_name_per_company"

type CompanyRepository struct {
	pool *pgxpool.Pool
}

func NewCompanyRepository(pool *pgxpool.Pool) *CompanyRepository {
	return &CompanyRepository{pool: pool}
}

// Get retrieves a company by id.
func (r *CompanyRepository) Get(ctx context.Context, companyID string) (*domain.Company, error) {
	query := `
		SELECT id, name, owner_id, membership_tier, require_company_role, created_at, updated_at
		FROM companies
		WHERE id = $1
	`

	var c domain.Company
	err := r.pool.QueryRow(ctx, query, companyID).Scan(
		&c.ID, &c.Name, &c.OwnerID, &c.MembershipTier, &c.RequireCompanyRole, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("get company: %w", err)
	}
	return &c, nil
}

// UpdateSettings atualiza as configurações de acesso da empresa (PATCH semântico).
func (r *CompanyRepository) UpdateSettings(ctx context.Context, companyID string, req *domain.UpdateCompanySettingsRequest) (*domain.Company, error) {
	query := `
		UPDATE companies
		SET require_company_role = COALESCE($2, require_company_role), updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, companyID, req.RequireCompanyRole)
	if err != nil {
		return nil, fmt.Errorf("update company settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrCompanyNotFound
	}
	return r.Get(ctx, companyID)
}

// ListFactories returns the factories of a company ordered by name.
func (r *CompanyRepository) ListFactories(ctx context.Context, companyID string) ([]domain.Factory, error) {
	query := `
		SELECT id, company_id, name, code, created_at
		FROM factories
		WHERE company_id = $1
		ORDER BY name
	`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("query factories: %w", err)
	}
	defer rows.Close()

	factories := []domain.Factory{}
	for rows.Next() {
		var f domain.Factory
		if err := rows.Scan(&f.ID, &f.CompanyID, &f.Name, &f.Code, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan factory: %w", err)
		}
		factories = append(factories, f)
	}
	return factories, rows.Err()
}

// GetFactory retrieves a factory scoped to its company.
// IDOR protection: a factory of another company is reported as not found.
func (r *CompanyRepository) GetFactory(ctx context.Context, companyID, factoryID string) (*domain.Factory, error) {
	query := `
		SELECT id, company_id, name, code, created_at
		FROM factories
		WHERE id = $1 AND company_id = $2
	`

	var f domain.Factory
	err := r.pool.QueryRow(ctx, query, factoryID, companyID).Scan(&f.ID, &f.CompanyID, &f.Name, &f.Code, &f.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrFactoryNotFound
		}
		return nil, fmt.Errorf("get factory: %w", err)
	}
	return &f, nil
}

// CreateFactory inserts a factory.
func (r *CompanyRepository) CreateFactory(ctx context.Context, f *domain.Factory) error {
	query := `
		INSERT INTO factories (id, company_id, name, code)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`

	err := r.pool.QueryRow(ctx, query, f.ID, f.CompanyID, f.Name, f.Code).Scan(&f.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, uniqueFactoryNameConstraint) {
			return ErrFactoryNameConflict
		}
		return fmt.Errorf("insert factory: %w", err)
	}
	return nil
}
