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

// EnterpriseService manages the organisation of a company: employees,
// company roles, factories and settings. Reads need an active membership,
// writes need the owner or admin role.
type EnterpriseService struct {
	companies   CompanyStore
	employees   EmployeeStore
	roles       RoleStore
	users       UserStore
	perms       *PermissionChecker
	audit       AuditLogger
	defaultTier string
	log         *logger.Logger
}

func NewEnterpriseService(companies CompanyStore, employees EmployeeStore, roles RoleStore, users UserStore, perms *PermissionChecker, audit AuditLogger, defaultTier string, log *logger.Logger) *EnterpriseService {
	if defaultTier == "" {
		defaultTier = domain.TierFree
	}
	return &EnterpriseService{
		companies:   companies,
		employees:   employees,
		roles:       roles,
		users:       users,
		perms:       perms,
		audit:       audit,
		defaultTier: defaultTier,
		log:         log,
	}
}

// =====================================================
// Company
// =====================================================

func (s *EnterpriseService) GetCompany(ctx context.Context, wctx domain.WorkspaceContext) (*domain.Company, error) {
	if _, err := s.perms.Membership(ctx, wctx); err != nil {
		return nil, err
	}
	return s.companies.Get(ctx, wctx.Company())
}

// UpdateSettings changes company-wide access settings such as require_company_role.
func (s *EnterpriseService) UpdateSettings(ctx context.Context, wctx domain.WorkspaceContext, req *domain.UpdateCompanySettingsRequest) (*domain.Company, error) {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return nil, err
	}

	company, err := s.companies.UpdateSettings(ctx, wctx.Company(), req)
	if err != nil {
		return nil, err
	}

	metadata := map[string]interface{}{}
	if req.RequireCompanyRole != nil {
		metadata["require_company_role"] = *req.RequireCompanyRole
	}
	logAudit(ctx, s.audit, s.log, wctx, "settings_update", domain.ModuleEnterprise, company.ID, metadata)
	return company, nil
}

// =====================================================
// Factories
// =====================================================

func (s *EnterpriseService) ListFactories(ctx context.Context, wctx domain.WorkspaceContext) ([]domain.Factory, error) {
	if _, err := s.perms.Membership(ctx, wctx); err != nil {
		return nil, err
	}
	out, err := s.companies.ListFactories(ctx, wctx.Company())
	if err != nil {
		return nil, fmt.Errorf("list factories: %w", err)
	}
	return out, nil
}

func (s *EnterpriseService) CreateFactory(ctx context.Context, wctx domain.WorkspaceContext, req *domain.CreateFactoryRequest) (*domain.Factory, error) {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return nil, err
	}

	f := &domain.Factory{
		ID:        uuid.NewString(),
		CompanyID: wctx.Company(),
		Name:      req.Name,
		Code:      req.Code,
	}
	if err := s.companies.CreateFactory(ctx, f); err != nil {
		if errors.Is(err, repo.ErrFactoryNameConflict) {
			return nil, ErrFactoryNameConflict
		}
		return nil, fmt.Errorf("create factory: %w", err)
	}

	logAudit(ctx, s.audit, s.log, wctx, "factory_create", domain.ModuleEnterprise, f.ID, map[string]interface{}{"name": f.Name})
	return f, nil
}

// =====================================================
// Employees
// =====================================================

func (s *EnterpriseService) ListEmployees(ctx context.Context, wctx domain.WorkspaceContext) ([]domain.CompanyEmployee, error) {
	if _, err := s.perms.Membership(ctx, wctx); err != nil {
		return nil, err
	}
	out, err := s.employees.List(ctx, wctx.Company())
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return out, nil
}

// AddEmployee adds a user to the company. Users that never signed in are
// created on the default tier so they can be invited ahead of time.
func (s *EnterpriseService) AddEmployee(ctx context.Context, wctx domain.WorkspaceContext, req *domain.AddEmployeeRequest) (*domain.CompanyEmployee, error) {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return nil, err
	}
	companyID := wctx.Company()

	if err := s.checkReferences(ctx, companyID, req.CompanyRoleID, req.FactoryID); err != nil {
		return nil, err
	}
	if _, err := s.users.Ensure(ctx, req.UserID, s.defaultTier); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	emp := &domain.CompanyEmployee{
		ID:              uuid.NewString(),
		CompanyID:       companyID,
		UserID:          req.UserID,
		Role:            domain.EmployeeEmployee,
		CompanyRoleID:   req.CompanyRoleID,
		FactoryID:       req.FactoryID,
		Status:          domain.EmployeeActive,
		DataAccessScope: domain.ScopeFactory,
	}
	if req.Role != nil {
		emp.Role = *req.Role
	}
	if req.DataAccessScope != nil {
		emp.DataAccessScope = *req.DataAccessScope
	}
	if emp.Role == domain.EmployeeOwner {
		return nil, ErrOwnerImmutable
	}

	if err := s.employees.Create(ctx, emp); err != nil {
		if errors.Is(err, repo.ErrEmployeeConflict) || errors.Is(err, repo.ErrInvalidReference) {
			return nil, err
		}
		return nil, fmt.Errorf("create employee: %w", err)
	}

	s.log.Info(ctx, "employee added",
		logger.Module(domain.ModuleEnterprise),
		logger.Action("employee_add"),
		zap.String("employee_id", emp.ID),
		zap.String("member_user_id", emp.UserID),
		zap.String("employee_role", string(emp.Role)),
	)
	logAudit(ctx, s.audit, s.log, wctx, "employee_add", domain.ModuleEnterprise, emp.ID,
		map[string]interface{}{"user_id": emp.UserID, "role": string(emp.Role)})
	return emp, nil
}

// UpdateEmployee patches a membership. The owner row cannot be changed.
func (s *EnterpriseService) UpdateEmployee(ctx context.Context, wctx domain.WorkspaceContext, employeeID string, req *domain.UpdateEmployeeRequest) (*domain.CompanyEmployee, error) {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return nil, err
	}
	companyID := wctx.Company()

	emp, err := s.employees.Get(ctx, companyID, employeeID)
	if err != nil {
		return nil, err
	}
	if emp.Role == domain.EmployeeOwner {
		return nil, ErrOwnerImmutable
	}
	if err := s.checkReferences(ctx, companyID, req.CompanyRoleID, req.FactoryID); err != nil {
		return nil, err
	}

	if req.Role != nil {
		emp.Role = *req.Role
	}
	if req.ClearCompanyRole {
		emp.CompanyRoleID = nil
	} else if req.CompanyRoleID != nil {
		emp.CompanyRoleID = req.CompanyRoleID
	}
	if req.FactoryID != nil {
		emp.FactoryID = req.FactoryID
	}
	if req.DataAccessScope != nil {
		emp.DataAccessScope = *req.DataAccessScope
	}
	if req.Status != nil {
		emp.Status = *req.Status
	}

	if err := s.employees.Update(ctx, emp); err != nil {
		if errors.Is(err, repo.ErrEmployeeNotFound) || errors.Is(err, repo.ErrInvalidReference) {
			return nil, err
		}
		return nil, fmt.Errorf("update employee: %w", err)
	}

	logAudit(ctx, s.audit, s.log, wctx, "employee_update", domain.ModuleEnterprise, emp.ID,
		map[string]interface{}{"role": string(emp.Role), "status": string(emp.Status)})
	return emp, nil
}

// RemoveEmployee deactivates a membership, or deletes the row when hard is set.
// Records created by the employee stay with the company.
func (s *EnterpriseService) RemoveEmployee(ctx context.Context, wctx domain.WorkspaceContext, employeeID string, hard bool) error {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return err
	}
	companyID := wctx.Company()

	emp, err := s.employees.Get(ctx, companyID, employeeID)
	if err != nil {
		return err
	}
	if emp.Role == domain.EmployeeOwner {
		return ErrOwnerImmutable
	}

	if hard {
		err = s.employees.Delete(ctx, companyID, emp.ID)
	} else {
		emp.Status = domain.EmployeeInactive
		err = s.employees.Update(ctx, emp)
	}
	if err != nil {
		if errors.Is(err, repo.ErrEmployeeNotFound) {
			return err
		}
		return fmt.Errorf("remove employee: %w", err)
	}

	logAudit(ctx, s.audit, s.log, wctx, "employee_remove", domain.ModuleEnterprise, emp.ID,
		map[string]interface{}{"user_id": emp.UserID, "hard": hard})
	return nil
}

func (s *EnterpriseService) checkReferences(ctx context.Context, companyID string, roleID, factoryID *string) error {
	if roleID != nil {
		if _, err := s.roles.Get(ctx, companyID, *roleID); err != nil {
			if errors.Is(err, repo.ErrRoleNotFound) {
				return fmt.Errorf("%w: company role %s", ErrInvalidReference, *roleID)
			}
			return fmt.Errorf("get company role: %w", err)
		}
	}
	if factoryID != nil {
		if _, err := s.companies.GetFactory(ctx, companyID, *factoryID); err != nil {
			if errors.Is(err, repo.ErrFactoryNotFound) {
				return fmt.Errorf("%w: factory %s", ErrInvalidReference, *factoryID)
			}
			return fmt.Errorf("get factory: %w", err)
		}
	}
	return nil
}

// =====================================================
// Company roles
// =====================================================

func (s *EnterpriseService) ListRoles(ctx context.Context, wctx domain.WorkspaceContext) ([]domain.CompanyRole, error) {
	if _, err := s.perms.Membership(ctx, wctx); err != nil {
		return nil, err
	}
	out, err := s.roles.List(ctx, wctx.Company())
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return out, nil
}

func (s *EnterpriseService) GetRole(ctx context.Context, wctx domain.WorkspaceContext, roleID string) (*domain.CompanyRole, error) {
	if _, err := s.perms.Membership(ctx, wctx); err != nil {
		return nil, err
	}
	return s.roles.Get(ctx, wctx.Company(), roleID)
}

func (s *EnterpriseService) CreateRole(ctx context.Context, wctx domain.WorkspaceContext, req *domain.CreateRoleRequest) (*domain.CompanyRole, error) {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return nil, err
	}
	if err := validateModules(req.Permissions); err != nil {
		return nil, err
	}

	role := &domain.CompanyRole{
		ID:              uuid.NewString(),
		CompanyID:       wctx.Company(),
		Name:            req.Name,
		Description:     req.Description,
		Permissions:     req.Permissions,
		DataAccessScope: domain.ScopeFactory,
		IsActive:        true,
	}
	if req.DataAccessScope != nil {
		role.DataAccessScope = *req.DataAccessScope
	}

	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repo.ErrRoleNameConflict) {
			return nil, ErrRoleNameConflict
		}
		return nil, fmt.Errorf("create role: %w", err)
	}

	logAudit(ctx, s.audit, s.log, wctx, "role_create", domain.ModuleEnterprise, role.ID, map[string]interface{}{"name": role.Name})
	return role, nil
}

func (s *EnterpriseService) UpdateRole(ctx context.Context, wctx domain.WorkspaceContext, roleID string, req *domain.UpdateRoleRequest) (*domain.CompanyRole, error) {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return nil, err
	}

	role, err := s.roles.Get(ctx, wctx.Company(), roleID)
	if err != nil {
		return nil, err
	}

	if req.Permissions != nil {
		if err := validateModules(req.Permissions); err != nil {
			return nil, err
		}
		role.Permissions = req.Permissions
	}
	if req.Name != nil {
		role.Name = *req.Name
	}
	if req.Description != nil {
		role.Description = req.Description
	}
	if req.DataAccessScope != nil {
		role.DataAccessScope = *req.DataAccessScope
	}
	if req.IsActive != nil {
		role.IsActive = *req.IsActive
	}

	if err := s.roles.Update(ctx, role); err != nil {
		if errors.Is(err, repo.ErrRoleNotFound) || errors.Is(err, repo.ErrRoleNameConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("update role: %w", err)
	}

	logAudit(ctx, s.audit, s.log, wctx, "role_update", domain.ModuleEnterprise, role.ID, nil)
	return role, nil
}

// DeleteRole removes a role. Employees holding it continue without a role.
func (s *EnterpriseService) DeleteRole(ctx context.Context, wctx domain.WorkspaceContext, roleID string) error {
	if _, err := s.perms.RequireManager(ctx, wctx); err != nil {
		return err
	}
	if err := s.roles.Delete(ctx, wctx.Company(), roleID); err != nil {
		return err
	}
	logAudit(ctx, s.audit, s.log, wctx, "role_delete", domain.ModuleEnterprise, roleID, nil)
	return nil
}

func validateModules(perms map[string]domain.ModulePermission) error {
	for module := range perms {
		if !domain.IsKnownModule(module) {
			return fmt.Errorf("%w: %q", ErrUnknownModule, module)
		}
	}
	return nil
}
