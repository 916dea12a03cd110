package service

import (
	"context"
	"errors"
	"fmt"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"

	"go.uber.org/zap"
)

// PermissionChecker evaluates module permissions inside an enterprise
// workspace. Personal workspaces own everything they can see.
type PermissionChecker struct {
	companies CompanyStore
	employees EmployeeStore
	roles     RoleStore
	log       *logger.Logger
}

func NewPermissionChecker(companies CompanyStore, employees EmployeeStore, roles RoleStore, log *logger.Logger) *PermissionChecker {
	return &PermissionChecker{companies: companies, employees: employees, roles: roles, log: log}
}

// Check returns nil when the context may perform action on module.
// Membership and role are read on every call so revocations apply immediately.
func (p *PermissionChecker) Check(ctx context.Context, wctx domain.WorkspaceContext, module string, action domain.ModuleAction) error {
	if !wctx.IsEnterprise() {
		return nil
	}

	emp, err := p.Membership(ctx, wctx)
	if err != nil {
		return err
	}

	var role *domain.CompanyRole
	if emp.CompanyRoleID != nil && !emp.Role.IsManager() {
		role, err = p.roles.Get(ctx, emp.CompanyID, *emp.CompanyRoleID)
		if err != nil && !errors.Is(err, repo.ErrRoleNotFound) {
			return fmt.Errorf("get company role: %w", err)
		}
	}

	var company *domain.Company
	if !emp.Role.IsManager() && role == nil {
		company, err = p.companies.Get(ctx, emp.CompanyID)
		if err != nil {
			return fmt.Errorf("get company: %w", err)
		}
	}

	perm, err := effectivePermission(emp, role, company, module)
	if err == nil && !perm.Allows(action) {
		err = ErrPermissionDenied
	}
	if err != nil {
		p.log.Warn(ctx, "module permission denied",
			logger.Module(module),
			logger.Action("authorization"),
			zap.String("requested_action", string(action)),
			zap.String("employee_role", string(emp.Role)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// Membership returns the caller's active employee row in the context company.
func (p *PermissionChecker) Membership(ctx context.Context, wctx domain.WorkspaceContext) (*domain.CompanyEmployee, error) {
	if !wctx.IsEnterprise() {
		return nil, ErrEnterpriseOnly
	}
	emp, err := p.employees.GetActive(ctx, wctx.Company(), wctx.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrEmployeeNotFound) {
			return nil, ErrWorkspaceAccessDenied
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return emp, nil
}

// RequireManager allows company owners and admins only.
func (p *PermissionChecker) RequireManager(ctx context.Context, wctx domain.WorkspaceContext) (*domain.CompanyEmployee, error) {
	emp, err := p.Membership(ctx, wctx)
	if err != nil {
		return nil, err
	}
	if !emp.Role.IsManager() {
		p.log.Warn(ctx, "manager role required",
			logger.Module(domain.ModuleEnterprise),
			logger.Action("authorization"),
			zap.String("employee_role", string(emp.Role)),
		)
		return nil, ErrPermissionDenied
	}
	return emp, nil
}

// effectivePermission resolves the permission set of one module:
// owner/admin get everything, a company role gives its map, and without a
// role the company either requires one or grants the default member set.
func effectivePermission(emp *domain.CompanyEmployee, role *domain.CompanyRole, company *domain.Company, module string) (domain.ModulePermission, error) {
	if emp.Role.IsManager() {
		return domain.FullPermission, nil
	}
	if role != nil {
		return role.Permission(module), nil
	}
	if company != nil && company.RequireCompanyRole {
		return domain.ModulePermission{}, ErrRoleRequired
	}
	return domain.DefaultMemberPermission, nil
}
