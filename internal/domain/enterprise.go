package domain

import (
	"time"
)

// =====================================================
// Company / Factory
// =====================================================

// Company is an enterprise tenant.
type Company struct {
	ID                 string    `json:"id" db:"id"`
	Name               string    `json:"name" db:"name"`
	OwnerID            string    `json:"ownerId" db:"owner_id"`
	MembershipTier     string    `json:"membershipTier" db:"membership_tier"`
	RequireCompanyRole bool      `json:"requireCompanyRole" db:"require_company_role"`
	CreatedAt          time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time `json:"updatedAt" db:"updated_at"`
}

// Factory is a site belonging to a company.
type Factory struct {
	ID        string    `json:"id" db:"id"`
	CompanyID string    `json:"companyId" db:"company_id"`
	Name      string    `json:"name" db:"name"`
	Code      *string   `json:"code,omitempty" db:"code"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// CreateFactoryRequest DTO para criação de fábrica.
type CreateFactoryRequest struct {
	Name string  `json:"name" validate:"required,min=1,max=255"`
	Code *string `json:"code,omitempty" validate:"omitempty,max=50"`
}

// UpdateCompanySettingsRequest toggles company-wide access settings.
type UpdateCompanySettingsRequest struct {
	RequireCompanyRole *bool `json:"requireCompanyRole,omitempty"`
}

// =====================================================
// Company Employee
// =====================================================

// EmployeeRole is the coarse membership role inside a company.
type EmployeeRole string

const (
	EmployeeOwner    EmployeeRole = "owner"
	EmployeeAdmin    EmployeeRole = "admin"
	EmployeeEmployee EmployeeRole = "employee"
)

// IsValid checks if the role is one of the defined constants
func (r EmployeeRole) IsValid() bool {
	switch r {
	case EmployeeOwner, EmployeeAdmin, EmployeeEmployee:
		return true
	}
	return false
}

// IsManager reports whether the role manages the company (members, roles, workflows).
func (r EmployeeRole) IsManager() bool {
	return r == EmployeeOwner || r == EmployeeAdmin
}

// EmployeeStatus is the membership status. Soft removal flips it to inactive.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "active"
	EmployeeInactive EmployeeStatus = "inactive"
)

// DataAccessScope narrows what an employee is expected to work on.
type DataAccessScope string

const (
	ScopeFactory DataAccessScope = "factory"
	ScopeCompany DataAccessScope = "company"
)

// IsValid reports whether s is a known scope.
func (s DataAccessScope) IsValid() bool {
	return s == ScopeFactory || s == ScopeCompany
}

// CompanyEmployee links a user to a company.
type CompanyEmployee struct {
	ID              string          `json:"id" db:"id"`
	CompanyID       string          `json:"companyId" db:"company_id"`
	UserID          string          `json:"userId" db:"user_id"`
	Role            EmployeeRole    `json:"role" db:"role"`
	CompanyRoleID   *string         `json:"companyRoleId,omitempty" db:"company_role_id"`
	FactoryID       *string         `json:"factoryId,omitempty" db:"factory_id"`
	Status          EmployeeStatus  `json:"status" db:"status"`
	DataAccessScope DataAccessScope `json:"dataAccessScope" db:"data_access_scope"`
	JoinedAt        time.Time       `json:"joinedAt" db:"joined_at"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsActive reports whether the membership currently grants access.
func (e *CompanyEmployee) IsActive() bool {
	return e.Status == EmployeeActive
}

// AddEmployeeRequest DTO para adicionar funcionário à empresa.
type AddEmployeeRequest struct {
	UserID          string           `json:"userId" validate:"required,max=64"`
	Role            *EmployeeRole    `json:"role,omitempty" validate:"omitempty,oneof=admin employee"`
	CompanyRoleID   *string          `json:"companyRoleId,omitempty" validate:"omitempty,max=64"`
	FactoryID       *string          `json:"factoryId,omitempty" validate:"omitempty,max=64"`
	DataAccessScope *DataAccessScope `json:"dataAccessScope,omitempty" validate:"omitempty,oneof=factory company"`
}

// UpdateEmployeeRequest is a PATCH: nil fields are left untouched.
// ClearCompanyRole removes the company role assignment.
type UpdateEmployeeRequest struct {
	Role             *EmployeeRole    `json:"role,omitempty" validate:"omitempty,oneof=admin employee"`
	CompanyRoleID    *string          `json:"companyRoleId,omitempty" validate:"omitempty,max=64"`
	ClearCompanyRole bool             `json:"clearCompanyRole,omitempty"`
	FactoryID        *string          `json:"factoryId,omitempty" validate:"omitempty,max=64"`
	DataAccessScope  *DataAccessScope `json:"dataAccessScope,omitempty" validate:"omitempty,oneof=factory company"`
	Status           *EmployeeStatus  `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
}

// =====================================================
// Company Role (module permission map)
// =====================================================

// Module names used as keys of a role permission map. Entity kinds are modules too.
const (
	ModuleApproval   = "approval"
	ModuleEnterprise = "enterprise"
)

// ModuleAction is one of the four permission bits of a module.
type ModuleAction string

const (
	ActionView   ModuleAction = "view"
	ActionCreate ModuleAction = "create"
	ActionEdit   ModuleAction = "edit"
	ActionDelete ModuleAction = "delete"
)

// ModulePermission is the {view, create, edit, delete} set of one module.
type ModulePermission struct {
	View   bool `json:"view"`
	Create bool `json:"create"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// Allows reports whether the permission set grants action.
func (p ModulePermission) Allows(action ModuleAction) bool {
	switch action {
	case ActionView:
		return p.View
	case ActionCreate:
		return p.Create
	case ActionEdit:
		return p.Edit
	case ActionDelete:
		return p.Delete
	}
	return false
}

// DefaultMemberPermission applies to employees without a company role when
// the company does not require one.
var DefaultMemberPermission = ModulePermission{View: true, Create: true}

// FullPermission is granted to company owners and admins.
var FullPermission = ModulePermission{View: true, Create: true, Edit: true, Delete: true}

// CompanyRole is a per-company named permission set.
type CompanyRole struct {
	ID              string                      `json:"id" db:"id"`
	CompanyID       string                      `json:"companyId" db:"company_id"`
	Name            string                      `json:"name" db:"name"`
	Description     *string                     `json:"description,omitempty" db:"description"`
	Permissions     map[string]ModulePermission `json:"permissions" db:"permissions"`
	DataAccessScope DataAccessScope             `json:"dataAccessScope" db:"data_access_scope"`
	IsActive        bool                        `json:"isActive" db:"is_active"`
	CreatedAt       time.Time                   `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time                   `json:"updatedAt" db:"updated_at"`
}

// Permission returns the permission set of a module (zero value if absent).
func (r *CompanyRole) Permission(module string) ModulePermission {
	if r == nil || !r.IsActive {
		return ModulePermission{}
	}
	return r.Permissions[module]
}

// CreateRoleRequest DTO para criação de papel da empresa.
type CreateRoleRequest struct {
	Name            string                      `json:"name" validate:"required,min=1,max=100"`
	Description     *string                     `json:"description,omitempty" validate:"omitempty,max=500"`
	Permissions     map[string]ModulePermission `json:"permissions" validate:"required"`
	DataAccessScope *DataAccessScope            `json:"dataAccessScope,omitempty" validate:"omitempty,oneof=factory company"`
}

// UpdateRoleRequest is a PATCH over a company role.
type UpdateRoleRequest struct {
	Name            *string                     `json:"name,omitempty" validate:"omitempty,min=1,max=100"`
	Description     *string                     `json:"description,omitempty" validate:"omitempty,max=500"`
	Permissions     map[string]ModulePermission `json:"permissions,omitempty"`
	DataAccessScope *DataAccessScope            `json:"dataAccessScope,omitempty" validate:"omitempty,oneof=factory company"`
	IsActive        *bool                       `json:"isActive,omitempty"`
}

// IsKnownModule reports whether name can appear in a permission map.
func IsKnownModule(name string) bool {
	if name == ModuleApproval || name == ModuleEnterprise {
		return true
	}
	return RecordKind(name).IsValid()
}
