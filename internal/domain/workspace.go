package domain

import (
	"errors"
	"fmt"
	"strings"
)

// =====================================================
// Workspace Types
// =====================================================

// WorkspaceType is the visibility boundary a row or a request belongs to.
type WorkspaceType string

const (
	// WorkspacePersonal holds data owned by a single user.
	WorkspacePersonal WorkspaceType = "personal"

	// WorkspaceEnterprise holds data owned by a company (all employees see it).
	WorkspaceEnterprise WorkspaceType = "enterprise"

	// WorkspaceSystem marks global read-only assets (standard materials, templates).
	// It is never a request context, only a row classification.
	WorkspaceSystem WorkspaceType = "system"
)

// IsValid reports whether t may be stored on a row.
func (t WorkspaceType) IsValid() bool {
	switch t {
	case WorkspacePersonal, WorkspaceEnterprise, WorkspaceSystem:
		return true
	}
	return false
}

// MembershipType is the account type chosen by the user at signup.
type MembershipType string

const (
	MembershipPersonal   MembershipType = "personal"
	MembershipEnterprise MembershipType = "enterprise"
)

const (
	personalWorkspacePrefix   = "personal_"
	enterpriseWorkspacePrefix = "enterprise_"
)

var (
	// ErrInvalidWorkspaceContext is a configuration error: a context was built
	// with a company where none is allowed, or without one where it is required.
	ErrInvalidWorkspaceContext = errors.New("invalid workspace context")

	// ErrInvalidWorkspaceID indicates a workspace id that is neither
	// personal_{user_id} nor enterprise_{company_id}.
	ErrInvalidWorkspaceID = errors.New("invalid workspace id format")
)

// =====================================================
// WorkspaceContext (request scoped, never persisted)
// =====================================================

// WorkspaceContext is the effective tenant of a request.
type WorkspaceContext struct {
	UserID        string        `json:"userId"`
	WorkspaceType WorkspaceType `json:"workspaceType"`
	CompanyID     *string       `json:"companyId,omitempty"`
	FactoryID     *string       `json:"factoryId,omitempty"`
}

// NewPersonalContext builds the personal workspace context of a user.
func NewPersonalContext(userID string) WorkspaceContext {
	return WorkspaceContext{UserID: userID, WorkspaceType: WorkspacePersonal}
}

// NewEnterpriseContext builds an enterprise context. factoryID may be nil.
func NewEnterpriseContext(userID, companyID string, factoryID *string) WorkspaceContext {
	return WorkspaceContext{
		UserID:        userID,
		WorkspaceType: WorkspaceEnterprise,
		CompanyID:     &companyID,
		FactoryID:     factoryID,
	}
}

// Validate enforces the company_id / workspace_type invariant.
func (c WorkspaceContext) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidWorkspaceContext)
	}

	switch c.WorkspaceType {
	case WorkspacePersonal:
		if c.CompanyID != nil {
			return fmt.Errorf("%w: personal workspace cannot carry company_id", ErrInvalidWorkspaceContext)
		}
		if c.FactoryID != nil {
			return fmt.Errorf("%w: personal workspace cannot carry factory_id", ErrInvalidWorkspaceContext)
		}
	case WorkspaceEnterprise:
		if c.CompanyID == nil || *c.CompanyID == "" {
			return fmt.Errorf("%w: enterprise workspace requires company_id", ErrInvalidWorkspaceContext)
		}
	default:
		return fmt.Errorf("%w: unsupported workspace type %q", ErrInvalidWorkspaceContext, c.WorkspaceType)
	}
	return nil
}

// IsPersonal reports whether the context is a personal workspace.
func (c WorkspaceContext) IsPersonal() bool {
	return c.WorkspaceType == WorkspacePersonal
}

// IsEnterprise reports whether the context is an enterprise workspace.
func (c WorkspaceContext) IsEnterprise() bool {
	return c.WorkspaceType == WorkspaceEnterprise
}

// Company returns the company id or "" for personal contexts.
func (c WorkspaceContext) Company() string {
	if c.CompanyID == nil {
		return ""
	}
	return *c.CompanyID
}

// ID renders the switchable workspace id (personal_{user} / enterprise_{company}).
func (c WorkspaceContext) ID() string {
	if c.IsEnterprise() {
		return enterpriseWorkspacePrefix + c.Company()
	}
	return personalWorkspacePrefix + c.UserID
}

// ParseWorkspaceID splits a workspace id into its type and owner id
// (the user id for personal, the company id for enterprise).
func ParseWorkspaceID(workspaceID string) (WorkspaceType, string, error) {
	switch {
	case strings.HasPrefix(workspaceID, personalWorkspacePrefix):
		id := strings.TrimPrefix(workspaceID, personalWorkspacePrefix)
		if id == "" {
			return "", "", ErrInvalidWorkspaceID
		}
		return WorkspacePersonal, id, nil
	case strings.HasPrefix(workspaceID, enterpriseWorkspacePrefix):
		id := strings.TrimPrefix(workspaceID, enterpriseWorkspacePrefix)
		if id == "" {
			return "", "", ErrInvalidWorkspaceID
		}
		return WorkspaceEnterprise, id, nil
	}
	return "", "", ErrInvalidWorkspaceID
}

// WorkspaceSummary is an entry of the workspace switcher.
type WorkspaceSummary struct {
	ID            string        `json:"id"`
	WorkspaceType WorkspaceType `json:"workspaceType"`
	Name          string        `json:"name"`
	CompanyID     *string       `json:"companyId,omitempty"`
	FactoryID     *string       `json:"factoryId,omitempty"`
	Role          *EmployeeRole `json:"role,omitempty"`
	IsDefault     bool          `json:"isDefault"`
}

// =====================================================
// Users
// =====================================================

// UserStatus is the account status of a user.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

// User is the subset of the account the access layer needs.
type User struct {
	ID             string         `json:"id" db:"id"`
	DisplayName    string         `json:"displayName" db:"display_name"`
	MembershipType MembershipType `json:"membershipType" db:"membership_type"`
	MemberTier     string         `json:"memberTier" db:"member_tier"`
	Status         UserStatus     `json:"status" db:"status"`
}

// IsActive reports whether the user may use the API at all.
func (u *User) IsActive() bool {
	return u.Status == UserActive
}
