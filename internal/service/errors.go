package service

import (
	"errors"

	"weldflow-api/internal/access"
	"weldflow-api/internal/repo"
)

var (
	ErrWorkspaceAccessDenied = errors.New("workspace access denied")
	ErrUserDisabled          = errors.New("user account is disabled")
	ErrPermissionDenied      = errors.New("user not authorized for this action")
	ErrRoleRequired          = errors.New("a company role is required to access company data")
	ErrEnterpriseOnly        = errors.New("operation requires an enterprise workspace")
	ErrInvalidKind           = errors.New("unknown record kind")
	ErrNotApprovable         = errors.New("record kind does not support approval")
	ErrInvalidStatusChange   = errors.New("status can only be set to draft or archived")
	ErrUnknownModule         = errors.New("unknown permission module")
	ErrOwnerImmutable        = errors.New("the company owner membership cannot be changed")

	// Re-exported so handlers depend on one package.
	ErrRecordNotFound          = access.ErrRecordNotFound
	ErrSystemRecordReadOnly    = access.ErrSystemRecordReadOnly
	ErrNotRecordOwner          = access.ErrNotRecordOwner
	ErrInvalidCursor           = repo.ErrInvalidCursor
	ErrCompanyNotFound         = repo.ErrCompanyNotFound
	ErrFactoryNotFound         = repo.ErrFactoryNotFound
	ErrFactoryNameConflict     = repo.ErrFactoryNameConflict
	ErrEmployeeNotFound        = repo.ErrEmployeeNotFound
	ErrEmployeeConflict        = repo.ErrEmployeeConflict
	ErrInvalidReference        = repo.ErrInvalidReference
	ErrRoleNotFound            = repo.ErrRoleNotFound
	ErrRoleNameConflict        = repo.ErrRoleNameConflict
	ErrWorkflowNotFound        = repo.ErrWorkflowNotFound
	ErrDefaultWorkflowConflict = repo.ErrDefaultWorkflowConflict
	ErrApprovalNotFound        = repo.ErrApprovalNotFound
	ErrActiveApprovalExists    = repo.ErrActiveApprovalExists
)
