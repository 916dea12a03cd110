package handler

import (
	"context"
	"errors"
	"net/http"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/service"

	"go.uber.org/zap"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// serviceErrors is checked in order; the first errors.Is match wins.
var serviceErrors = []errorMapping{
	// 400
	{domain.ErrInvalidWorkspaceID, http.StatusBadRequest, httperr.ErrCodeInvalidWorkspaceID, "invalid workspace id"},
	{service.ErrInvalidKind, http.StatusBadRequest, httperr.ErrCodeInvalidKind, "unknown record kind"},
	{service.ErrNotApprovable, http.StatusBadRequest, httperr.ErrCodeNotApprovable, "record kind does not support approval"},
	{service.ErrInvalidStatusChange, http.StatusBadRequest, httperr.ErrCodeInvalidStatus, "status can only be set to draft or archived"},
	{service.ErrInvalidCursor, http.StatusBadRequest, httperr.ErrCodeInvalidCursor, "invalid cursor"},
	{service.ErrInvalidReference, http.StatusBadRequest, httperr.ErrCodeInvalidReference, "referenced role, factory or user does not exist"},
	{service.ErrUnknownModule, http.StatusBadRequest, httperr.ErrCodeUnknownModule, "unknown permission module"},
	{domain.ErrInvalidWorkflow, http.StatusBadRequest, httperr.ErrCodeInvalidWorkflow, "invalid approval workflow"},
	{domain.ErrInvalidReturnStep, http.StatusBadRequest, httperr.ErrCodeInvalidReturnStep, "invalid return step"},

	// 403
	{service.ErrWorkspaceAccessDenied, http.StatusForbidden, httperr.ErrCodeWorkspaceForbidden, "workspace access denied"},
	{service.ErrUserDisabled, http.StatusForbidden, httperr.ErrCodeUserDisabled, "user account is disabled"},
	{service.ErrRoleRequired, http.StatusForbidden, httperr.ErrCodeRoleRequired, "a company role is required to access company data"},
	{service.ErrEnterpriseOnly, http.StatusForbidden, httperr.ErrCodeEnterpriseOnly, "operation requires an enterprise workspace"},
	{domain.ErrQuotaExceeded, http.StatusForbidden, httperr.ErrCodeQuotaExceeded, "quota exceeded, upgrade required"},
	{service.ErrSystemRecordReadOnly, http.StatusForbidden, httperr.ErrCodeSystemRecordReadOnly, "system records are read-only"},
	{service.ErrNotRecordOwner, http.StatusForbidden, httperr.ErrCodeNotRecordOwner, "only the record creator can modify it"},
	{service.ErrOwnerImmutable, http.StatusForbidden, httperr.ErrCodeOwnerImmutable, "the company owner membership cannot be changed"},
	{domain.ErrNotApprover, http.StatusForbidden, httperr.ErrCodeNotApprover, "user is not an approver of the current step"},
	{domain.ErrNotYourTurn, http.StatusForbidden, httperr.ErrCodeNotYourTurn, "not your turn in sequential approval"},
	{domain.ErrNotSubmitter, http.StatusForbidden, httperr.ErrCodeNotSubmitter, "only the submitter can perform this action"},
	{service.ErrPermissionDenied, http.StatusForbidden, httperr.ErrCodeForbidden, "insufficient permissions for this action"},

	// 404
	{service.ErrRecordNotFound, http.StatusNotFound, httperr.ErrCodeNotFound, "record not found"},
	{service.ErrCompanyNotFound, http.StatusNotFound, httperr.ErrCodeNotFound, "company not found"},
	{service.ErrFactoryNotFound, http.StatusNotFound, httperr.ErrCodeNotFound, "factory not found"},
	{service.ErrEmployeeNotFound, http.StatusNotFound, httperr.ErrCodeNotFound, "employee not found"},
	{service.ErrRoleNotFound, http.StatusNotFound, httperr.ErrCodeNotFound, "company role not found"},
	{service.ErrWorkflowNotFound, http.StatusNotFound, httperr.ErrCodeNotFound, "approval workflow not found"},
	{service.ErrApprovalNotFound, http.StatusNotFound, httperr.ErrCodeNotFound, "approval not found"},

	// 409
	{domain.ErrRecordLocked, http.StatusConflict, httperr.ErrCodeRecordLocked, "record is locked by an active approval"},
	{service.ErrActiveApprovalExists, http.StatusConflict, httperr.ErrCodeActiveApprovalExists, "document already has an active approval"},
	{domain.ErrApprovalFinished, http.StatusConflict, httperr.ErrCodeApprovalFinished, "approval already finished"},
	{domain.ErrAlreadyActed, http.StatusConflict, httperr.ErrCodeAlreadyActed, "approver already acted on this step"},
	{domain.ErrInvalidApprovalTransition, http.StatusConflict, httperr.ErrCodeInvalidTransition, "invalid approval transition"},
	{service.ErrDefaultWorkflowConflict, http.StatusConflict, httperr.ErrCodeDefaultWorkflowExists, "another default workflow exists for this document type"},
	{service.ErrFactoryNameConflict, http.StatusConflict, httperr.ErrCodeConflict, "factory with this name already exists"},
	{service.ErrEmployeeConflict, http.StatusConflict, httperr.ErrCodeConflict, "user is already a member of this company"},
	{service.ErrRoleNameConflict, http.StatusConflict, httperr.ErrCodeConflict, "company role with this name already exists"},
}

// handleServiceError maps service sentinels to the error envelope. Anything
// unmapped is a 500 whose root cause is logged by the request middleware.
func handleServiceError(w http.ResponseWriter, ctx context.Context, log *logger.Logger, err error) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			log.Warn(ctx, "request rejected",
				logger.Module("http"),
				logger.Action("service_error"),
				zap.String("error_code", m.code),
				zap.Error(err),
			)
			httperr.WriteError(w, ctx, m.status, m.code, m.message)
			return
		}
	}

	logger.SetRootError(ctx, err)
	log.Error(ctx, "unhandled internal server error",
		logger.Module("http"),
		logger.Action("service_error"),
		zap.Error(err),
	)
	httperr.InternalError500(w, ctx, "an internal error occurred")
}
