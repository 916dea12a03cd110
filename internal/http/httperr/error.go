package httperr

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"weldflow-api/internal/observability/logger"

	"go.uber.org/zap"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	OK    bool         `json:"ok"`
	Error *ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	ErrorID string            `json:"error_id,omitempty"`
}

// Error codes for 401 Unauthorized (authentication failures)
const (
	ErrCodeMissingAuthorization = "MISSING_AUTHORIZATION"
	ErrCodeInvalidScheme        = "INVALID_SCHEME"
	ErrCodeInvalidToken         = "INVALID_TOKEN"
	ErrCodeInvalidSignature     = "INVALID_SIGNATURE"
	ErrCodeTokenExpired         = "TOKEN_EXPIRED"
	ErrCodeInvalidIssuer        = "INVALID_ISSUER"
	ErrCodeInvalidAudience      = "INVALID_AUDIENCE"
)

// Error codes for 403 Forbidden (authorized but insufficient permissions)
const (
	ErrCodeWorkspaceForbidden   = "WORKSPACE_FORBIDDEN"
	ErrCodeUserDisabled         = "USER_DISABLED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeRoleRequired         = "ROLE_REQUIRED"
	ErrCodeEnterpriseOnly       = "ENTERPRISE_ONLY"
	ErrCodeQuotaExceeded        = "QUOTA_EXCEEDED"
	ErrCodeSystemRecordReadOnly = "SYSTEM_RECORD_READ_ONLY"
	ErrCodeNotRecordOwner       = "NOT_RECORD_OWNER"
	ErrCodeOwnerImmutable       = "OWNER_IMMUTABLE"
	ErrCodeNotApprover          = "NOT_APPROVER"
	ErrCodeNotYourTurn          = "NOT_YOUR_TURN"
	ErrCodeNotSubmitter         = "NOT_SUBMITTER"
)

// Error codes for 404 Not Found
const (
	ErrCodeNotFound = "NOT_FOUND"
)

// Error codes for 409 Conflict
const (
	ErrCodeConflict               = "CONFLICT"
	ErrCodeRecordLocked           = "RECORD_LOCKED"
	ErrCodeActiveApprovalExists   = "ACTIVE_APPROVAL_EXISTS"
	ErrCodeApprovalFinished       = "APPROVAL_FINISHED"
	ErrCodeAlreadyActed           = "ALREADY_ACTED"
	ErrCodeInvalidTransition      = "INVALID_TRANSITION"
	ErrCodeDefaultWorkflowExists  = "DEFAULT_WORKFLOW_EXISTS"
	ErrCodeIdempotencyKeyConflict = "IDEMPOTENCY_KEY_CONFLICT"
)

// Error codes for 400 Bad Request (validation errors)
const (
	ErrCodeInvalidWorkspaceID = "INVALID_WORKSPACE_ID"
	ErrCodeMissingWorkspaceID = "MISSING_WORKSPACE_ID"
	ErrCodeInvalidParameter   = "INVALID_PARAMETER"
	ErrCodeInvalidFormat      = "INVALID_FORMAT"
	ErrCodeInvalidLimit       = "INVALID_LIMIT"
	ErrCodeInvalidCursor      = "INVALID_CURSOR"
	ErrCodeValidationError    = "VALIDATION_ERROR"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeInvalidKind        = "INVALID_KIND"
	ErrCodeNotApprovable      = "NOT_APPROVABLE"
	ErrCodeInvalidWorkflow    = "INVALID_WORKFLOW"
	ErrCodeInvalidReference   = "INVALID_REFERENCE"
	ErrCodeInvalidReturnStep  = "INVALID_RETURN_STEP"
	ErrCodeUnknownModule      = "UNKNOWN_MODULE"
)

// Error codes for 429 Too Many Requests
const (
	ErrCodeRateLimited = "RATE_LIMITED"
)

// Error codes for 500 Internal Server Error
const (
	ErrCodeInternalError = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, detail *ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{OK: false, Error: detail})
}

// logRejection records the response at debug for client errors and at error
// for everything else. The request logging middleware already emits one line
// per request, so 4xx need no more than that here.
func logRejection(ctx context.Context, status int, detail *ErrorDetail) {
	fields := []zap.Field{
		zap.Int("status_code", status),
		zap.String("error_code", detail.Code),
		zap.String("message", detail.Message),
	}
	for k, v := range detail.Fields {
		fields = append(fields, zap.String("field_"+k, v))
	}

	log := logger.GetLogger(ctx)
	if status < http.StatusInternalServerError {
		log.Debug(ctx, "request rejected", fields...)
		return
	}
	log.Error(ctx, "request failed", fields...)
}

// WriteError writes the error envelope.
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	detail := &ErrorDetail{Code: code, Message: message}
	logRejection(ctx, status, detail)
	writeJSON(w, status, detail)
}

// WriteErrorWithFields writes the error envelope with per-field messages.
func WriteErrorWithFields(w http.ResponseWriter, ctx context.Context, status int, code, message string, fields map[string]string) {
	detail := &ErrorDetail{Code: code, Message: message, Fields: fields}
	logRejection(ctx, status, detail)
	writeJSON(w, status, detail)
}

func Unauthorized401(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusUnauthorized, code, message)
}

func Forbidden403(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusForbidden, code, message)
}

func NotFound404(w http.ResponseWriter, ctx context.Context, message string) {
	WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, message)
}

func Conflict409(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusConflict, code, message)
}

// TooManyRequests429 sets Retry-After, rounded up to whole seconds with a
// floor of one, and writes RATE_LIMITED.
func TooManyRequests429(w http.ResponseWriter, ctx context.Context, message string, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteError(w, ctx, http.StatusTooManyRequests, ErrCodeRateLimited, message)
}

func BadRequest400(w http.ResponseWriter, ctx context.Context, code, message string) {
	WriteError(w, ctx, http.StatusBadRequest, code, message)
}

func BadRequest400WithFields(w http.ResponseWriter, ctx context.Context, code, message string, fields map[string]string) {
	WriteErrorWithFields(w, ctx, http.StatusBadRequest, code, message, fields)
}

// InternalError500 hides message from the client. In dev the request id is
// returned as error_id so the log line can be found.
func InternalError500(w http.ResponseWriter, ctx context.Context, message string) {
	reqID := logger.GetRequestIDFromContext(ctx)
	logger.GetLogger(ctx).Error(ctx, "internal server error", zap.String("message", message))

	detail := &ErrorDetail{Code: ErrCodeInternalError, Message: "Internal Server Error"}
	if isDev() {
		detail.ErrorID = reqID
	}
	writeJSON(w, http.StatusInternalServerError, detail)
}

func InternalError(w http.ResponseWriter, ctx context.Context) {
	InternalError500(w, ctx, "internal server error")
}

func isDev() bool {
	env := os.Getenv("APP_ENV")
	return env == "dev" || env == "development"
}
