package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"weldflow-api/internal/auth"
	"weldflow-api/internal/domain"
	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const workspaceContextKey contextKey = "workspace_context"

// WorkspaceHeader selects the workspace of a request ("personal_<user>" or
// "enterprise_<company>"). Without it the user's default workspace is used.
const WorkspaceHeader = "X-Workspace-Id"

// WorkspaceResolver turns an authenticated user and an optional workspace id
// into the effective workspace context.
type WorkspaceResolver interface {
	Resolve(ctx context.Context, userID, workspaceID string) (domain.WorkspaceContext, error)
}

// WorkspaceMiddleware resolves the workspace of the request and rejects
// workspaces the caller does not belong to.
func WorkspaceMiddleware(resolver WorkspaceResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := logger.GetLogger(ctx)

			claims, ok := auth.GetClaims(ctx)
			if !ok {
				log.Error(ctx, "claims not found in context", logger.Module("workspace"), logger.Action("resolve"))
				httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "unauthorized")
				return
			}

			requested := strings.TrimSpace(r.Header.Get(WorkspaceHeader))
			wctx, err := resolver.Resolve(ctx, claims.UserID(), requested)
			if err != nil {
				writeWorkspaceError(w, ctx, log, err, requested)
				return
			}

			span := trace.SpanFromContext(ctx)
			span.SetAttributes(
				attribute.String("workspace_id", wctx.ID()),
				attribute.String("workspace_type", string(wctx.WorkspaceType)),
			)

			ctx = context.WithValue(ctx, workspaceContextKey, wctx)
			ctx = logger.SetWorkspaceIDInContext(ctx, wctx.ID())

			log.Debug(ctx, "workspace resolved",
				logger.Module("workspace"),
				logger.Action("resolve"),
				logger.WorkspaceType(string(wctx.WorkspaceType)),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeWorkspaceError(w http.ResponseWriter, ctx context.Context, log *logger.Logger, err error, requested string) {
	fields := []logger.Field{
		logger.Module("workspace"),
		logger.Action("resolve"),
		zap.String("requested_workspace_id", requested),
		zap.Error(err),
	}

	switch {
	case errors.Is(err, domain.ErrInvalidWorkspaceID):
		log.Warn(ctx, "invalid workspace id", fields...)
		httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidWorkspaceID, "workspace id must be personal_<userId> or enterprise_<companyId>")
	case errors.Is(err, service.ErrWorkspaceAccessDenied):
		log.Warn(ctx, "workspace access denied", fields...)
		httperr.Forbidden403(w, ctx, httperr.ErrCodeWorkspaceForbidden, "workspace access denied")
	case errors.Is(err, service.ErrUserDisabled):
		log.Warn(ctx, "disabled user rejected", fields...)
		httperr.Forbidden403(w, ctx, httperr.ErrCodeUserDisabled, "user account is disabled")
	default:
		logger.SetRootError(ctx, err)
		log.Error(ctx, "failed to resolve workspace", fields...)
		httperr.InternalError(w, ctx)
	}
}

// GetWorkspaceContext retrieves the resolved workspace context.
func GetWorkspaceContext(ctx context.Context) (domain.WorkspaceContext, bool) {
	wctx, ok := ctx.Value(workspaceContextKey).(domain.WorkspaceContext)
	return wctx, ok
}

// GetWorkspaceID retrieves the resolved workspace id ("personal_<user>" or
// "enterprise_<company>").
func GetWorkspaceID(ctx context.Context) (string, bool) {
	wctx, ok := GetWorkspaceContext(ctx)
	if !ok {
		return "", false
	}
	return wctx.ID(), true
}

// SetWorkspaceContextForTesting injects a workspace context. Tests only.
func SetWorkspaceContextForTesting(ctx context.Context, wctx domain.WorkspaceContext) context.Context {
	return context.WithValue(ctx, workspaceContextKey, wctx)
}
