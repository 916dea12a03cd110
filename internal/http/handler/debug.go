package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"weldflow-api/internal/auth"
	"weldflow-api/internal/domain"
	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/http/middleware"
	"weldflow-api/internal/observability/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool is the slice of pgxpool.Pool the ping endpoint needs.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// TierLookup resolves the billing tier of a workspace.
type TierLookup interface {
	Tier(ctx context.Context, wctx domain.WorkspaceContext) (string, error)
}

// PermissionProbe answers a single module/action check.
type PermissionProbe interface {
	Check(ctx context.Context, wctx domain.WorkspaceContext, module string, action domain.ModuleAction) error
}

// DebugHandler serves /debug routes. Every route answers 404 outside dev.
type DebugHandler struct {
	appEnv string
	pool   DBPool
	tiers  TierLookup
	perms  PermissionProbe
}

// NewDebugHandler creates the handler. An empty appEnv is treated as
// production; tiers and perms may be nil.
func NewDebugHandler(appEnv string, pool DBPool, tiers TierLookup, perms PermissionProbe) *DebugHandler {
	if appEnv == "" {
		appEnv = "production"
	}
	return &DebugHandler{appEnv: appEnv, pool: pool, tiers: tiers, perms: perms}
}

type DebugAuthResponse struct {
	OK   bool           `json:"ok"`
	Data *DebugAuthData `json:"data"`
}

// DebugAuthData shows how a request was authenticated and, behind the
// workspace middleware, what the caller may do there.
type DebugAuthData struct {
	UserID          string                             `json:"userId"`
	Email           *string                            `json:"email,omitempty"`
	TokenIssuer     string                             `json:"tokenIssuer"`
	WorkspaceHeader *string                            `json:"workspaceHeader,omitempty"`
	WorkspaceID     *string                            `json:"workspaceId,omitempty"`
	WorkspaceType   *string                            `json:"workspaceType,omitempty"`
	CompanyID       *string                            `json:"companyId,omitempty"`
	FactoryID       *string                            `json:"factoryId,omitempty"`
	Tier            *string                            `json:"tier,omitempty"`
	Permissions     map[string]domain.ModulePermission `json:"permissions,omitempty"`
}

func (h *DebugHandler) devOnly(w http.ResponseWriter, r *http.Request) bool {
	if h.appEnv == "dev" || h.appEnv == "development" {
		return true
	}
	logger.GetLogger(r.Context()).Warn(r.Context(), "debug endpoint accessed in non-dev environment",
		logger.Module("debug"),
		logger.Action("guard"),
		zap.String("app_env", h.appEnv),
	)
	http.NotFound(w, r)
	return false
}

// GetAuthDebug handles GET /debug/auth and GET /debug/auth/workspace.
func (h *DebugHandler) GetAuthDebug(w http.ResponseWriter, r *http.Request) {
	if !h.devOnly(w, r) {
		return
	}
	ctx := r.Context()

	claims, ok := auth.GetClaims(ctx)
	if !ok {
		httperr.Unauthorized401(w, ctx, httperr.ErrCodeInvalidToken, "authentication required")
		return
	}

	data := &DebugAuthData{UserID: claims.UserID(), TokenIssuer: claims.Issuer}
	if claims.Email != "" {
		data.Email = &claims.Email
	}
	if header := r.Header.Get(middleware.WorkspaceHeader); header != "" {
		data.WorkspaceHeader = &header
	}

	if wctx, ok := middleware.GetWorkspaceContext(ctx); ok {
		id := wctx.ID()
		typ := string(wctx.WorkspaceType)
		data.WorkspaceID = &id
		data.WorkspaceType = &typ
		data.CompanyID = wctx.CompanyID
		data.FactoryID = wctx.FactoryID

		if h.tiers != nil {
			if tier, err := h.tiers.Tier(ctx, wctx); err == nil {
				data.Tier = &tier
			}
		}
		if h.perms != nil {
			data.Permissions = h.permissionMatrix(ctx, wctx)
		}
	}

	writeJSON(w, http.StatusOK, DebugAuthResponse{OK: true, Data: data})
}

func debugModules() []string {
	modules := []string{domain.ModuleApproval, domain.ModuleEnterprise}
	for _, kind := range domain.AllRecordKinds {
		modules = append(modules, kind.Module())
	}
	return modules
}

// permissionMatrix probes every module/action pair. Any error, including
// ROLE_REQUIRED, counts as denied.
func (h *DebugHandler) permissionMatrix(ctx context.Context, wctx domain.WorkspaceContext) map[string]domain.ModulePermission {
	allowed := func(module string, action domain.ModuleAction) bool {
		return h.perms.Check(ctx, wctx, module, action) == nil
	}

	matrix := make(map[string]domain.ModulePermission)
	for _, module := range debugModules() {
		matrix[module] = domain.ModulePermission{
			View:   allowed(module, domain.ActionView),
			Create: allowed(module, domain.ActionCreate),
			Edit:   allowed(module, domain.ActionEdit),
			Delete: allowed(module, domain.ActionDelete),
		}
	}
	return matrix
}

// PingDB handles GET /debug/db/ping.
func (h *DebugHandler) PingDB(w http.ResponseWriter, r *http.Request) {
	if !h.devOnly(w, r) {
		return
	}
	ctx := r.Context()

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	var one int
	if err := h.pool.QueryRow(pingCtx, "SELECT 1").Scan(&one); err != nil {
		fields := []zap.Field{logger.Module("debug"), logger.Action("db_ping"), zap.Error(err)}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			fields = append(fields, zap.String("pgcode", pgErr.Code))
		}
		logger.SetRootError(ctx, err)
		logger.GetLogger(ctx).Error(ctx, "db ping failed", fields...)
		httperr.InternalError(w, ctx)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "latencyMs": time.Since(start).Milliseconds()})
}
