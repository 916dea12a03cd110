package service

import (
	"context"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"

	"go.uber.org/zap"
)

// logAudit writes an audit row. Audit failures are logged and never fail the operation.
func logAudit(ctx context.Context, audit AuditLogger, log *logger.Logger, wctx domain.WorkspaceContext, action, resourceType, resourceID string, metadata map[string]interface{}) {
	if audit == nil {
		return
	}
	id := resourceID
	err := audit.LogAction(ctx, repo.AuditEntry{
		WorkspaceID:  wctx.ID(),
		ActorID:      wctx.UserID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   &id,
		Metadata:     metadata,
	})
	if err != nil {
		log.Error(ctx, "failed to write audit log",
			logger.Module(resourceType),
			logger.Action(action),
			zap.String("resource_id", resourceID),
			zap.Error(err),
		)
	}
}

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
