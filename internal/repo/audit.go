package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is one row of audit_log. WorkspaceID is the rendered workspace
// id (personal_{user} / enterprise_{company}). Empty IPAddress and UserAgent
// are taken from the request origin in ctx.
type AuditEntry struct {
	WorkspaceID  string
	ActorID      string
	Action       string
	ResourceType string
	ResourceID   *string
	Metadata     map[string]interface{}
	IPAddress    string
	UserAgent    string
}

// Origin identifies where a request came from.
type Origin struct {
	IPAddress string
	UserAgent string
}

type originKey struct{}

// WithOrigin attaches the request origin for audit rows written under ctx.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

func OriginFromContext(ctx context.Context) Origin {
	o, _ := ctx.Value(originKey{}).(Origin)
	return o
}

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// LogAction inserts one audit row.
func (r *AuditRepo) LogAction(ctx context.Context, e AuditEntry) error {
	origin := OriginFromContext(ctx)
	if e.IPAddress == "" {
		e.IPAddress = origin.IPAddress
	}
	if e.UserAgent == "" {
		e.UserAgent = origin.UserAgent
	}

	var metadata *string
	if e.Metadata != nil {
		raw, err := marshalJSONB(e.Metadata)
		if err != nil {
			return err
		}
		metadata = &raw
	}

	const q = `
		INSERT INTO audit_log (workspace_id, actor_id, action, resource_type, resource_id, metadata, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := r.pool.Exec(ctx, q,
		e.WorkspaceID, e.ActorID, e.Action, e.ResourceType, e.ResourceID,
		metadata, nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent),
	); err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}

// PurgeBefore deletes audit rows created before cutoff.
func (r *AuditRepo) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge audit log: %w", err)
	}
	return tag.RowsAffected(), nil
}
