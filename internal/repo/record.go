package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"weldflow-api/internal/access"
	"weldflow-api/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrRecordNotFound = access.ErrRecordNotFound
	ErrInvalidCursor  = errors.New("invalid cursor")
)

const recordColumns = `
	id, kind, user_id, workspace_type, company_id, factory_id, is_shared, access_level,
	code, title, status, data, attachments_size, created_at, updated_at, deleted_at`

// RecordRepository stores every business entity kind in business_records.
// Reads are always constrained by an access.Filter.
type RecordRepository struct {
	pool *pgxpool.Pool
}

func NewRecordRepository(pool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{pool: pool}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	var data []byte
	err := row.Scan(
		&rec.ID, &rec.Kind, &rec.UserID, &rec.WorkspaceType, &rec.CompanyID, &rec.FactoryID,
		&rec.IsShared, &rec.AccessLevel, &rec.Code, &rec.Title, &rec.Status, &data,
		&rec.AttachmentsSize, &rec.CreatedAt, &rec.UpdatedAt, &rec.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Data = map[string]interface{}{}
	if err := unmarshalJSONB(data, &rec.Data); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new record. Scope columns must already be stamped.
func (r *RecordRepository) Create(ctx context.Context, rec *domain.Record) error {
	data, err := marshalJSONB(rec.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO business_records (
			id, kind, user_id, workspace_type, company_id, factory_id, is_shared, access_level,
			code, title, status, data, attachments_size
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		rec.ID, rec.Kind, rec.UserID, rec.WorkspaceType, rec.CompanyID, rec.FactoryID,
		rec.IsShared, rec.AccessLevel, rec.Code, rec.Title, rec.Status, data, rec.AttachmentsSize,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// Get returns a visible, non-deleted record of the given kind.
// IDOR protection: rows outside the filter are reported as not found.
func (r *RecordRepository) Get(ctx context.Context, f access.Filter, kind domain.RecordKind, id string) (*domain.Record, error) {
	scope, args := f.SQL("", 3)
	query := `SELECT ` + recordColumns + `
		FROM business_records
		WHERE id = $1 AND kind = $2 AND deleted_at IS NULL AND ` + scope

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, append([]any{id, kind}, args...)...))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// List returns visible records with cursor pagination on created_at.
func (r *RecordRepository) List(ctx context.Context, f access.Filter, params domain.ListRecordsParams) ([]domain.Record, string, error) {
	scope, args := f.SQL("", 2)
	query := `SELECT ` + recordColumns + `
		FROM business_records
		WHERE kind = $1 AND deleted_at IS NULL AND ` + scope
	args = append([]any{params.Kind}, args...)
	argIdx := len(args) + 1

	// Filtros opcionais
	if params.Status != nil {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, *params.Status)
		argIdx++
	}

	if params.FactoryID != nil {
		query += fmt.Sprintf(` AND factory_id = $%d`, argIdx)
		args = append(args, *params.FactoryID)
		argIdx++
	}

	if params.Query != nil && *params.Query != "" {
		query += fmt.Sprintf(` AND (code ILIKE $%d OR title ILIKE $%d)`, argIdx, argIdx)
		args = append(args, "%"+strings.TrimSpace(*params.Query)+"%")
		argIdx++
	}

	cursor, err := parseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		query += fmt.Sprintf(` AND created_at < $%d`, argIdx)
		args = append(args, *cursor)
		argIdx++
	}

	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, params.Limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.Record, 0, params.Limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, "", fmt.Errorf("scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate records: %w", err)
	}

	var nextCursor string
	if len(records) > params.Limit {
		nextCursor = formatCursor(records[params.Limit-1].CreatedAt)
		records = records[:params.Limit]
	}

	return records, nextCursor, nil
}

// Update persists the mutable payload columns. Scope columns are never written.
func (r *RecordRepository) Update(ctx context.Context, rec *domain.Record) error {
	data, err := marshalJSONB(rec.Data)
	if err != nil {
		return err
	}

	query := `
		UPDATE business_records
		SET code = $2, title = $3, status = $4, access_level = $5, is_shared = $6,
		    data = $7, attachments_size = $8, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`

	err = r.pool.QueryRow(ctx, query,
		rec.ID, rec.Code, rec.Title, rec.Status, rec.AccessLevel, rec.IsShared, data, rec.AttachmentsSize,
	).Scan(&rec.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

// SoftDelete marks the record deleted. Deleted rows stop counting against quota.
func (r *RecordRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE business_records SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// PurgeDeleted hard-deletes rows soft-deleted before cutoff. Rows referenced
// by an approval instance are kept so the approval trail stays intact.
func (r *RecordRepository) PurgeDeleted(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM business_records b
		WHERE b.deleted_at IS NOT NULL AND b.deleted_at < $1
		  AND NOT EXISTS (SELECT 1 FROM approval_instances a WHERE a.document_id = b.id)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge deleted records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountOwned counts non-deleted rows of the given kinds owned by the tenant.
func (r *RecordRepository) CountOwned(ctx context.Context, f access.Filter, kinds []domain.RecordKind) (int64, error) {
	owned, args := f.OwnedSQL("", 2)
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	query := `SELECT COUNT(*) FROM business_records
		WHERE kind = ANY($1) AND deleted_at IS NULL AND ` + owned

	var n int64
	if err := r.pool.QueryRow(ctx, query, append([]any{names}, args...)...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// SumAttachments returns the bytes of attachments held by the tenant.
func (r *RecordRepository) SumAttachments(ctx context.Context, f access.Filter) (int64, error) {
	owned, args := f.OwnedSQL("", 1)
	query := `SELECT COALESCE(SUM(attachments_size), 0)::BIGINT FROM business_records
		WHERE deleted_at IS NULL AND ` + owned

	var n int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sum attachments: %w", err)
	}
	return n, nil
}

// setStatusTx updates the document status inside an approval transaction.
func setStatusTx(ctx context.Context, tx pgx.Tx, id string, status domain.RecordStatus) error {
	tag, err := tx.Exec(ctx,
		`UPDATE business_records SET status = $2, updated_at = $3 WHERE id = $1 AND deleted_at IS NULL`,
		id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}
