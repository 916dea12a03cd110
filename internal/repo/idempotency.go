package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultIdempotencyTTL is how long a stored response is replayed.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyRepo persists replayable write responses in idempotency_keys,
// keyed by (workspace_id, key_hash).
type IdempotencyRepo struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

// NewIdempotencyRepo creates the repo. ttl <= 0 uses DefaultIdempotencyTTL.
func NewIdempotencyRepo(pool *pgxpool.Pool, ttl time.Duration) *IdempotencyRepo {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyRepo{pool: pool, ttl: ttl, now: time.Now}
}

// StoredRequest is one processed write and the response it produced.
type StoredRequest struct {
	WorkspaceID     string
	KeyHash         string
	OriginalKey     string
	Method          string
	Path            string
	Fingerprint     string
	RequestPayload  json.RawMessage
	Status          int
	ResponseBody    json.RawMessage
	ResponseHeaders map[string]string
}

// CachedResponse is what a replay writes back. Fingerprint is empty for
// rows stored before fingerprints existed.
type CachedResponse struct {
	Fingerprint string
	Status      int
	Body        json.RawMessage
	Headers     map[string]string
}

func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Fingerprint identifies a request by method, path and body.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// CheckKey returns the live entry for the key, or nil when there is none.
func (r *IdempotencyRepo) CheckKey(ctx context.Context, workspaceID, keyHash string) (*CachedResponse, error) {
	const q = `
		SELECT request_fingerprint, response_status, response_body, response_headers
		FROM idempotency_keys
		WHERE workspace_id = $1 AND key_hash = $2 AND expires_at > $3`

	var (
		cached  CachedResponse
		body    []byte
		headers []byte
	)
	err := r.pool.QueryRow(ctx, q, workspaceID, keyHash, r.now()).Scan(&cached.Fingerprint, &cached.Status, &body, &headers)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check idempotency key: %w", err)
	}

	cached.Body = body
	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &cached.Headers); err != nil {
			return nil, fmt.Errorf("decode idempotency headers: %w", err)
		}
	}
	return &cached, nil
}

// StoreResult records a response. A concurrent first writer wins.
func (r *IdempotencyRepo) StoreResult(ctx context.Context, req StoredRequest) error {
	headers, err := json.Marshal(req.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("encode idempotency headers: %w", err)
	}

	const q = `
		INSERT INTO idempotency_keys (
			key_hash, workspace_id, original_key, request_method, request_path, request_fingerprint,
			request_payload, response_status, response_body, response_headers, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (workspace_id, key_hash) DO NOTHING`

	_, err = r.pool.Exec(ctx, q,
		req.KeyHash, req.WorkspaceID, req.OriginalKey, req.Method, req.Path, req.Fingerprint,
		jsonbOrNull(req.RequestPayload), req.Status, jsonbOrNull(req.ResponseBody), string(headers),
		r.now().Add(r.ttl),
	)
	if err != nil {
		return fmt.Errorf("store idempotency result: %w", err)
	}
	return nil
}

// CleanupExpired deletes expired keys and returns how many were removed.
func (r *IdempotencyRepo) CleanupExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= $1`, r.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
