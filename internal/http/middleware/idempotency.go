package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"

	"go.uber.org/zap"
)

const maxIdempotencyKeyLen = 255

// replayedHeaders are the response headers kept with a stored response.
var replayedHeaders = []string{"Content-Type", "Location"}

// IdempotencyStore is satisfied by repo.IdempotencyRepo.
type IdempotencyStore interface {
	CheckKey(ctx context.Context, workspaceID, keyHash string) (*repo.CachedResponse, error)
	StoreResult(ctx context.Context, req repo.StoredRequest) error
}

func isWrite(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// IdempotencyMiddleware replays the stored 2xx response of a write whose
// Idempotency-Key was already used in the same workspace. Reusing a key for
// a different method, path or body is a 409.
func IdempotencyMiddleware(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("Idempotency-Key")
			if key == "" || !isWrite(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			log := logger.GetLogger(ctx)
			fields := []zap.Field{logger.Module("idempotency")}

			if len(key) > maxIdempotencyKeyLen {
				httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidParameter, "idempotency key must be 255 characters or less")
				return
			}

			workspaceID, ok := GetWorkspaceID(ctx)
			if !ok {
				log.Error(ctx, "workspace not found in context for idempotency", append(fields, logger.Action("check"))...)
				httperr.InternalError(w, ctx)
				return
			}

			var body []byte
			if r.Body != nil {
				var err error
				if body, err = io.ReadAll(r.Body); err != nil {
					httperr.BadRequest400(w, ctx, httperr.ErrCodeInvalidFormat, "failed to read request body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			keyHash := repo.HashKey(key)
			fingerprint := repo.Fingerprint(r.Method, r.URL.Path, body)
			fields = append(fields, zap.String("key_hash", keyHash))
			w.Header().Set("X-Idempotency-Key-Hash", keyHash)

			cached, err := store.CheckKey(ctx, workspaceID, keyHash)
			if err != nil {
				logger.SetRootError(ctx, err)
				log.Error(ctx, "failed to check idempotency key", append(fields, logger.Action("check"), zap.Error(err))...)
				httperr.InternalError(w, ctx)
				return
			}

			if cached != nil {
				if cached.Fingerprint != "" && cached.Fingerprint != fingerprint {
					log.Warn(ctx, "idempotency key reused for a different request", append(fields, logger.Action("check"))...)
					httperr.Conflict409(w, ctx, httperr.ErrCodeIdempotencyKeyConflict, "idempotency key was already used for a different request")
					return
				}
				log.Info(ctx, "replaying idempotent response", append(fields, logger.Action("replay"), zap.Int("status", cached.Status))...)
				replay(w, cached)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 300 {
				return
			}

			headers := make(map[string]string, len(replayedHeaders))
			for _, h := range replayedHeaders {
				if v := rec.Header().Get(h); v != "" {
					headers[h] = v
				}
			}

			err = store.StoreResult(ctx, repo.StoredRequest{
				WorkspaceID:     workspaceID,
				KeyHash:         keyHash,
				OriginalKey:     key,
				Method:          r.Method,
				Path:            r.URL.Path,
				Fingerprint:     fingerprint,
				RequestPayload:  body,
				Status:          rec.statusCode,
				ResponseBody:    rec.body.Bytes(),
				ResponseHeaders: headers,
			})
			if err != nil {
				log.Error(ctx, "failed to store idempotency result", append(fields, logger.Action("store"), zap.Error(err))...)
			}
		})
	}
}

func replay(w http.ResponseWriter, cached *repo.CachedResponse) {
	for k, v := range cached.Headers {
		w.Header().Set(k, v)
	}
	w.Header().Set("X-Idempotency-Replay", "true")
	w.WriteHeader(cached.Status)
	_, _ = w.Write(cached.Body)
}

// responseRecorder tees the response so it can be stored after the handler
// returns.
type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	body        bytes.Buffer
	wroteHeader bool
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.wroteHeader {
		return
	}
	rr.statusCode = code
	rr.wroteHeader = true
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if !rr.wroteHeader {
		rr.WriteHeader(http.StatusOK)
	}
	rr.body.Write(b)
	return rr.ResponseWriter.Write(b)
}
