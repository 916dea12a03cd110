package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]repo.StoredRequest
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{entries: map[string]repo.StoredRequest{}}
}

func (s *memoryIdempotencyStore) CheckKey(_ context.Context, workspaceID, keyHash string) (*repo.CachedResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[workspaceID+"|"+keyHash]
	if !ok {
		return nil, nil
	}
	return &repo.CachedResponse{Fingerprint: e.Fingerprint, Status: e.Status, Body: e.ResponseBody, Headers: e.ResponseHeaders}, nil
}

func (s *memoryIdempotencyStore) StoreResult(_ context.Context, req repo.StoredRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[req.WorkspaceID+"|"+req.KeyHash] = req
	return nil
}

func TestIdempotencyMiddleware(t *testing.T) {
	store := newMemoryIdempotencyStore()
	calls := 0
	h := IdempotencyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(string(body), "bad") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"rec-1"}`))
	}))

	send := func(method, key, body string, wctx domain.WorkspaceContext) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/records/wps", strings.NewReader(body))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		ctx := logger.SetLoggerInContext(req.Context(), logger.Nop())
		req = req.WithContext(SetWorkspaceContextForTesting(ctx, wctx))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	personal := domain.NewPersonalContext("u1")

	first := send(http.MethodPost, "k1", `{"code":"WPS-1"}`, personal)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, 1, calls)

	replay := send(http.MethodPost, "k1", `{"code":"WPS-1"}`, personal)
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("X-Idempotency-Replay"))
	assert.JSONEq(t, `{"id":"rec-1"}`, replay.Body.String())
	assert.Equal(t, 1, calls)

	// keys are scoped to the workspace
	send(http.MethodPost, "k1", `{"code":"WPS-1"}`, domain.NewEnterpriseContext("u1", "c1", nil))
	assert.Equal(t, 2, calls)

	// failed writes are not replayed
	send(http.MethodPost, "k2", `{"code":"bad"}`, personal)
	send(http.MethodPost, "k2", `{"code":"bad"}`, personal)
	assert.Equal(t, 4, calls)

	// no key, no caching
	send(http.MethodPost, "", `{}`, personal)
	send(http.MethodPost, "", `{}`, personal)
	assert.Equal(t, 6, calls)

	// reads bypass the store
	send(http.MethodGet, "k1", "", personal)
	assert.Equal(t, 7, calls)

	tooLong := send(http.MethodPost, strings.Repeat("x", 256), `{}`, personal)
	assert.Equal(t, http.StatusBadRequest, tooLong.Code)
	assert.Equal(t, 7, calls)

	// same key, different body
	reused := send(http.MethodPost, "k1", `{"code":"WPS-2"}`, personal)
	assert.Equal(t, http.StatusConflict, reused.Code)
	assert.Contains(t, reused.Body.String(), "IDEMPOTENCY_KEY_CONFLICT")
	assert.Equal(t, 7, calls)
}

func TestIdempotencyMiddleware_LegacyRowsReplay(t *testing.T) {
	store := newMemoryIdempotencyStore()
	personal := domain.NewPersonalContext("u1")
	wsID := personal.ID()
	store.entries[wsID+"|"+repo.HashKey("old")] = repo.StoredRequest{
		Status:       http.StatusCreated,
		ResponseBody: []byte(`{"id":"rec-9"}`),
	}

	h := IdempotencyMiddleware(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run on replay")
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/records/wps", strings.NewReader(`{"anything":true}`))
	req.Header.Set("Idempotency-Key", "old")
	ctx := logger.SetLoggerInContext(req.Context(), logger.Nop())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req.WithContext(SetWorkspaceContextForTesting(ctx, personal)))

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"id":"rec-9"}`, rr.Body.String())
}

func TestFingerprint(t *testing.T) {
	base := repo.Fingerprint(http.MethodPost, "/api/v1/records/wps", []byte(`{"a":1}`))
	assert.Equal(t, base, repo.Fingerprint(http.MethodPost, "/api/v1/records/wps", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, repo.Fingerprint(http.MethodPut, "/api/v1/records/wps", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, repo.Fingerprint(http.MethodPost, "/api/v1/records/pqr", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, repo.Fingerprint(http.MethodPost, "/api/v1/records/wps", []byte(`{"a":2}`)))
}
