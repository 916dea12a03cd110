package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"weldflow-api/internal/domain"
	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/http/middleware"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := logger.SetLoggerInContext(req.Context(), logger.Nop())
	return req.WithContext(logger.InitRootErrorContext(ctx))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httperr.ErrorDetail {
	t.Helper()
	var resp httperr.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	assert.False(t, resp.OK)
	return *resp.Error
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantOK     bool
		wantCode   string
		wantFields map[string]string
	}{
		{name: "valid", body: `{"code":"WPS-1","title":"Root pass"}`, wantOK: true},
		{name: "malformed", body: `{"code":`, wantCode: httperr.ErrCodeInvalidFormat},
		{name: "unknown field", body: `{"code":"WPS-1","title":"x","owner":"me"}`, wantCode: httperr.ErrCodeInvalidFormat},
		{
			name:       "missing required",
			body:       `{"code":"WPS-1"}`,
			wantCode:   httperr.ErrCodeValidationError,
			wantFields: map[string]string{"title": "required"},
		},
		{
			name:       "bad enum",
			body:       `{"code":"WPS-1","title":"x","accessLevel":"everyone"}`,
			wantCode:   httperr.ErrCodeValidationError,
			wantFields: map[string]string{"accessLevel": "oneof=private factory company public"},
		},
		{
			name:       "attachments size above cap",
			body:       `{"code":"WPS-1","title":"x","attachmentsSize":9223372036854775807}`,
			wantCode:   httperr.ErrCodeValidationError,
			wantFields: map[string]string{"attachmentsSize": "lte=1099511627776"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			var dst domain.CreateRecordRequest
			ok := decodeBody(rec, newRequest(http.MethodPost, "/", tt.body), &dst)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, "WPS-1", dst.Code)
				return
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, detail.Code)
			if tt.wantFields != nil {
				assert.Equal(t, tt.wantFields, detail.Fields)
			}
		})
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query  string
		want   int
		wantOK bool
	}{
		{query: "", want: 0, wantOK: true},
		{query: "limit=25", want: 25, wantOK: true},
		{query: "limit=100", want: 100, wantOK: true},
		{query: "limit=0"},
		{query: "limit=101"},
		{query: "limit=ten"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			got, ok := parseLimit(rec, newRequest(http.MethodGet, "/?"+tt.query, ""))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				assert.Equal(t, httperr.ErrCodeInvalidLimit, decodeError(t, rec).Code)
			}
		})
	}
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{err: service.ErrRecordNotFound, wantStatus: http.StatusNotFound, wantCode: httperr.ErrCodeNotFound},
		{err: fmt.Errorf("create wps: %w", domain.ErrQuotaExceeded), wantStatus: http.StatusForbidden, wantCode: httperr.ErrCodeQuotaExceeded},
		{err: domain.ErrRecordLocked, wantStatus: http.StatusConflict, wantCode: httperr.ErrCodeRecordLocked},
		{err: domain.ErrNotYourTurn, wantStatus: http.StatusForbidden, wantCode: httperr.ErrCodeNotYourTurn},
		{err: service.ErrRoleRequired, wantStatus: http.StatusForbidden, wantCode: httperr.ErrCodeRoleRequired},
		{err: domain.ErrInvalidWorkflow, wantStatus: http.StatusBadRequest, wantCode: httperr.ErrCodeInvalidWorkflow},
		{err: service.ErrDefaultWorkflowConflict, wantStatus: http.StatusConflict, wantCode: httperr.ErrCodeDefaultWorkflowExists},
		{err: service.ErrPermissionDenied, wantStatus: http.StatusForbidden, wantCode: httperr.ErrCodeForbidden},
		{err: errors.New("connection reset"), wantStatus: http.StatusInternalServerError, wantCode: httperr.ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			req := newRequest(http.MethodGet, "/", "")
			rec := httptest.NewRecorder()
			handleServiceError(rec, req.Context(), logger.Nop(), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
			if tt.wantStatus == http.StatusInternalServerError {
				assert.Equal(t, tt.err, logger.GetRootError(req.Context()))
			}
		})
	}
}

func TestRecordHandler_RejectsBeforeService(t *testing.T) {
	h := NewRecordHandler(nil, nil)

	r := chi.NewRouter()
	r.Get("/records/{kind}", h.ListRecords)
	r.Post("/records/{kind}", h.CreateRecord)

	t.Run("unknown kind", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, newRequest(http.MethodGet, "/records/invoices", ""))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, httperr.ErrCodeInvalidKind, decodeError(t, rec).Code)
	})

	t.Run("no workspace context", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, newRequest(http.MethodGet, "/records/wps", ""))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		req := newRequest(http.MethodGet, "/records/wps?status=lost", "")
		req = req.WithContext(middleware.SetWorkspaceContextForTesting(req.Context(), domain.NewPersonalContext("u1")))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, httperr.ErrCodeInvalidStatus, decodeError(t, rec).Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := newRequest(http.MethodPost, "/records/wps", `{"title":""}`)
		req = req.WithContext(middleware.SetWorkspaceContextForTesting(req.Context(), domain.NewPersonalContext("u1")))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, httperr.ErrCodeValidationError, decodeError(t, rec).Code)
	})
}
