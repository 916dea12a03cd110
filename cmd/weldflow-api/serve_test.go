package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"weldflow-api/internal/auth"
	"weldflow-api/internal/config"
	"weldflow-api/internal/domain"
	"weldflow-api/internal/http/handler"
	"weldflow-api/internal/http/middleware"
	"weldflow-api/internal/observability/logger"
	"weldflow-api/internal/ratelimit"
	"weldflow-api/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig() *config.Config {
	return &config.Config{
		OTELServiceName:             "weldflow-api-test",
		AppEnv:                      "test",
		JWTHS256Secret:              base64.StdEncoding.EncodeToString([]byte(testSecret)),
		JWTAllowedIssuers:           "weldflow-web",
		JWTAudience:                 "weldflow-api",
		JWTClockSkewSeconds:         30,
		RateLimitPerWorkspacePerMin: 100,
	}
}

type workspaceResolverFunc func(ctx context.Context, userID, workspaceID string) (domain.WorkspaceContext, error)

func (f workspaceResolverFunc) Resolve(ctx context.Context, userID, workspaceID string) (domain.WorkspaceContext, error) {
	return f(ctx, userID, workspaceID)
}

type allowAll struct{}

func (allowAll) Allow(_ context.Context, _ string, limit int) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: true, Limit: limit, Remaining: limit - 1, ResetAt: time.Now().Add(time.Minute)}, nil
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	claims := &auth.CustomClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "weldflow-web",
		Audience:  jwt.ClaimStrings{"weldflow-api"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func newTestRouter(t *testing.T, readiness ...ReadinessCheck) http.Handler {
	t.Helper()
	cfg := testConfig()
	resolver, err := buildTokenResolver(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)

	return buildRouter(RouterDeps{
		Cfg:      cfg,
		Log:      logger.Nop(),
		Resolver: resolver,
		Workspaces: workspaceResolverFunc(func(_ context.Context, userID, workspaceID string) (domain.WorkspaceContext, error) {
			switch workspaceID {
			case "", "personal_" + userID:
				return domain.NewPersonalContext(userID), nil
			case "enterprise_acme":
				return domain.NewEnterpriseContext(userID, "acme", nil), nil
			default:
				return domain.WorkspaceContext{}, service.ErrWorkspaceAccessDenied
			}
		}),
		RateLimiter:      allowAll{},
		Readiness:        readiness,
		WorkspaceHandler: &handler.WorkspaceHandler{},
	})
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "health endpoint should not require auth")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("X-Request-Id"), "req_"), "Request ID should have req_ prefix")
}

func TestHealthEndpoint_PreservesRequestID(t *testing.T) {
	r := newTestRouter(t)

	clientRequestID := "req_1234567890_abcdef123456"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", clientRequestID)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, clientRequestID, w.Header().Get("X-Request-Id"), "X-Request-Id should be preserved from request")
}

func TestReadyEndpoint(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	down := func(context.Context) error { return context.DeadlineExceeded }

	tests := []struct {
		name       string
		checks     []ReadinessCheck
		wantStatus int
		wantBody   string
	}{
		{name: "no checks", wantStatus: http.StatusOK, wantBody: `{"status":"ready"}`},
		{
			name:       "all healthy",
			checks:     []ReadinessCheck{{Name: "database", Check: healthy}, {Name: "redis", Check: healthy}},
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ready"}`,
		},
		{
			name:       "redis down",
			checks:     []ReadinessCheck{{Name: "database", Check: healthy}, {Name: "redis", Check: down}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"error","message":"redis unavailable"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, tt.checks...)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	r := newTestRouter(t)

	for _, path := range []string{"/api/v1/workspaces", "/api/v1/workspaces/current", "/api/v1/quota"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAPI_CurrentWorkspace(t *testing.T) {
	r := newTestRouter(t)
	token := signToken(t, "u1")

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantID     string
	}{
		{name: "defaults to personal", wantStatus: http.StatusOK, wantID: "personal_u1"},
		{name: "explicit enterprise", header: "enterprise_acme", wantStatus: http.StatusOK, wantID: "enterprise_acme"},
		{name: "foreign workspace", header: "enterprise_other", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/workspaces/current", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			if tt.header != "" {
				req.Header.Set(middleware.WorkspaceHeader, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantID == "" {
				return
			}
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantID, body["id"])
			assert.Equal(t, "u1", body["userId"])
			assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))
		})
	}
}

func TestBuildTokenResolver(t *testing.T) {
	t.Run("short secret", func(t *testing.T) {
		cfg := testConfig()
		cfg.JWTHS256Secret = base64.StdEncoding.EncodeToString([]byte("short"))
		_, err := buildTokenResolver(context.Background(), cfg, logger.Nop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 bytes")
	})

	t.Run("not base64", func(t *testing.T) {
		cfg := testConfig()
		cfg.JWTHS256Secret = "%%%"
		_, err := buildTokenResolver(context.Background(), cfg, logger.Nop())
		assert.Error(t, err)
	})

	t.Run("bad RS256 key", func(t *testing.T) {
		cfg := testConfig()
		cfg.JWTPublicKeyRS256 = "not a pem"
		cfg.JWTRS256Issuer = "weldflow-sso"
		_, err := buildTokenResolver(context.Background(), cfg, logger.Nop())
		assert.Error(t, err)
	})

	t.Run("accepts HS256 tokens of an allowed issuer", func(t *testing.T) {
		resolver, err := buildTokenResolver(context.Background(), testConfig(), logger.Nop())
		require.NoError(t, err)

		claims, err := resolver.Resolve(context.Background(), signToken(t, "u1"))
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.UserID())
	})
}

type stubOverdue struct {
	rows []service.OverdueApproval
	err  error
	got  *string
}

func (s *stubOverdue) ListOverdue(_ context.Context, companyID *string) ([]service.OverdueApproval, error) {
	s.got = companyID
	return s.rows, s.err
}

func TestReportOverdue(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &stubOverdue{rows: []service.OverdueApproval{{
		InstanceID:   "inst-1",
		CompanyID:    "acme",
		DocumentType: domain.KindWPS,
		DocumentID:   "wps-9",
		CurrentStep:  2,
		StepName:     "QA manager",
		Deadline:     deadline,
		OverdueBy:    90 * time.Minute,
	}}}

	var out strings.Builder
	company := "acme"
	n, err := reportOverdue(context.Background(), lister, &company, false, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, &company, lister.got)
	assert.Contains(t, out.String(), "inst-1")
	assert.Contains(t, out.String(), "wps/wps-9")
	assert.Contains(t, out.String(), "2026-03-01T12:00:00Z")
	assert.Contains(t, out.String(), "1h30m0s")

	out.Reset()
	n, err = reportOverdue(context.Background(), lister, nil, true, &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	var decoded []service.OverdueApproval
	require.NoError(t, json.Unmarshal([]byte(out.String()), &decoded))
	assert.Equal(t, "inst-1", decoded[0].InstanceID)

	out.Reset()
	n, err = reportOverdue(context.Background(), &stubOverdue{}, nil, false, &out)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, out.String(), "No overdue approvals")

	_, err = reportOverdue(context.Background(), &stubOverdue{err: errors.New("db down")}, nil, false, &out)
	assert.ErrorContains(t, err, "db down")
}
