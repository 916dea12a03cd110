package auth

import (
	"context"
	"net/http"
	"strings"

	"weldflow-api/internal/http/httperr"
	"weldflow-api/internal/observability/logger"

	"go.uber.org/zap"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// TokenResolver validates a bearer token and returns its claims.
type TokenResolver interface {
	Resolve(ctx context.Context, tokenString string) (*CustomClaims, error)
}

var reasonCodes = map[AuthFailureReason]string{
	AuthFailureMissingAuthorization: httperr.ErrCodeMissingAuthorization,
	AuthFailureInvalidScheme:        httperr.ErrCodeInvalidScheme,
	AuthFailureInvalidSignature:     httperr.ErrCodeInvalidSignature,
	AuthFailureTokenExpired:         httperr.ErrCodeTokenExpired,
	AuthFailureInvalidIssuer:        httperr.ErrCodeInvalidIssuer,
	AuthFailureInvalidAudience:      httperr.ErrCodeInvalidAudience,
}

func errorCode(reason AuthFailureReason) string {
	if code, ok := reasonCodes[reason]; ok {
		return code
	}
	return httperr.ErrCodeInvalidToken
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively.
func bearerToken(header string) (string, AuthFailureReason, bool) {
	if header == "" {
		return "", AuthFailureMissingAuthorization, false
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.Contains(token, " ") {
		return "", AuthFailureInvalidScheme, false
	}
	return token, "", true
}

// JWTAuthMiddleware validates bearer tokens and injects the claims into the
// request context. The user id is also attached to the logging context.
func JWTAuthMiddleware(resolver TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			reject := func(reason AuthFailureReason, message string, extra ...zap.Field) {
				fields := append([]zap.Field{
					logger.Module("auth"),
					logger.Action("authenticate"),
					zap.String("auth_failure_reason", string(reason)),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
				}, extra...)
				logger.GetLogger(ctx).Warn(ctx, "authentication failed", fields...)
				httperr.Unauthorized401(w, ctx, errorCode(reason), message)
			}

			token, reason, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				message := "invalid authorization scheme, expected Bearer"
				if reason == AuthFailureMissingAuthorization {
					message = "missing authorization header"
				}
				reject(reason, message)
				return
			}

			claims, err := resolver.Resolve(ctx, token)
			if err != nil {
				reason := AuthFailureUnknown
				if authErr, ok := IsAuthError(err); ok {
					reason = authErr.Reason
				}
				reject(reason, "invalid or expired token", zap.String("token_prefix", maskToken(token)), zap.Error(err))
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey, claims)
			ctx = logger.SetUserIDInContext(ctx, claims.UserID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims retrieves claims from context
func GetClaims(ctx context.Context) (*CustomClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*CustomClaims)
	return claims, ok
}
