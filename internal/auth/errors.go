package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// AuthFailureReason is logged with every rejected request and drives the
// public error code.
type AuthFailureReason string

const (
	AuthFailureMissingAuthorization AuthFailureReason = "missing_authorization"
	AuthFailureInvalidScheme        AuthFailureReason = "invalid_scheme"
	AuthFailureInvalidSignature     AuthFailureReason = "invalid_signature"
	AuthFailureInvalidIssuer        AuthFailureReason = "invalid_issuer"
	AuthFailureInvalidAudience      AuthFailureReason = "invalid_audience"
	AuthFailureTokenExpired         AuthFailureReason = "token_expired"
	AuthFailureUnknown              AuthFailureReason = "unknown"
)

type AuthError struct {
	Reason  AuthFailureReason
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func NewAuthError(reason AuthFailureReason, message string, err error) *AuthError {
	return &AuthError{Reason: reason, Message: message, Err: err}
}

// IsAuthError unwraps err into an AuthError.
func IsAuthError(err error) (*AuthError, bool) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// classifyParseError maps jwt parse failures onto a reason. Signature and
// algorithm mismatches both surface as ErrTokenSignatureInvalid.
func classifyParseError(err error) *AuthError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return NewAuthError(AuthFailureTokenExpired, "token expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return NewAuthError(AuthFailureInvalidSignature, "invalid signature", err)
	default:
		return NewAuthError(AuthFailureUnknown, "failed to parse token", err)
	}
}

// maskToken keeps the first 12 characters of a token for logs.
func maskToken(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:12] + "..."
}
