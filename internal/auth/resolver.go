package auth

import (
	"context"
	"fmt"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// KeyResolver routes a token to the validator registered for its issuer.
// The issuer and kid are read from the unverified token only to pick the
// key; the chosen validator then checks the signature.
type KeyResolver struct {
	validators map[string]TokenValidator
	issuers    map[string]struct{}
	audiences  []string
	parser     *jwt.Parser
}

func NewKeyResolver(allowedIssuers []string, allowedAudiences []string) *KeyResolver {
	issuers := make(map[string]struct{}, len(allowedIssuers))
	for _, iss := range allowedIssuers {
		issuers[iss] = struct{}{}
	}
	return &KeyResolver{
		validators: make(map[string]TokenValidator),
		issuers:    issuers,
		audiences:  allowedAudiences,
		parser:     jwt.NewParser(),
	}
}

func (kr *KeyResolver) RegisterValidator(issuer string, validator TokenValidator) {
	kr.validators[issuer] = validator
}

// Resolve verifies tokenString and returns its claims. Every failure is an
// *AuthError except context cancellation.
func (kr *KeyResolver) Resolve(ctx context.Context, tokenString string) (*CustomClaims, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	issuer, kid, err := kr.peek(tokenString)
	if err != nil {
		return nil, NewAuthError(AuthFailureUnknown, "malformed token", err)
	}

	if _, ok := kr.issuers[issuer]; !ok {
		return nil, NewAuthError(AuthFailureInvalidIssuer, fmt.Sprintf("issuer not allowed: %s", issuer), nil)
	}
	validator, ok := kr.validators[issuer]
	if !ok {
		return nil, NewAuthError(AuthFailureInvalidIssuer, fmt.Sprintf("no validator found for issuer: %s", issuer), nil)
	}

	claims, err := validator.Validate(tokenString, kid)
	if err != nil {
		if _, ok := IsAuthError(err); ok {
			return nil, err
		}
		return nil, NewAuthError(AuthFailureUnknown, "token validation failed", err)
	}

	if claims.Issuer != issuer {
		return nil, NewAuthError(AuthFailureInvalidIssuer, fmt.Sprintf("issuer mismatch: expected %s, got %s", issuer, claims.Issuer), nil)
	}
	if !slices.ContainsFunc(claims.Audience, func(aud string) bool { return slices.Contains(kr.audiences, aud) }) {
		return nil, NewAuthError(AuthFailureInvalidAudience, fmt.Sprintf("invalid audience: %v", claims.Audience), nil)
	}
	return claims, nil
}

// peek returns the unverified issuer and kid. A token without kid uses
// DefaultKID.
func (kr *KeyResolver) peek(tokenString string) (issuer, kid string, err error) {
	var claims jwt.RegisteredClaims
	token, _, err := kr.parser.ParseUnverified(tokenString, &claims)
	if err != nil {
		return "", "", err
	}

	kid = DefaultKID
	if v, ok := token.Header["kid"].(string); ok && v != "" {
		kid = v
	}
	return claims.Issuer, kid, nil
}
