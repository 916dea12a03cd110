package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates a token for one issuer.
type TokenValidator interface {
	Validate(tokenString string, kid string) (*CustomClaims, error)
}

// SignedValidator verifies tokens of a single issuer signed with a single
// algorithm. Tokens signed with any other algorithm are rejected before the
// key is used.
type SignedValidator struct {
	keyStore  *KeyStore
	issuer    string
	alg       string
	clockSkew time.Duration
}

// NewHS256Validator validates tokens signed with the issuer's shared secret.
func NewHS256Validator(keyStore *KeyStore, issuer string, clockSkew time.Duration) *SignedValidator {
	return &SignedValidator{keyStore: keyStore, issuer: issuer, alg: AlgHS256, clockSkew: clockSkew}
}

// NewRS256Validator validates tokens signed by the SSO's RSA key.
func NewRS256Validator(keyStore *KeyStore, issuer string, clockSkew time.Duration) *SignedValidator {
	return &SignedValidator{keyStore: keyStore, issuer: issuer, alg: AlgRS256, clockSkew: clockSkew}
}

func (v *SignedValidator) Validate(tokenString string, kid string) (*CustomClaims, error) {
	key, ok := v.keyStore.lookup(v.issuer, kid, v.alg)
	if !ok {
		return nil, NewAuthError(AuthFailureUnknown, fmt.Sprintf("key not found for issuer %s and kid %s", v.issuer, kid), nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{},
		func(*jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{v.alg}),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, NewAuthError(AuthFailureUnknown, fmt.Sprintf("invalid token: valid=%v", token.Valid), nil)
	}
	if err := claims.Validate(); err != nil {
		return nil, NewAuthError(AuthFailureUnknown, "invalid claims", err)
	}
	return claims, nil
}
