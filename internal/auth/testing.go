package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// SetClaimsForTesting injects claims for userID into a context.
// This should only be used in tests to simulate authenticated requests.
func SetClaimsForTesting(ctx context.Context, userID string) context.Context {
	claims := &CustomClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}
	return context.WithValue(ctx, claimsContextKey, claims)
}
