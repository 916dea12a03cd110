package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims represents the JWT claims issued by the identity provider.
// The user id travels in the standard "sub" claim; the workspace is chosen
// per request through the X-Workspace-Id header.
type CustomClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user id.
func (c *CustomClaims) UserID() string {
	return c.Subject
}

// Validate performs additional validation on custom claims
func (c *CustomClaims) Validate() error {
	if c.Subject == "" {
		return jwt.ErrTokenInvalidClaims
	}
	return nil
}
