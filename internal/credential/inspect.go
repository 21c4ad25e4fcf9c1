package credential

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what can be read from an access token without verifying it.
type Claims struct {
	Subject   string
	Roles     []string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Expired reports whether the token's exp claim is before now. A token without
// exp never expires.
func (c *Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

type tokenClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Inspect decodes a JWT access token WITHOUT verifying its signature. The
// result is for display only (auth status, doctor); authorization decisions
// always come from the API's identity endpoint.
func Inspect(token string) (*Claims, error) {
	var tc tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &tc); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}

	c := &Claims{
		Subject: tc.Subject,
		Roles:   tc.Roles,
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	if tc.IssuedAt != nil {
		c.IssuedAt = tc.IssuedAt.Time
	}
	return c, nil
}
