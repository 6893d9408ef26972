package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what can be read from an access token without the signing key.
type TokenInfo struct {
	Subject   string
	Issuer    string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry that is already past.
func (i *TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

type accessClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Inspect decodes the claims of a JWT access token. The signature is not
// checked; the result is for display only.
func Inspect(token string) (*TokenInfo, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("access token is not a readable JWT: %w", err)
	}

	info := &TokenInfo{
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		Roles:   claims.Roles,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
