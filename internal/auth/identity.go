// ABOUTME: Current-viewer identity extracted from the bearer token's JWT claims
// ABOUTME: Claims are read unverified - signature checking is the broker's job

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Role is the viewer's role as asserted by the backend-issued token.
type Role string

const (
	RoleUser     Role = "USER"
	RoleEmployee Role = "EMPLOYEE"
	RoleAdmin    Role = "ADMIN"
)

// Identity describes the current viewer. It drives self-message
// suppression (UserID) and client-side gating of employee operations.
type Identity struct {
	UserID    int64
	Email     string
	Role      Role
	ExpiresAt time.Time
}

// IsEmployee reports whether the viewer may take support-side actions
// (assigning and closing conversations).
func (i *Identity) IsEmployee() bool {
	return i.Role == RoleEmployee || i.Role == RoleAdmin
}

// IdentityFromToken extracts the viewer identity from a JWT without
// verifying its signature; this client never trusts the token for
// authorization, only for display and self-suppression. An expired
// token returns ErrExpiredToken so callers can treat the credential
// as absent instead of attempting a doomed connect.
func IdentityFromToken(tokenString string) (*Identity, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	uid, ok := claims["uid"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: uid", ErrMissingClaim)
	}

	identity := &Identity{UserID: int64(uid)}

	if sub, ok := claims["sub"].(string); ok {
		identity.Email = sub
	}
	if role, ok := claims["role"].(string); ok {
		identity.Role = Role(role)
	}
	if exp, ok := claims["exp"].(float64); ok {
		identity.ExpiresAt = time.Unix(int64(exp), 0)
		if time.Now().After(identity.ExpiresAt) {
			return nil, ErrExpiredToken
		}
	}

	return identity, nil
}
