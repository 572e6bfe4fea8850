// ABOUTME: Tests for viewer identity extraction from JWT claims

package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestIdentityFromToken(t *testing.T) {
	tokenString := signToken(t, jwt.MapClaims{
		"sub":  "agent@ycyw.example",
		"uid":  float64(7),
		"role": "EMPLOYEE",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})

	identity, err := IdentityFromToken(tokenString)
	require.NoError(t, err)

	assert.Equal(t, int64(7), identity.UserID)
	assert.Equal(t, "agent@ycyw.example", identity.Email)
	assert.Equal(t, RoleEmployee, identity.Role)
	assert.True(t, identity.IsEmployee())
	assert.WithinDuration(t, time.Now().Add(time.Hour), identity.ExpiresAt, 5*time.Second)
}

func TestIdentityFromToken_Expired(t *testing.T) {
	tokenString := signToken(t, jwt.MapClaims{
		"sub": "customer@ycyw.example",
		"uid": float64(3),
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	_, err := IdentityFromToken(tokenString)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestIdentityFromToken_MissingUserID(t *testing.T) {
	tokenString := signToken(t, jwt.MapClaims{"sub": "nobody@ycyw.example"})

	_, err := IdentityFromToken(tokenString)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestIdentityFromToken_Garbage(t *testing.T) {
	_, err := IdentityFromToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentity_IsEmployee(t *testing.T) {
	assert.False(t, (&Identity{Role: RoleUser}).IsEmployee())
	assert.True(t, (&Identity{Role: RoleEmployee}).IsEmployee())
	assert.True(t, (&Identity{Role: RoleAdmin}).IsEmployee())
}
