package testutil

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/auth"
)

// JWTTestHelper provides utilities for JWT testing
type JWTTestHelper struct {
	Secret []byte
}

// NewJWTTestHelper creates a new JWT test helper with a default test secret
func NewJWTTestHelper() *JWTTestHelper {
	return &JWTTestHelper{
		Secret: []byte("test-secret-for-unit-tests"),
	}
}

// GenerateValidJWT generates a valid session token for testing
func (h *JWTTestHelper) GenerateValidJWT(userID string, verified bool) (string, error) {
	return auth.GenerateJWT(userID, userID+"@example.com", verified, h.Secret, time.Hour)
}

// GenerateExpiredJWT generates an expired session token for testing
func (h *JWTTestHelper) GenerateExpiredJWT(userID string) (string, error) {
	claims := &auth.Claims{
		UserID:   userID,
		Verified: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)), // Expired 1 hour ago
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.Secret)
}

// GenerateJWTWithWrongSecret generates a token signed with a different secret
func (h *JWTTestHelper) GenerateJWTWithWrongSecret(userID string) (string, error) {
	return auth.GenerateJWT(userID, "", true, []byte("wrong-secret"), time.Hour)
}

// ValidateJWT validates a token with the helper's secret
func (h *JWTTestHelper) ValidateJWT(token string) (*auth.Claims, error) {
	return auth.ValidateJWT(token, h.Secret)
}
