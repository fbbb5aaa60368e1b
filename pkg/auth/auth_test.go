package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTGenerateValidate(t *testing.T) {
	secret := []byte("s3cr3t")
	token, err := GenerateJWT("user1", "u@example.com", true, secret, time.Minute)
	if err != nil {
		t.Fatalf("generate jwt: %v", err)
	}
	claims, err := ValidateJWT(token, secret)
	if err != nil {
		t.Fatalf("validate jwt: %v", err)
	}
	if claims.UserID != "user1" || !claims.Verified {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestJWTValidationEdgeCases(t *testing.T) {
	secret := []byte("s3cr3t")
	tests := []struct {
		name      string
		token     func() string
		errorType error
	}{
		{
			name: "wrong secret",
			token: func() string {
				tok, _ := GenerateJWT("u", "", true, []byte("other"), time.Minute)
				return tok
			},
			errorType: ErrInvalidJWT,
		},
		{
			name: "expired",
			token: func() string {
				tok, _ := GenerateJWT("u", "", true, secret, -time.Minute)
				return tok
			},
			errorType: ErrExpiredJWT,
		},
		{
			name: "none algorithm",
			token: func() string {
				tok := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u"})
				s, _ := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
				return s
			},
			errorType: ErrInvalidJWT,
		},
		{
			name:      "garbage",
			token:     func() string { return "not-a-token" },
			errorType: ErrInvalidJWT,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateJWT(tt.token(), secret)
			if !errors.Is(err, tt.errorType) {
				t.Fatalf("expected %v, got %v", tt.errorType, err)
			}
		})
	}
}

func TestNewSession(t *testing.T) {
	secret := []byte("s3cr3t")
	token, _ := GenerateJWT("user-9", "", false, secret, time.Minute)

	s, err := NewSession("Bearer "+token, secret)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if s.UserID() != "user-9" || s.Verified() {
		t.Fatalf("unexpected identity %s verified=%v", s.UserID(), s.Verified())
	}

	// Without the secret the claims are still readable.
	s, err = NewSession(token, nil)
	if err != nil || s.UserID() != "user-9" {
		t.Fatalf("expected unverified decode to succeed, got %v", err)
	}

	if _, err := NewSession("", nil); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	expired, _ := GenerateJWT("user-9", "", true, secret, -time.Minute)
	if _, err := NewSession(expired, nil); !errors.Is(err, ErrExpiredJWT) {
		t.Fatalf("expected ErrExpiredJWT, got %v", err)
	}
}
