package auth

import "strings"

// Identity is the authenticated user as seen by the sync engine.
type Identity interface {
	UserID() string
	Verified() bool
}

// Session is the Identity backed by a session token.
type Session struct {
	Token  string
	claims Claims
}

// NewSession builds a session from a bearer token. With a non-empty secret
// the signature is verified; otherwise the claims are only decoded.
func NewSession(token string, secret []byte) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, ErrUnauthenticated
	}

	var (
		claims *Claims
		err    error
	)
	if len(secret) > 0 {
		claims, err = ValidateJWT(token, secret)
	} else {
		claims, err = ReadClaims(token)
	}
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrInvalidJWT
	}
	return &Session{Token: token, claims: *claims}, nil
}

func (s *Session) UserID() string { return s.claims.UserID }

func (s *Session) Verified() bool { return s.claims.Verified }

// StaticIdentity is a fixed identity, used by tools and tests.
type StaticIdentity struct {
	ID         string
	IsVerified bool
}

func (s StaticIdentity) UserID() string { return s.ID }

func (s StaticIdentity) Verified() bool { return s.IsVerified }
