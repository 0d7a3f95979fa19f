// Package auth verifies the bearer tokens that clients present inside the
// WebSocket channel. Tokens are HMAC-signed JWTs issued out of band by the
// account service; this package only verifies and extracts identity claims.
package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is malformed, carries the
	// wrong signing method, or fails signature verification.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("auth: token has expired")
)

// Role is the closed set of capability roles carried in tokens.
type Role string

const (
	// RoleHost may start and end live sessions.
	RoleHost Role = "HOST"

	// RoleViewer may chat and join live sessions.
	RoleViewer Role = "VIEWER"
)

// Valid reports whether r is a recognized role value.
func (r Role) Valid() bool {
	return r == RoleHost || r == RoleViewer
}

// Complement returns the opposite role: the set a freshly authenticated user
// wants to see as "active" (viewers look for hosts and vice versa).
func (r Role) Complement() Role {
	if r == RoleHost {
		return RoleViewer
	}
	return RoleHost
}

// Identity is the authenticated principal extracted from a verified token.
type Identity struct {
	UserID string
	Role   Role
	Name   string // display name (email claim)
}

// Claims mirrors the token payload issued by the account service.
type Claims struct {
	ID    string `json:"id"`
	Role  string `json:"role"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens against the shared signing secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given HMAC signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify checks the token signature and expiry and returns the identity it
// carries. Tokens signed with anything but HMAC are rejected.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" || !Role(claims.Role).Valid() {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID: claims.ID,
		Role:   Role(claims.Role),
		Name:   claims.Email,
	}, nil
}
