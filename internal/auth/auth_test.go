package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, Claims{
		ID:    "u1",
		Role:  "HOST",
		Email: "host@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	identity, err := v.Verify(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UserID != "u1" {
		t.Errorf("expected user u1, got %q", identity.UserID)
	}
	if identity.Role != RoleHost {
		t.Errorf("expected role HOST, got %q", identity.Role)
	}
	if identity.Name != "host@example.com" {
		t.Errorf("expected name host@example.com, got %q", identity.Name)
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, Claims{
		ID:   "u1",
		Role: "VIEWER",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	if _, err := v.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, "other-secret", Claims{ID: "u1", Role: "VIEWER"})

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	v := NewVerifier(testSecret)
	if _, err := v.Verify("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, Claims{ID: "u1", Role: "ADMIN"})

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for unknown role, got %v", err)
	}
}

func TestVerifyRejectsMissingID(t *testing.T) {
	v := NewVerifier(testSecret)
	token := signToken(t, testSecret, Claims{Role: "HOST"})

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for missing id, got %v", err)
	}
}

func TestRoleComplement(t *testing.T) {
	if RoleHost.Complement() != RoleViewer {
		t.Error("host complement should be viewer")
	}
	if RoleViewer.Complement() != RoleHost {
		t.Error("viewer complement should be host")
	}
}

func TestRoleValid(t *testing.T) {
	if !RoleHost.Valid() || !RoleViewer.Valid() {
		t.Error("built-in roles must be valid")
	}
	if Role("ADMIN").Valid() {
		t.Error("unknown role must be invalid")
	}
	if Role("").Valid() {
		t.Error("empty role must be invalid")
	}
}
