package http

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestTokenVerifierRoundTrip(t *testing.T) {
	v := NewTokenVerifier("topsecret")

	identity, err := v.Identity(signToken(t, "topsecret", "u42"))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity != "u42" {
		t.Fatalf("expected subject u42, got %q", identity)
	}
}

func TestTokenVerifierRejections(t *testing.T) {
	v := NewTokenVerifier("topsecret")

	if _, err := v.Identity(signToken(t, "wrongsecret", "u42")); err != errInvalidToken {
		t.Fatalf("wrong secret: expected errInvalidToken, got %v", err)
	}
	if _, err := v.Identity("not.a.token"); err != errInvalidToken {
		t.Fatalf("garbage: expected errInvalidToken, got %v", err)
	}
	if _, err := v.Identity(signToken(t, "topsecret", "")); err != errInvalidToken {
		t.Fatalf("empty subject: expected errInvalidToken, got %v", err)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := expired.SignedString([]byte("topsecret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.Identity(signed); err != errInvalidToken {
		t.Fatalf("expired: expected errInvalidToken, got %v", err)
	}
}

func TestEmptySecretDisablesVerification(t *testing.T) {
	if v := NewTokenVerifier(""); v != nil {
		t.Fatalf("expected nil verifier for empty secret")
	}
}
