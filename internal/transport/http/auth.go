package http

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid authentication token")

// TokenVerifier resolves the opaque user identity from an HS256 bearer token.
// A nil verifier means the deployment runs without token auth and connections
// fall back to the caller-supplied identity (guest mode).
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(secret)}
}

// Identity validates the token and returns its subject claim.
func (v *TokenVerifier) Identity(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", errInvalidToken
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errInvalidToken
	}
	return sub, nil
}
