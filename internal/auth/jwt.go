// Package auth covers both halves of credential handling: session tokens for
// our own API and OAuth access tokens for the music providers.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"auxparty/internal/core"
)

// Issuer mints and verifies HS256 session tokens. The subject claim carries
// the user ID; nothing else goes into the token.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

func NewIssuer(cfg core.AuthConfig) *Issuer {
	return &Issuer{
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
	}
}

func (i *Issuer) Issue(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the subject user ID. All
// failure modes collapse into ErrUnauthenticated; callers never distinguish a
// forged token from an expired one.
func (i *Issuer) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return i.secret, nil
		})
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", core.ErrUnauthenticated)
	}
	return claims.Subject, nil
}
