package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"expertly/cmd/identity"
	"expertly/cmd/identity/ids"
)

// Token kinds carried in the "typ" claim. Verification is kind-strict.
const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Claims is the payload of both token kinds.
type Claims struct {
	Role string `json:"role"`
	Kind string `json:"typ"`
	jwt.RegisteredClaims
}

// AccountID is the JWT subject.
func (c *Claims) AccountID() string { return c.Subject }

func signToken(secret []byte, acc identity.Account, kind string, issuer string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	jti, err := ids.NewULID(now)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: token id: %w", err)
	}

	expiresAt := now.Add(ttl)
	claims := &Claims{
		Role: string(acc.Role),
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("session: sign %s token: %w", kind, err)
	}
	return signed, expiresAt, nil
}

func verifyToken(secret []byte, raw, kind, issuer string, now func() time.Time) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
