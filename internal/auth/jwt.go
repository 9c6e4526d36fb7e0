// Package auth is the identity provider side of the API: GitHub sign-in, the
// signed session token that carries the caller's external identity, and the
// middleware that turns a request into an identity.Caller.
//
// Session tokens are HS256 JWTs. The "sub" claim holds the external subject
// ("github:<id>") and "name" the display name. The server never looks a
// token up; the signature is the only check.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hypeshelf/hypeshelf/internal/identity"
)

const issuer = "hypeshelf"

// DefaultSessionTTL is used when NewTokenService gets a non-positive ttl.
const DefaultSessionTTL = 24 * time.Hour

// TokenService signs and verifies session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService requires a secret of at least 16 characters.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

type claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TTL is how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Generate issues a token for caller valid for the service TTL.
func (s *TokenService) Generate(caller identity.Caller) (string, error) {
	return s.GenerateWithDuration(caller, s.ttl)
}

// GenerateWithDuration issues a token valid for d. A negative d yields an
// already expired token, which tests use.
func (s *TokenService) GenerateWithDuration(caller identity.Caller, d time.Duration) (string, error) {
	if !caller.Authenticated() {
		return "", errors.New("auth: cannot issue a token without a subject")
	}

	now := time.Now()
	c := claims{
		Name: caller.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   caller.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate verifies tokenStr and returns the caller it was issued for.
// Only HS256 tokens from this issuer with an expiry are accepted.
func (s *TokenService) Validate(tokenStr string) (identity.Caller, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return identity.Caller{}, fmt.Errorf("auth: token expired")
		}
		return identity.Caller{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return identity.Caller{}, fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" {
		return identity.Caller{}, fmt.Errorf("auth: token has no subject")
	}

	return identity.Caller{Subject: c.Subject, Name: c.Name}, nil
}
