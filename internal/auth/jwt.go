// Package auth is the session gateway: it signs users in (passwordless email
// link or Google), issues session tokens, and tells listeners when someone
// signs in or out.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The user asks for a magic link (POST /auth/magic-link) or is sent to
//     Google (GET /auth/google/login)
//  2. The callback proves the identity: a one-time link token, or an OAuth code
//  3. The Gateway resolves the user ID by email and issues a JWT session
//  4. The handler stores the JWT in an HttpOnly "token" cookie
//  5. On later requests the middleware validates the cookie and puts the
//     model.Session into the request context
//
// WHY JWT?
// The session is stateless: user ID, email, display name and expiry all live
// inside the signed token, so reading the current session needs no DB lookup.
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"<user id>","email":"...","name":"...","exp":...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/planet-hub/internal/model"
)

const issuer = "planet-hub"

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService. The secret should be at least 32
// bytes of random data in production, e.g. JWT_SECRET=$(openssl rand -hex 32).
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: session lifetime must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// TTL is the lifetime of tokens from Generate; the cookie uses the same value.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// claims is the JWT payload. "sub" carries the user ID; the profile fields
// ride along so a session can be rebuilt without touching the users table.
type claims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Generate signs a token for the session, valid for the service's TTL.
// The returned session carries the token's expiry.
func (s *TokenService) Generate(session model.Session) (string, model.Session, error) {
	return s.GenerateWithDuration(session, s.ttl)
}

// GenerateWithDuration is Generate with an explicit lifetime. A negative
// duration yields an already-expired token, which tests rely on.
func (s *TokenService) GenerateWithDuration(session model.Session, d time.Duration) (string, model.Session, error) {
	if session.UserID == "" {
		return "", model.Session{}, errors.New("auth: cannot sign a session without a user id")
	}
	now := time.Now()
	expires := now.Add(d)

	c := claims{
		Email:   session.Email,
		Name:    session.FullName,
		Picture: session.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", model.Session{}, fmt.Errorf("auth: signing token: %w", err)
	}

	// NumericDate has second precision; report what the token actually says.
	session.ExpiresAt = c.ExpiresAt.Time
	return signed, session, nil
}

// Validate parses and verifies a token and returns the session inside it.
//
// Checks performed by the jwt library:
//   - signature matches our secret, algorithm is HS256
//   - issuer is ours, exp is present and in the future
func (s *TokenService) Validate(tokenStr string) (model.Session, error) {
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
			return model.Session{}, errors.New("auth: token expired")
		}
		return model.Session{}, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return model.Session{}, errors.New("auth: invalid token claims")
	}
	if c.Subject == "" {
		return model.Session{}, errors.New("auth: token has no subject")
	}

	return model.Session{
		UserID:    c.Subject,
		Email:     c.Email,
		FullName:  c.Name,
		AvatarURL: c.Picture,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}
