// Package auth logs in against the CRM API and keeps the resulting
// session in a Store. Token verification stays on the server; the client
// only reads the token's expiry to drop sessions that can no longer work.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidCredentials is returned when the API rejects an email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoSession is returned when no session is stored.
	ErrNoSession = errors.New("not logged in")

	// ErrSessionExpired is returned when the stored token has expired.
	ErrSessionExpired = errors.New("session expired")
)

// User is the account behind a session.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Session is a persisted {token, user} pair.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`

	// ExpiresAt is read from the token's exp claim; zero when absent.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session's token has expired at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// TTL returns the remaining lifetime, or 0 for sessions without an expiry.
func (s *Session) TTL(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() {
		return 0
	}
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// TokenExpiry reads the exp claim without verifying the signature.
// Tokens that are not JWTs, or carry no exp, have a zero expiry.
func TokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("parse token: %w", err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
