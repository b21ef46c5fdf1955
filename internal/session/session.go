// Package session exposes the credential surface the engine consumes.
// Login and logout live outside this library; the engine only reads a
// bearer token and the current user identity derived from it.
package session

import (
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/driftlab/feedsync/internal/model"
)

// TokenSource provides the bearer credential and the identity of the
// logged-in user. Implementations must be safe for concurrent use.
type TokenSource interface {
	// Token returns the current bearer token, or "" when logged out.
	Token() string

	// CurrentUser returns the logged-in user's snapshot. The zero User
	// is returned when no session is active.
	CurrentUser() model.User
}

// Static is a TokenSource with a fixed token and user, mainly for tests
// and the feedtail CLI.
type Static struct {
	AuthToken string
	User      model.User
}

func (s Static) Token() string           { return s.AuthToken }
func (s Static) CurrentUser() model.User { return s.User }

// claims are the token claims the backend issues. Only identity fields
// are read here; signature verification is the backend's job.
type claims struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	jwt.RegisteredClaims
}

// JWTSource derives the current user from the bearer token's claims.
// The token is read through a getter so an external credential store
// (refreshing tokens, logout) stays the owner.
type JWTSource struct {
	getToken func() string

	mu     sync.Mutex
	cached string // token the cached user was parsed from
	user   model.User
}

// NewJWTSource creates a JWTSource reading tokens from getToken.
func NewJWTSource(getToken func() string) *JWTSource {
	return &JWTSource{getToken: getToken}
}

func (s *JWTSource) Token() string { return s.getToken() }

// CurrentUser parses the token claims, caching per token value.
// An unparseable or empty token yields the zero User.
func (s *JWTSource) CurrentUser() model.User {
	tok := s.getToken()
	if tok == "" {
		return model.User{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok == s.cached {
		return s.user
	}

	user, err := userFromToken(tok)
	if err != nil {
		return model.User{}
	}
	s.cached = tok
	s.user = user
	return user
}

// userFromToken extracts the identity claims without verifying the
// signature: the client holds no signing key, and the backend rejects
// forged tokens on every call anyway.
func userFromToken(token string) (model.User, error) {
	var c claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &c); err != nil {
		return model.User{}, fmt.Errorf("parse token: %w", err)
	}
	if c.Subject == "" {
		return model.User{}, fmt.Errorf("token missing subject claim")
	}
	return model.User{
		ID:     c.Subject,
		Name:   c.Name,
		Avatar: c.Avatar,
	}, nil
}
