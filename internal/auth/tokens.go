// Package auth issues and validates session tokens.
package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBadCredentials is returned when the supplied password does not match.
var ErrBadCredentials = errors.New("auth: bad credentials")

// TokenStore keeps the flat list of active session tokens. Tokens expire
// after the configured TTL; expired entries are pruned lazily on validation.
type TokenStore struct {
	mu       sync.RWMutex
	password string
	ttl      time.Duration
	tokens   map[string]time.Time // token -> expiry

	now func() time.Time // overridable in tests
}

// NewTokenStore creates a store validating against the admin password.
func NewTokenStore(adminPassword string, ttl time.Duration) *TokenStore {
	return &TokenStore{
		password: adminPassword,
		ttl:      ttl,
		tokens:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// Issue returns a new session token when the password matches.
func (s *TokenStore) Issue(password string) (string, error) {
	if password != s.password {
		return "", ErrBadCredentials
	}
	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = s.now().Add(s.ttl)
	s.mu.Unlock()
	return token, nil
}

// IsValid reports whether a token is active and unexpired.
func (s *TokenStore) IsValid(token string) bool {
	s.mu.RLock()
	expiry, ok := s.tokens[token]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if s.now().After(expiry) {
		s.mu.Lock()
		delete(s.tokens, token)
		s.mu.Unlock()
		return false
	}
	return true
}
