package cms

import (
	"context"
	"sync"
	"time"
)

// RefreshFunc exchanges an expired session for a fresh token. Optional.
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// Session is the explicit bearer-token context threaded through the client.
// It replaces ad-hoc storage lookups: the token is set once at login, cleared
// once at logout, and every request reads it from here. A token revoked
// server-side is only detected on the next failing call.
type Session struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	refresh   RefreshFunc
}

// NewSession creates a session with an initial token. An empty token is valid
// and means unauthenticated (public reads are tolerated by the API).
func NewSession(token string, expiresAt time.Time) *Session {
	return &Session{token: token, expiresAt: expiresAt}
}

// WithRefresh installs a refresh hook invoked when the token has expired.
func (s *Session) WithRefresh(fn RefreshFunc) *Session {
	s.mu.Lock()
	s.refresh = fn
	s.mu.Unlock()
	return s
}

// Token returns the current bearer token, refreshing it first when it has
// expired and a refresh hook is installed. Returns "" when unauthenticated
// or when refresh fails; callers treat "" as anonymous.
func (s *Session) Token(ctx context.Context) string {
	s.mu.RLock()
	token, expiresAt, refresh := s.token, s.expiresAt, s.refresh
	s.mu.RUnlock()

	if token == "" {
		return ""
	}
	if expiresAt.IsZero() || time.Now().Before(expiresAt) {
		return token
	}
	if refresh == nil {
		return token // expiry unenforceable without a hook; let the server reject it
	}

	fresh, freshExpiry, err := refresh(ctx)
	if err != nil {
		return ""
	}
	s.Set(fresh, freshExpiry)
	return fresh
}

// Set replaces the token. Called exactly once per login.
func (s *Session) Set(token string, expiresAt time.Time) {
	s.mu.Lock()
	s.token = token
	s.expiresAt = expiresAt
	s.mu.Unlock()
}

// Clear drops the token. Called once per logout. In-flight requests keep the
// token they already read.
func (s *Session) Clear() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

// Authenticated reports whether a token is currently held.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}
