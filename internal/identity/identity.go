// Package identity issues and persists the durable visitor identifier and
// the shorter-lived session identifier as signed, scoped cookies. It is the
// only writer of these cookies; the tracking service just reads.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// VisitorCookieName holds the durable visitor id (365 days by default).
	VisitorCookieName = "nv_vid"
	// SessionCookieName holds the rolling session id (24 hours by default).
	SessionCookieName = "nv_sid"
	// ConsentCookieName holds the cookie-consent decision ("accepted" or
	// "declined"), 365 days, set by the consent endpoint.
	ConsentCookieName = "nv_consent"
)

// Store mints and verifies the identity cookies. Values are
// "<uuid>.<hmac-sha256 hex>" signed with the configured private key;
// a missing or tampered cookie is treated as absent and regenerated.
type Store struct {
	secret        []byte
	visitorMaxAge time.Duration
	sessionMaxAge time.Duration
	secure        bool
}

// NewStore creates a Store. secure should be true when pages are served over
// HTTPS (production); it controls the Secure cookie attribute.
func NewStore(secret string, visitorMaxAge, sessionMaxAge time.Duration, secure bool) *Store {
	return &Store{
		secret:        []byte(secret),
		visitorMaxAge: visitorMaxAge,
		sessionMaxAge: sessionMaxAge,
		secure:        secure,
	}
}

// VisitorID returns the visitor id from the request cookie, or generates a
// fresh UUIDv4, persists it with the 365-day policy and returns it.
// Idempotent across calls within the cookie's lifetime. There is no error
// path: if the client refuses the cookie, tracking silently degrades to a
// new id per request.
func (s *Store) VisitorID(c *fiber.Ctx) string {
	if id, ok := s.verify(c.Cookies(VisitorCookieName)); ok {
		return id
	}
	id := uuid.NewString()
	s.write(c, VisitorCookieName, id, s.visitorMaxAge)
	return id
}

// SessionID returns the session id from the request cookie, or generates a
// fresh UUIDv4 with the 24-hour policy. Same contract as VisitorID.
func (s *Store) SessionID(c *fiber.Ctx) string {
	if id, ok := s.verify(c.Cookies(SessionCookieName)); ok {
		return id
	}
	id := uuid.NewString()
	s.write(c, SessionCookieName, id, s.sessionMaxAge)
	return id
}

// ClearAll deletes both identity cookies. Used only by explicit reset flows.
func (s *Store) ClearAll(c *fiber.Ctx) {
	for _, name := range []string{VisitorCookieName, SessionCookieName} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Now().Add(-24 * time.Hour),
			Secure:   s.secure,
			HTTPOnly: true,
			SameSite: "Lax",
		})
	}
}

// SetConsent persists the cookie-consent decision for a year.
func (s *Store) SetConsent(c *fiber.Ctx, accepted bool) {
	value := "declined"
	if accepted {
		value = "accepted"
	}
	s.write(c, ConsentCookieName, value, 365*24*time.Hour)
}

// ConsentDeclined reports whether the visitor explicitly declined tracking.
// An absent cookie counts as not declined.
func (s *Store) ConsentDeclined(c *fiber.Ctx) bool {
	raw := c.Cookies(ConsentCookieName)
	if raw == "" {
		return false
	}
	value, ok := s.verify(raw)
	return ok && value == "declined"
}

func (s *Store) write(c *fiber.Ctx, name, value string, maxAge time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    s.sign(value),
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		Secure:   s.secure,
		HTTPOnly: true,
		SameSite: "Lax",
	})
}

func (s *Store) sign(value string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	return value + "." + hex.EncodeToString(mac.Sum(nil))
}

func (s *Store) verify(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	dot := strings.LastIndex(raw, ".")
	if dot <= 0 {
		return "", false
	}
	value, sig := raw[:dot], raw[dot+1:]

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", false
	}
	return value, true
}
