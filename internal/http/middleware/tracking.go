// Package middleware holds the fiber middlewares novasite mounts in front
// of its route handlers.
package middleware

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"novasite/internal/identity"
	"novasite/internal/pkg/useragent"
	"novasite/internal/settings"
	"novasite/internal/tracking"
)

// Locals keys set for downstream handlers.
const (
	LocalVisitorID = "visitor_id"
	LocalSessionID = "session_id"
)

// TrackVisits buffers a page view for every public page render. The
// middleware only writes to the local queue; delivery to the content
// service happens later, so a tracking problem can never break a page.
func TrackVisits(store *identity.Store, dbManager cartridge.DBManager, logger *slog.Logger, clientIP func(*fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodGet {
			return c.Next()
		}
		if store.ConsentDeclined(c) {
			return c.Next()
		}

		ua := useragent.Classify(c.Get("User-Agent"))
		if ua.Bot {
			return c.Next()
		}

		ip := clientIP(c)
		if excluded, err := settings.IsIPExcluded(ip); err == nil && excluded {
			return c.Next()
		}

		visit := tracking.Visit{
			VisitorID:   store.VisitorID(c),
			SessionID:   store.SessionID(c),
			UserAgent:   c.Get("User-Agent"),
			Referrer:    c.Get("Referer"),
			LandingPath: c.Path(),
			IPAddress:   ip,
		}
		c.Locals(LocalVisitorID, visit.VisitorID)
		c.Locals(LocalSessionID, visit.SessionID)

		if _, err := tracking.TrackPageView(dbManager, logger, visit, c.Path(), ""); err != nil {
			logger.Warn("Failed to buffer page view",
				slog.String("path", c.Path()), slog.Any("error", err))
		}

		return c.Next()
	}
}
