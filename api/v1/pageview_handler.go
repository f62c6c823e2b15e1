// Package v1 is the public tracking API consumed by the site's pages:
// page-view ingestion on navigation and a beacon-friendly flush endpoint
// fired on unload.
package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"novasite/internal/cms"
	"novasite/internal/identity"
	"novasite/internal/pkg/useragent"
	"novasite/internal/settings"
	"novasite/internal/tracking"
)

const (
	msgPageViewQueued = "Page view queued"
	errInvalidRequest = "Invalid request"
)

type PageViewParams struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

// Handler wires the tracking endpoints with their dependencies.
type Handler struct {
	store  *identity.Store
	client *cms.Client
}

func NewHandler(store *identity.Store, client *cms.Client) *Handler {
	return &Handler{store: store, client: client}
}

func (h *Handler) visit(ctx *cartridge.Context) tracking.Visit {
	return tracking.Visit{
		VisitorID:   h.store.VisitorID(ctx.Ctx),
		SessionID:   h.store.SessionID(ctx.Ctx),
		UserAgent:   ctx.Get("User-Agent"),
		Referrer:    ctx.Get("Referer"),
		LandingPath: ctx.Path(),
		IPAddress:   getClientIP(ctx.Ctx),
	}
}

func (h *Handler) skip(ctx *cartridge.Context) bool {
	if h.store.ConsentDeclined(ctx.Ctx) {
		return true
	}
	if useragent.Classify(ctx.Get("User-Agent")).Bot {
		return true
	}
	if excluded, err := settings.IsIPExcluded(getClientIP(ctx.Ctx)); err == nil && excluded {
		return true
	}
	return false
}

// TrackPageViewAction appends one page view to the session buffer. No call
// to the content service happens here.
func (h *Handler) TrackPageViewAction(ctx *cartridge.Context) error {
	var params PageViewParams
	if err := ctx.BodyParser(&params); err != nil || params.Path == "" {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{"error": errInvalidRequest})
	}

	if h.skip(ctx) {
		return ctx.Status(http.StatusAccepted).JSON(fiber.Map{"message": msgPageViewQueued})
	}

	visit := h.visit(ctx)
	view, err := tracking.TrackPageView(ctx.DBManager, ctx.Logger, visit, params.Path, params.Title)
	if err != nil {
		ctx.Logger.Error("Failed to queue page view", slog.Any("error", err))
		return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to queue page view"})
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"message":   msgPageViewQueued,
		"timestamp": view.Timestamp,
	})
}

// FlushPageViewsAction delivers the session's buffered views to the content
// service. Fired by navigator.sendBeacon on unload, so it always answers
// 202: delivery failures leave the buffer queued for the background
// flusher and are invisible to the page.
func (h *Handler) FlushPageViewsAction(ctx *cartridge.Context) error {
	if h.skip(ctx) {
		return ctx.SendStatus(http.StatusAccepted)
	}

	visit := h.visit(ctx)

	reqCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tracking.SendPageViews(reqCtx, ctx.DBManager, ctx.Logger, h.client, visit)

	return ctx.SendStatus(http.StatusAccepted)
}
