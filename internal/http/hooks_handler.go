package http

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"log/slog"

	"novasite/internal/cms"
	"novasite/internal/config"
	"novasite/internal/newsletter"
)

type publishHookPayload struct {
	Event string         `json:"event"`
	Model string         `json:"model"`
	Entry map[string]any `json:"entry"`
}

// CMSPublishHookAction receives the content service's publish webhook and
// queues a newsletter dispatch for freshly published posts. The hook is
// authenticated with the service token.
func CMSPublishHookAction(ctx *cartridge.Context) error {
	cfg := config.GetConfig()
	token := ctx.Get("Authorization")
	expected := "Bearer " + cfg.CMSServiceToken
	if cfg.CMSServiceToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid hook token")
	}

	var payload publishHookPayload
	if err := ctx.BodyParser(&payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid hook payload")
	}

	if payload.Event != "entry.publish" {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	entry := cms.Normalize(payload.Entry)
	ref := entry.Ref()
	if ref == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Hook entry has no identifier")
	}

	if err := newsletter.Enqueue(ctx.DBManager, ctx.Logger, payload.Model, ref); err != nil {
		ctx.Logger.Error("Failed to queue newsletter dispatch",
			slog.String("entry", ref), slog.Any("error", err))
		return fiber.NewError(fiber.StatusInternalServerError, "Could not queue dispatch")
	}

	ctx.Logger.Info("Newsletter dispatch queued",
		slog.String("model", payload.Model), slog.String("entry", ref))
	return ctx.SendStatus(fiber.StatusAccepted)
}
