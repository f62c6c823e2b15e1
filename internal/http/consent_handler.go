package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"novasite/internal/identity"
)

// ConsentAction records the cookie-consent decision. Declining also drops
// the identity cookies so no further tracking happens.
func ConsentAction(store *identity.Store) func(*cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		decision := ctx.FormValue("decision")
		switch decision {
		case "accept":
			store.SetConsent(ctx.Ctx, true)
		case "decline":
			store.SetConsent(ctx.Ctx, false)
			store.ClearAll(ctx.Ctx)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "Unknown consent decision")
		}
		return ctx.SendStatus(fiber.StatusNoContent)
	}
}
