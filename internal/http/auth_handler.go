package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/crypto"
	"github.com/karloscodes/cartridge/flash"
	"github.com/karloscodes/cartridge/inertia"
	"log/slog"
)

// RenderLoginAction renders the admin login page
func RenderLoginAction(ctx *cartridge.Context) error {
	if ctx.Session.IsAuthenticated(ctx.Ctx) {
		return ctx.Redirect("/admin")
	}

	return inertia.RenderPage(ctx.Ctx, "Login", inertia.Props{})
}

// ProcessLoginAction authenticates the editor against the content service
// and stores the returned bearer token for the admin screens.
func ProcessLoginAction(ctx *cartridge.Context) error {
	email := ctx.FormValue("email")
	password := ctx.FormValue("password")

	if email == "" && password == "" {
		var jsonBody struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := ctx.BodyParser(&jsonBody); err == nil {
			email = jsonBody.Email
			password = jsonBody.Password
		}
	}

	if email == "" || password == "" {
		flash.SetFlash(ctx.Ctx, "error", "Email and password are required")
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	client := AdminClient(ctx.Logger)

	reqCtx, cancel := authContext()
	defer cancel()

	result, err := client.Login(reqCtx, email, password)
	if err != nil {
		// Burn comparable time on failure so a missing account is not
		// distinguishable from a wrong password by response latency.
		dummyHash := "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy" // bcrypt hash of "dummy"
		crypto.VerifyPassword(dummyHash, password)

		ctx.Logger.Debug("Login rejected by content service",
			slog.String("email", email), slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Invalid email or password")
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	if err := ctx.Session.SetSession(ctx.Ctx, result.User.ID()); err != nil {
		ctx.Logger.Error("Failed to set session", slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Login failed")
		return ctx.Redirect("/login", fiber.StatusFound)
	}

	ctx.Logger.Debug("Login successful", slog.String("email", email))
	return ctx.Redirect("/admin", fiber.StatusFound)
}

// LogoutAction clears both the browser session and the stored bearer token.
func LogoutAction(ctx *cartridge.Context) error {
	AdminClient(ctx.Logger).Logout()
	ctx.Session.ClearSession(ctx.Ctx)
	return ctx.Redirect("/login", fiber.StatusFound)
}

func authContext() (ctx context.Context, cancel context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}
