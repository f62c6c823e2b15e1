package http

import (
	"context"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/flash"
	"github.com/karloscodes/cartridge/inertia"
	"log/slog"

	"novasite/internal/cms"
)

func publicContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

// renderCollectionPage fetches one collection and renders the page with it.
// A content-service outage degrades to an empty list, never a 500: the
// marketing site stays up even when the CMS is down.
func renderCollectionPage(ctx *cartridge.Context, component, collection string, query url.Values) error {
	reqCtx, cancel := publicContext()
	defer cancel()

	records, err := SiteClient(ctx.Logger).List(reqCtx, collection, query)
	if err != nil {
		ctx.Logger.Error("Failed to load public content",
			slog.String("collection", collection), slog.Any("error", err))
		records = nil
	}

	rows := make([]map[string]any, len(records))
	for i, record := range records {
		rows[i] = map[string]any(record)
	}

	return inertia.RenderPage(ctx.Ctx, component, inertia.Props{
		"items": rows,
	})
}

// HomeIndexAction renders the landing page.
func HomeIndexAction(ctx *cartridge.Context) error {
	return inertia.RenderPage(ctx.Ctx, "Home", inertia.Props{})
}

// ProductsIndexAction renders the product overview page.
func ProductsIndexAction(ctx *cartridge.Context) error {
	return inertia.RenderPage(ctx.Ctx, "Products", inertia.Props{})
}

// BlogIndexAction lists published blog posts.
func BlogIndexAction(ctx *cartridge.Context) error {
	return renderCollectionPage(ctx, "Blog/Index", cms.CollectionBlogs, nil)
}

// BlogShowAction renders a single post by slug or documentId.
func BlogShowAction(ctx *cartridge.Context) error {
	reqCtx, cancel := publicContext()
	defer cancel()

	record, err := SiteClient(ctx.Logger).Get(reqCtx, cms.CollectionBlogs, ctx.Ctx.Params("ref"))
	if err != nil {
		ctx.Logger.Warn("Blog post not found", slog.String("ref", ctx.Ctx.Params("ref")), slog.Any("error", err))
		return fiber.NewError(fiber.StatusNotFound, "Post not found")
	}

	return inertia.RenderPage(ctx.Ctx, "Blog/Show", inertia.Props{
		"entry": map[string]any(record),
	})
}

// ResourcesIndexAction lists downloadable resources.
func ResourcesIndexAction(ctx *cartridge.Context) error {
	return renderCollectionPage(ctx, "Resources", cms.CollectionResources, nil)
}

// ResourceDownloadAction counts the download in the content service and
// redirects to the asset URL it returns.
func ResourceDownloadAction(ctx *cartridge.Context) error {
	slug := ctx.Ctx.Params("slug")

	reqCtx, cancel := publicContext()
	defer cancel()

	assetURL, err := SiteClient(ctx.Logger).DownloadResource(reqCtx, slug)
	if err != nil {
		ctx.Logger.Warn("Resource download failed", slog.String("slug", slug), slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "This download is currently unavailable")
		return ctx.Redirect("/resources", fiber.StatusFound)
	}

	return ctx.Redirect(assetURL, fiber.StatusFound)
}

// CareersIndexAction lists open positions.
func CareersIndexAction(ctx *cartridge.Context) error {
	return renderCollectionPage(ctx, "Careers", cms.CollectionJobs, nil)
}

// WebinarsIndexAction lists upcoming and past webinars.
func WebinarsIndexAction(ctx *cartridge.Context) error {
	return renderCollectionPage(ctx, "Webinars", cms.CollectionWebinars, nil)
}

// EventsIndexAction lists company events.
func EventsIndexAction(ctx *cartridge.Context) error {
	return renderCollectionPage(ctx, "Events", cms.CollectionEvents, nil)
}

// ContactIndexAction renders the contact form.
func ContactIndexAction(ctx *cartridge.Context) error {
	return inertia.RenderPage(ctx.Ctx, "Contact", inertia.Props{})
}

// submitPublicForm relays one public form submission into a collection.
func submitPublicForm(ctx *cartridge.Context, collection, successMsg, returnPath string, required []string) error {
	fields := formFields(ctx)
	for _, name := range required {
		if fields[name] == "" {
			flash.SetFlash(ctx.Ctx, "error", "Please fill in all required fields")
			return ctx.Redirect(returnPath, fiber.StatusFound)
		}
	}

	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		payload[k] = v
	}

	reqCtx, cancel := publicContext()
	defer cancel()

	if _, err := SiteClient(ctx.Logger).Create(reqCtx, collection, payload); err != nil {
		ctx.Logger.Error("Public form submission failed",
			slog.String("collection", collection), slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", "Something went wrong, please try again")
		return ctx.Redirect(returnPath, fiber.StatusFound)
	}

	flash.SetFlash(ctx.Ctx, "success", successMsg)
	return ctx.Redirect(returnPath, fiber.StatusFound)
}

// ContactSubmitAction records a contact inquiry.
func ContactSubmitAction(ctx *cartridge.Context) error {
	return submitPublicForm(ctx, cms.CollectionInquiries,
		"Thanks for reaching out, we will get back to you soon", "/contact",
		[]string{"name", "email", "message"})
}

// PartnerSubmitAction records a partner-program request.
func PartnerSubmitAction(ctx *cartridge.Context) error {
	return submitPublicForm(ctx, cms.CollectionPartnerRequests,
		"Thanks, our partner team will be in touch", "/partners",
		[]string{"company", "name", "email"})
}

// CareersApplyAction records a job application.
func CareersApplyAction(ctx *cartridge.Context) error {
	return submitPublicForm(ctx, cms.CollectionApplications,
		"Application received, thank you", "/careers",
		[]string{"name", "email", "position"})
}

// PartnersIndexAction renders the partner program page.
func PartnersIndexAction(ctx *cartridge.Context) error {
	return inertia.RenderPage(ctx.Ctx, "Partners", inertia.Props{})
}

// NewsletterSubscribeAction records a newsletter subscription.
func NewsletterSubscribeAction(ctx *cartridge.Context) error {
	return submitPublicForm(ctx, cms.CollectionSubscribers,
		"You are subscribed", "/",
		[]string{"email"})
}

// NewsletterUnsubscribeAction handles the one-click unsubscribe link sent
// in every newsletter.
func NewsletterUnsubscribeAction(ctx *cartridge.Context) error {
	token := ctx.Query("token", "")
	if token == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing unsubscribe token")
	}

	reqCtx, cancel := publicContext()
	defer cancel()

	if err := SiteClient(ctx.Logger).Unsubscribe(reqCtx, token); err != nil {
		ctx.Logger.Warn("Unsubscribe failed", slog.Any("error", err))
		return inertia.RenderPage(ctx.Ctx, "Newsletter/Unsubscribe", inertia.Props{
			"error": "This unsubscribe link is invalid or already used",
		})
	}

	return inertia.RenderPage(ctx.Ctx, "Newsletter/Unsubscribe", inertia.Props{
		"done": true,
	})
}
