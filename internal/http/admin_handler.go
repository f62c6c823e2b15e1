package http

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/flash"
	"github.com/karloscodes/cartridge/inertia"
	"log/slog"

	"novasite/internal/cms"
	"novasite/internal/content"
	"novasite/internal/listing"
)

// screenComponents maps entities to their Inertia page components.
var screenComponents = map[string]string{
	"blogs":            "Admin/Blogs",
	"webinars":         "Admin/Webinars",
	"events":           "Admin/Events",
	"jobs":             "Admin/Jobs",
	"resources":        "Admin/Resources",
	"inquiries":        "Admin/Inquiries",
	"partner-requests": "Admin/PartnerRequests",
	"subscribers":      "Admin/Subscribers",
	"applications":     "Admin/Applications",
	"users":            "Admin/Users",
}

type PaginationData struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	TotalItems  int `json:"total_items"`
	PerPage     int `json:"per_page"`
}

func adminContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// newListController builds and loads the controller for one request,
// replaying the query parameters as state transitions.
func newListController(ctx *cartridge.Context, entity string) (*listing.Controller[cms.Record], error) {
	cfg, ok := content.Descriptor(entity, AdminClient(ctx.Logger))
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, "Unknown section")
	}

	controller := listing.New(cfg)

	reqCtx, cancel := adminContext()
	defer cancel()
	if err := controller.Load(reqCtx); err != nil {
		return controller, err
	}

	controller.SetSearchTerm(ctx.Query("search", ""))
	for key, value := range ctx.Ctx.Queries() {
		if filterKey, found := strings.CutPrefix(key, "filter_"); found {
			controller.ToggleFilter(filterKey, value)
		}
	}
	if perPage, err := strconv.Atoi(ctx.Query("per_page", "")); err == nil {
		controller.SetItemsPerPage(perPage)
	}
	if page, err := strconv.Atoi(ctx.Query("page", "1")); err == nil {
		controller.SetPage(page)
	}

	return controller, nil
}

// AdminIndexAction lands on the first admin screen.
func AdminIndexAction(ctx *cartridge.Context) error {
	return ctx.Redirect("/admin/content/blogs", fiber.StatusFound)
}

// ContentListAction renders one entity's list screen.
func ContentListAction(ctx *cartridge.Context) error {
	entity := ctx.Ctx.Params("entity")
	controller, err := newListController(ctx, entity)
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok && fiberErr.Code == fiber.StatusNotFound {
			return err
		}
		ctx.Logger.Error("Failed to load content list",
			slog.String("entity", entity), slog.Any("error", err))
	}

	rows := make([]map[string]any, 0)
	if controller != nil {
		for _, record := range controller.PageItems() {
			rows = append(rows, map[string]any(record))
		}
	}

	component := screenComponents[entity]
	return inertia.RenderPage(ctx.Ctx, component, inertia.Props{
		"entity": entity,
		"items":  rows,
		"error":  controller.Err(),
		"search": ctx.Query("search", ""),
		"pagination": PaginationData{
			CurrentPage: controller.CurrentPage(),
			TotalPages:  controller.TotalPages(),
			TotalItems:  len(controller.Filtered()),
			PerPage:     controller.ItemsPerPage(),
		},
	})
}

// ContentExportAction streams the filtered list as a CSV download.
func ContentExportAction(ctx *cartridge.Context) error {
	entity := ctx.Ctx.Params("entity")
	controller, err := newListController(ctx, entity)
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok && fiberErr.Code == fiber.StatusNotFound {
			return err
		}
		flash.SetFlash(ctx.Ctx, "error", "Export failed: "+controller.Err())
		return ctx.Redirect("/admin/content/"+entity, fiber.StatusFound)
	}

	ctx.Ctx.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	ctx.Ctx.Set(fiber.HeaderContentDisposition, `attachment; filename="`+controller.ExportFilename()+`"`)

	var out strings.Builder
	if err := controller.ExportCSV(&out); err != nil {
		ctx.Logger.Error("CSV export failed", slog.String("entity", entity), slog.Any("error", err))
		return fiber.NewError(fiber.StatusInternalServerError, "Export failed")
	}
	return ctx.Ctx.SendString(out.String())
}

// ContentDeleteAction removes one entry and reloads the screen.
func ContentDeleteAction(ctx *cartridge.Context) error {
	entity := ctx.Ctx.Params("entity")
	ref := ctx.Ctx.Params("ref")

	cfg, ok := content.Descriptor(entity, AdminClient(ctx.Logger))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Unknown section")
	}

	controller := listing.New(cfg)

	reqCtx, cancel := adminContext()
	defer cancel()
	if err := controller.Load(reqCtx); err != nil {
		flash.SetFlash(ctx.Ctx, "error", controller.Err())
		return ctx.Redirect("/admin/content/"+entity, fiber.StatusFound)
	}

	if err := controller.Delete(reqCtx, ref); err != nil {
		ctx.Logger.Warn("Delete rejected",
			slog.String("entity", entity), slog.String("ref", ref), slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", controller.Err())
	} else {
		flash.SetFlash(ctx.Ctx, "success", "Entry deleted")
	}
	return ctx.Redirect("/admin/content/"+entity, fiber.StatusFound)
}
