package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/flash"
	"github.com/karloscodes/cartridge/inertia"
	"log/slog"

	"novasite/internal/content"
	"novasite/internal/listing"
)

// VisitorsIndexAction renders the server-paginated visitors screen. Unlike
// the other admin lists, search and paging happen in the content service.
func VisitorsIndexAction(ctx *cartridge.Context) error {
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	perPage, _ := strconv.Atoi(ctx.Query("per_page", "10"))

	reqCtx, cancel := adminContext()
	defer cancel()

	result, err := content.LoadVisitors(reqCtx, AdminClient(ctx.Logger), page, perPage)
	if err != nil {
		ctx.Logger.Error("Failed to load visitors", slog.Any("error", err))
		return inertia.RenderPage(ctx.Ctx, "Admin/Visitors", inertia.Props{
			"error": err.Error(),
			"items": []map[string]any{},
		})
	}

	rows := make([]map[string]any, len(result.Items))
	for i, record := range result.Items {
		rows[i] = map[string]any(record)
	}

	return inertia.RenderPage(ctx.Ctx, "Admin/Visitors", inertia.Props{
		"items": rows,
		"pagination": PaginationData{
			CurrentPage: result.Page,
			TotalPages:  result.PageCount,
			TotalItems:  result.Total,
			PerPage:     result.PageSize,
		},
	})
}

// VisitorsExportAction exports the fetched page as CSV. The full
// collection stays remote, so the export covers the requested page only.
func VisitorsExportAction(ctx *cartridge.Context) error {
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	perPage, _ := strconv.Atoi(ctx.Query("per_page", "100"))

	reqCtx, cancel := adminContext()
	defer cancel()

	result, err := content.LoadVisitors(reqCtx, AdminClient(ctx.Logger), page, perPage)
	if err != nil {
		flash.SetFlash(ctx.Ctx, "error", "Export failed: "+err.Error())
		return ctx.Redirect("/admin/visitors", fiber.StatusFound)
	}

	columns := content.VisitorCSVColumns()
	var out strings.Builder

	headers := make([]string, len(columns))
	for i, col := range columns {
		headers[i] = `"` + col.Header + `"`
	}
	out.WriteString(strings.Join(headers, ",") + "\n")
	for _, record := range result.Items {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = `"` + col.Value(record) + `"`
		}
		out.WriteString(strings.Join(row, ",") + "\n")
	}

	ctx.Ctx.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	ctx.Ctx.Set(fiber.HeaderContentDisposition, `attachment; filename="visitors-`+listing.ExportDate()+`.csv"`)
	return ctx.Ctx.SendString(out.String())
}
