package http

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/flash"
	"github.com/karloscodes/cartridge/inertia"
	"log/slog"

	"novasite/internal/content"
	"novasite/internal/forms"
)

// formSpecs lists the entities with write support.
var formSpecs = map[string]func() forms.Spec{
	"blogs":     content.BlogForm,
	"jobs":      content.JobForm,
	"webinars":  content.WebinarForm,
	"events":    content.EventForm,
	"resources": content.ResourceForm,
}

// ContentSaveAction creates or updates one entry. The route is shared:
// POST /admin/content/:entity saves a new entry, POST with a ref updates.
// A multipart file field named "asset" is uploaded first and its id
// embedded into the record payload.
func ContentSaveAction(ctx *cartridge.Context) error {
	entity := ctx.Ctx.Params("entity")
	ref := ctx.Ctx.Params("ref") // empty on create

	buildSpec, ok := formSpecs[entity]
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Unknown section")
	}

	form := forms.NewController(AdminClient(ctx.Logger), buildSpec(), ctx.Logger)

	fields := formFields(ctx)
	if errs := form.Validate(fields); len(errs) > 0 {
		for _, msg := range errs {
			flash.SetFlash(ctx.Ctx, "error", msg)
			break
		}
		return ctx.Redirect(formReturnPath(entity, ref), fiber.StatusFound)
	}

	reqCtx, cancel := adminContext()
	defer cancel()

	var assetID uint
	if fileHeader, err := ctx.Ctx.FormFile("asset"); err == nil && fileHeader != nil {
		file, err := fileHeader.Open()
		if err != nil {
			flash.SetFlash(ctx.Ctx, "error", "Could not read the uploaded file")
			return ctx.Redirect(formReturnPath(entity, ref), fiber.StatusFound)
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			flash.SetFlash(ctx.Ctx, "error", "Could not read the uploaded file")
			return ctx.Redirect(formReturnPath(entity, ref), fiber.StatusFound)
		}

		assetID, err = form.SubmitAsset(reqCtx, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
		if err != nil {
			flash.SetFlash(ctx.Ctx, "error", form.Err())
			return ctx.Redirect(formReturnPath(entity, ref), fiber.StatusFound)
		}
		if warning := form.Warning(); warning != "" {
			flash.SetFlash(ctx.Ctx, "error", warning)
		}
	}

	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		payload[k] = v
	}

	if _, err := form.Submit(reqCtx, ref, payload, assetID); err != nil {
		ctx.Logger.Warn("Content save rejected",
			slog.String("entity", entity), slog.String("ref", ref), slog.Any("error", err))
		flash.SetFlash(ctx.Ctx, "error", form.Err())
		return ctx.Redirect(formReturnPath(entity, ref), fiber.StatusFound)
	}

	flash.SetFlash(ctx.Ctx, "success", "Entry saved")
	return ctx.Redirect("/admin/content/"+entity, fiber.StatusFound)
}

// ContentNewAction renders an empty form for one entity.
func ContentNewAction(ctx *cartridge.Context) error {
	entity := ctx.Ctx.Params("entity")
	if _, ok := formSpecs[entity]; !ok {
		return fiber.NewError(fiber.StatusNotFound, "Unknown section")
	}
	return inertia.RenderPage(ctx.Ctx, screenComponents[entity]+"/Form", inertia.Props{
		"entity": entity,
	})
}

// ContentEditAction renders the form pre-filled with an existing entry.
func ContentEditAction(ctx *cartridge.Context) error {
	entity := ctx.Ctx.Params("entity")
	ref := ctx.Ctx.Params("ref")

	buildSpec, ok := formSpecs[entity]
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "Unknown section")
	}

	reqCtx, cancel := adminContext()
	defer cancel()

	record, err := AdminClient(ctx.Logger).Get(reqCtx, buildSpec().Collection, ref)
	if err != nil {
		flash.SetFlash(ctx.Ctx, "error", err.Error())
		return ctx.Redirect("/admin/content/"+entity, fiber.StatusFound)
	}

	return inertia.RenderPage(ctx.Ctx, screenComponents[entity]+"/Form", inertia.Props{
		"entity": entity,
		"entry":  map[string]any(record),
	})
}

// formFields flattens the posted multipart/form values, skipping the file
// part and internal fields.
func formFields(ctx *cartridge.Context) map[string]string {
	fields := make(map[string]string)
	if multipart, err := ctx.Ctx.MultipartForm(); err == nil && multipart != nil {
		for key, values := range multipart.Value {
			if len(values) > 0 && key != "_csrf" {
				fields[key] = values[0]
			}
		}
		return fields
	}

	ctx.Ctx.Request().PostArgs().VisitAll(func(key, value []byte) {
		if string(key) != "_csrf" {
			fields[string(key)] = string(value)
		}
	})
	return fields
}

func formReturnPath(entity, ref string) string {
	if ref == "" {
		return "/admin/content/" + entity + "/new"
	}
	return "/admin/content/" + entity + "/" + ref + "/edit"
}
