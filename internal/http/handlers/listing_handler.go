package handlers

import (
	"errors"
	"net/url"
	"time"

	"casasweb/internal/apiclient"
	"casasweb/internal/domain"
	applog "casasweb/internal/log"
	"casasweb/internal/manage"
	"casasweb/internal/validate"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const listingsPath = "/edit-listing"

// ListingHandler serves the "my listings" screen. Every route behind it is
// gated by RequireSession, so a token is always present in Locals.
type ListingHandler struct {
	Manager *manage.Manager
}

func (h *ListingHandler) Manage(c *fiber.Ctx) error {
	v, err := h.Manager.Load(c.UserContext(), currentSID(c), currentToken(c))
	if errors.Is(err, apiclient.ErrAuthRequired) {
		return c.Redirect(signInPath)
	}
	if err != nil {
		applog.Error(c, "listing.list.fail", err, nil)
	}
	return h.page(c, v)
}

func (h *ListingHandler) Submit(c *fiber.Ctx) error {
	sid := currentSID(c)
	d := domain.Draft{
		Name:        formCopy(c, "nombre"),
		Price:       formCopy(c, "precio"),
		Location:    formCopy(c, "ubicacion"),
		Description: formCopy(c, "descripcion"),
	}
	editing := h.Manager.View(sid).EditingID
	err := h.Manager.Submit(c.UserContext(), sid, currentToken(c), d)

	var verrs validate.Errors
	switch {
	case err == nil:
		action := "listing.create"
		if editing != "" {
			action = "listing.update"
		}
		applog.Audit(c, action, map[string]any{"listing": editing})
		return c.Redirect(listingsPath)
	case errors.As(err, &verrs):
		applog.Security(c, "validation.fail", map[string]any{"fields": len(verrs)})
		c.Status(fiber.StatusUnprocessableEntity)
	case errors.Is(err, manage.ErrSubmitInFlight):
		c.Status(fiber.StatusConflict)
	case errors.Is(err, manage.ErrRefresh):
		// The change went through; only the re-fetch failed.
		applog.Error(c, "listing.refresh.fail", err, nil)
		return c.Redirect(listingsPath)
	case errors.Is(err, apiclient.ErrAuthRequired):
		return c.Redirect(signInPath)
	default:
		applog.Error(c, "listing.submit.fail", err, map[string]any{"listing": editing, "api_status": apiclient.StatusOf(err)})
		c.Status(failureStatus(err))
	}
	return h.page(c, h.Manager.View(sid))
}

// Edit puts the form in edit mode for :id.
func (h *ListingHandler) Edit(c *fiber.Ctx) error {
	sid := currentSID(c)
	id, ok := validate.ID(utils.CopyString(c.Params("id")))
	if !ok {
		return notFound(c, "This property is no longer available")
	}
	err := h.Manager.Select(sid, id)
	if errors.Is(err, manage.ErrUnknownListing) {
		// The collection may not have been loaded in this process yet.
		if _, lerr := h.Manager.Load(c.UserContext(), sid, currentToken(c)); lerr == nil {
			err = h.Manager.Select(sid, id)
		}
	}
	if err != nil {
		return notFound(c, "This property is no longer available")
	}
	return c.Redirect(listingsPath)
}

func (h *ListingHandler) Cancel(c *fiber.Ctx) error {
	h.Manager.Cancel(currentSID(c))
	return c.Redirect(listingsPath)
}

// ConfirmDelete asks the user to confirm before anything is sent to the API.
func (h *ListingHandler) ConfirmDelete(c *fiber.Ctx) error {
	id, ok := validate.ID(utils.CopyString(c.Params("id")))
	if !ok {
		return notFound(c, "This property is no longer available")
	}
	sid := currentSID(c)
	l, found := h.Manager.Listing(sid, id)
	if !found {
		if _, err := h.Manager.Load(c.UserContext(), sid, currentToken(c)); err == nil {
			l, found = h.Manager.Listing(sid, id)
		}
	}
	if !found {
		return notFound(c, "This property is no longer available")
	}
	return render(c, "confirm_delete", fiber.Map{"Listing": l})
}

func (h *ListingHandler) Delete(c *fiber.Ctx) error {
	sid := currentSID(c)
	id, ok := validate.ID(utils.CopyString(c.Params("id")))
	if !ok {
		return notFound(c, "This property is no longer available")
	}
	err := h.Manager.Delete(c.UserContext(), sid, currentToken(c), id, c.FormValue("confirm") == "yes")
	switch {
	case err == nil:
		applog.Audit(c, "listing.delete", map[string]any{"listing": id})
		return c.Redirect(listingsPath)
	case errors.Is(err, manage.ErrNotConfirmed):
		return c.Redirect(listingsPath + "/" + url.PathEscape(id) + "/delete")
	case errors.Is(err, manage.ErrRefresh):
		applog.Error(c, "listing.refresh.fail", err, nil)
		return c.Redirect(listingsPath)
	case errors.Is(err, apiclient.ErrAuthRequired):
		return c.Redirect(signInPath)
	}
	applog.Error(c, "listing.delete.fail", err, map[string]any{"listing": id, "api_status": apiclient.StatusOf(err)})
	c.Status(failureStatus(err))
	return h.page(c, h.Manager.View(sid))
}

func (h *ListingHandler) page(c *fiber.Ctx, v manage.View) error {
	errs := v.Errors
	if errs == nil {
		errs = validate.Errors{}
	}
	data := fiber.Map{
		"Listings":   v.Listings,
		"Draft":      v.Draft,
		"Editing":    v.Mode == manage.ModeEditing,
		"EditingID":  v.EditingID,
		"Errors":     errs,
		"Submitting": v.Submitting,
	}
	if v.Notice != nil {
		data["Notice"] = v.Notice
		if !v.Notice.ExpiresAt.IsZero() {
			if ms := time.Until(v.Notice.ExpiresAt).Milliseconds(); ms > 0 {
				data["NoticeTTLMs"] = ms
			}
		}
	}
	return render(c, "listing", data)
}

// failureStatus maps an API failure onto the status of the re-rendered page.
func failureStatus(err error) int {
	switch {
	case errors.Is(err, apiclient.ErrNetwork):
		return fiber.StatusBadGateway
	case apiclient.IsKind(err, apiclient.KindUnauthorized):
		return fiber.StatusForbidden
	case apiclient.IsKind(err, apiclient.KindNotFound):
		return fiber.StatusNotFound
	case apiclient.IsKind(err, apiclient.KindConflict):
		return fiber.StatusConflict
	}
	return fiber.StatusBadGateway
}

// formCopy reads a form field into memory the manager may keep after the request.
func formCopy(c *fiber.Ctx, key string) string {
	return utils.CopyString(c.FormValue(key))
}
