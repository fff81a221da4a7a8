package handlers

import (
	"errors"

	"casasweb/internal/domain"
	"casasweb/internal/http/flash"
	applog "casasweb/internal/log"
	"casasweb/internal/services"
	"casasweb/internal/validate"

	"github.com/gofiber/fiber/v2"
)

const msgCatalogDown = "Could not load properties. Please try again later."

type CatalogHandler struct {
	Catalog *services.CatalogService
}

// Home renders the public catalog. ?desc=<id> opens the full-description modal.
func (h *CatalogHandler) Home(c *fiber.Ctx) error {
	listings, err := h.Catalog.List(c.UserContext())
	if err != nil {
		applog.Error(c, "catalog.list.fail", err, nil)
		c.Status(fiber.StatusBadGateway)
		return render(c, "home", fiber.Map{"Listings": []domain.Listing{}, "Err": msgCatalogDown})
	}
	data := fiber.Map{"Listings": listings}
	if id := c.Query("desc"); id != "" {
		for _, l := range listings {
			if l.ID == id {
				data["Desc"] = l
				break
			}
		}
	}
	return render(c, "home", data)
}

// ContactForm opens the contact modal for one listing. The route is session-gated.
func (h *CatalogHandler) ContactForm(c *fiber.Ctx) error {
	l, ok, err := h.listing(c)
	if !ok {
		return err
	}
	return render(c, "contact", fiber.Map{"Listing": l, "Errors": validate.Errors{}})
}

// Contact records the user's intent to contact the owner. The API has no
// messaging endpoint, so the message is audited and acknowledged.
func (h *CatalogHandler) Contact(c *fiber.Ctx) error {
	l, ok, err := h.listing(c)
	if !ok {
		return err
	}
	subject, message, errs := validate.Contact(c.FormValue("subject"), c.FormValue("message"))
	if errs != nil {
		c.Status(fiber.StatusUnprocessableEntity)
		return render(c, "contact", fiber.Map{
			"Listing": l, "Errors": errs, "Subject": c.FormValue("subject"), "Message": c.FormValue("message"),
		})
	}
	applog.Audit(c, "contact.sent", map[string]any{"listing": l.ID, "subject": subject, "message_len": len(message)})
	flash.Write(c, flash.Success("Message sent"))
	return c.Redirect("/")
}

// listing resolves :id against the catalog. When ok is false the response
// has already been written and err is what the handler should return.
func (h *CatalogHandler) listing(c *fiber.Ctx) (l domain.Listing, ok bool, err error) {
	id, valid := validate.ID(c.Params("id"))
	if !valid {
		applog.Security(c, "validation.fail", map[string]any{"field": "listing"})
		return l, false, notFound(c, "This property is no longer available")
	}
	l, err = h.Catalog.Get(c.UserContext(), id)
	if errors.Is(err, services.ErrListingNotFound) {
		return l, false, notFound(c, "This property is no longer available")
	}
	if err != nil {
		applog.Error(c, "catalog.get.fail", err, map[string]any{"listing": id})
		c.Status(fiber.StatusBadGateway)
		return l, false, render(c, "notfound", fiber.Map{"Message": msgCatalogDown})
	}
	return l, true, nil
}
