package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	applog "casasweb/internal/log"
)

// ensureSID returns the browser's session id, issuing a new cookie if there is none.
func ensureSID(c *fiber.Ctx) string {
	sid := cookieSID(c)
	if sid == "" {
		sid = uuid.NewString()
		c.Cookie(&fiber.Cookie{
			Name:     sidCookie,
			Value:    sid,
			Path:     "/",
			HTTPOnly: true,
			SameSite: fiber.CookieSameSiteLaxMode,
			Secure:   c.Protocol() == "https",
		})
	}
	c.Locals(applog.SIDKey, sid)
	return sid
}
