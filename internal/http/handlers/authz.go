package handlers

import (
	applog "casasweb/internal/log"
	"casasweb/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	sidCookie  = "sid"
	tokenKey   = "token"
	authKey    = "authenticated"
	signInPath = "/sign-in"
)

// AttachSession marks the request as authenticated when its sid holds a token,
// so every page can render the right navigation.
func AttachSession(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := cookieSID(c)
		if sid == "" {
			return c.Next()
		}
		c.Locals(applog.SIDKey, sid)
		tok, err := store.Token(sid)
		if err != nil {
			applog.Error(c, "session.read.fail", err, nil)
			return c.Next()
		}
		if tok != "" {
			c.Locals(tokenKey, tok)
			c.Locals(authKey, true)
		}
		return c.Next()
	}
}

// RequireSession lets the request through only when the session holds a token;
// otherwise it redirects to sign-in. The check is made on every request.
// Whether the token is still valid is for the API to decide.
func RequireSession(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := cookieSID(c)
		if sid == "" {
			return c.Redirect(signInPath)
		}
		tok, err := store.Token(sid)
		if err != nil {
			applog.Error(c, "session.read.fail", err, nil)
			return c.Redirect(signInPath)
		}
		if tok == "" {
			applog.Security(c, "access.denied.session", map[string]any{"path": c.Path()})
			return c.Redirect(signInPath)
		}
		c.Locals(applog.SIDKey, sid)
		c.Locals(tokenKey, tok)
		c.Locals(authKey, true)
		return c.Next()
	}
}

// cookieSID returns the sid cookie as a string the caller may keep. Fiber's
// c.Cookies aliases the request buffer, which is reused after the handler returns.
func cookieSID(c *fiber.Ctx) string {
	return utils.CopyString(c.Cookies(sidCookie))
}

func currentSID(c *fiber.Ctx) string {
	sid, _ := c.Locals(applog.SIDKey).(string)
	if sid == "" {
		sid = cookieSID(c)
	}
	return sid
}

func currentToken(c *fiber.Ctx) string {
	tok, _ := c.Locals(tokenKey).(string)
	return tok
}

func isAuthenticated(c *fiber.Ctx) bool {
	ok, _ := c.Locals(authKey).(bool)
	return ok
}
