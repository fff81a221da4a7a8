// Package flash carries a one-time notice across a redirect in a cookie.
package flash

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"
)

const CookieName = "cw_flash"

// maxText caps a notice, in runes.
const maxText = 200

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

type Notice struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

func Success(text string) Notice { return Notice{Kind: KindSuccess, Text: text} }

func Error(text string) Notice { return Notice{Kind: KindError, Text: text} }

// Write stores n for the next page render.
func Write(c *fiber.Ctx, n Notice) {
	n, ok := normalize(n)
	if !ok {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   c.Protocol() == "https",
	})
}

// ReadAndClear returns the pending notice, if any, and expires the cookie.
func ReadAndClear(c *fiber.Ctx) (Notice, bool) {
	raw := c.Cookies(CookieName)
	if raw == "" {
		return Notice{}, false
	}
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Expires:  time.Now().Add(-1 * time.Hour),
	})
	return decode(raw)
}

func decode(raw string) (Notice, bool) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return Notice{}, false
	}
	var n Notice
	if err := json.Unmarshal(b, &n); err != nil {
		return Notice{}, false
	}
	return normalize(n)
}

func normalize(n Notice) (Notice, bool) {
	n.Text = strings.TrimSpace(n.Text)
	if n.Text == "" {
		return Notice{}, false
	}
	if utf8.RuneCountInString(n.Text) > maxText {
		n.Text = string([]rune(n.Text)[:maxText])
	}
	switch n.Kind {
	case KindSuccess, KindError:
	default:
		n.Kind = KindSuccess
	}
	return n, true
}
