package handlers

import (
	"math"
	"strings"
	"unicode/utf8"

	html "github.com/gofiber/template/html/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const descriptionPreview = 120

var pricePrinter = message.NewPrinter(language.English)

// NewViews loads the html templates under dir with the helpers they use.
func NewViews(dir string) *html.Engine {
	engine := html.New(dir, ".html")
	engine.AddFunc("price", Price)
	engine.AddFunc("preview", Preview)
	engine.AddFunc("truncated", Truncated)
	return engine
}

// Price formats an amount with thousands separators: 1000 -> "$1,000", 99.5 -> "$99.50".
func Price(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return pricePrinter.Sprintf("$%d", int64(v))
	}
	return pricePrinter.Sprintf("$%.2f", v)
}

// Preview shortens a description for the catalog cards.
func Preview(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Description not available"
	}
	if utf8.RuneCountInString(s) <= descriptionPreview {
		return s
	}
	return string([]rune(s)[:descriptionPreview]) + "..."
}

// Truncated reports whether Preview would cut s.
func Truncated(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) > descriptionPreview
}
