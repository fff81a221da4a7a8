package handlers_test

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"casasweb/internal/apiclient/apitest"
)

func TestHomeRendersCatalog(t *testing.T) {
	ta := newTestApp(t)
	long := strings.Repeat("a", 130)
	ta.api.AddHouse("x@casas.test", apitest.House{Name: "Casa Azul", Price: 1000, Location: "Quito", Description: long})
	ta.api.AddHouse("x@casas.test", apitest.House{Name: "Casa Roja", Price: 99.5, Location: "Cuenca"})
	b := ta.browser(t)

	resp := b.get("/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	s := body(t, resp)
	for _, want := range []string{"Casa Azul", "$1,000", "$99.50", strings.Repeat("a", 120) + "...", "Description not available", "Read more"} {
		if !strings.Contains(s, want) {
			t.Fatalf("home page missing %q", want)
		}
	}
	if strings.Contains(s, long) {
		t.Fatal("long description rendered in full on the card")
	}
}

func TestHomeDescriptionModal(t *testing.T) {
	ta := newTestApp(t)
	long := strings.Repeat("b", 200)
	id := ta.api.AddHouse("x@casas.test", apitest.House{Name: "Casa Azul", Price: 1, Location: "Quito", Description: long})
	b := ta.browser(t)

	s := body(t, b.get("/?desc="+id))
	if !strings.Contains(s, `role="dialog"`) || !strings.Contains(s, long) {
		t.Fatal("full description modal not rendered")
	}
}

func TestHomeCatalogDown(t *testing.T) {
	ta := newTestApp(t)
	ta.api.Fail("GET /casas", http.StatusInternalServerError, "mongo: connection refused")
	b := ta.browser(t)

	resp := b.get("/")
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	s := body(t, resp)
	if !strings.Contains(s, "Could not load properties") || strings.Contains(s, "mongo") {
		t.Fatalf("expected a generic error; body=%s", s)
	}
}

// user-supplied listing text is autoescaped
func TestCatalogEscapesListingText(t *testing.T) {
	ta := newTestApp(t)
	ta.api.AddHouse("x@casas.test", apitest.House{Name: "<script>alert(1)</script>", Price: 1, Location: "Quito", Description: `"><img src=x onerror=alert(1)>`})
	b := ta.browser(t)

	s := body(t, b.get("/"))
	if strings.Contains(s, "<script>alert(1)</script>") || strings.Contains(s, "<img src=x") {
		t.Fatalf("listing text was not escaped; body=%s", s)
	}
	if !strings.Contains(s, "&lt;script&gt;") {
		t.Fatal("escaped name missing")
	}
}

func TestContactFlow(t *testing.T) {
	ta, b := signedIn(t)
	id := ta.api.AddHouse("owner@casas.test", apiHouse("Casa Azul"))

	form := b.get("/contact/" + id)
	if form.StatusCode != http.StatusOK || !strings.Contains(body(t, form), "Contact about Casa Azul") {
		t.Fatal("contact modal not rendered")
	}

	resp := b.post("/contact/"+id, url.Values{"subject": {"Visit"}, "message": {"  "}})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty message, got %d", resp.StatusCode)
	}
	if s := body(t, resp); !strings.Contains(s, "Message is required") || !strings.Contains(s, `value="Visit"`) {
		t.Fatal("expected field error with the subject kept")
	}

	expectRedirect(t, b.post("/contact/"+id, url.Values{"message": {"Is it still available?"}}), "/")
	if s := body(t, b.get("/")); !strings.Contains(s, "Message sent") {
		t.Fatal("confirmation notice missing")
	}
}

func TestContactUnknownListing(t *testing.T) {
	_, b := signedIn(t)
	if resp := b.get("/contact/nope"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if resp := b.get("/contact/..%2f..%2fetc"); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for a malformed id, got %d", resp.StatusCode)
	}
}

// form and notice behavior must not depend on EventSource support
func TestPageScriptWiresFormsBeforeEventSource(t *testing.T) {
	ta := newTestApp(t)
	b := ta.browser(t)
	s := body(t, b.get("/sign-in"))

	guard := strings.Index(s, "if (!window.EventSource) return;")
	once := strings.Index(s, `form[data-once]`)
	ttl := strings.Index(s, `[data-ttl-ms]`)
	if guard < 0 || once < 0 || ttl < 0 {
		t.Fatal("page script missing")
	}
	if once > guard || ttl > guard {
		t.Fatal("submit and notice handling must run before the EventSource check")
	}
}
