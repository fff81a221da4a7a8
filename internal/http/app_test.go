package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"casasweb/internal/apiclient"
	"casasweb/internal/apiclient/apitest"
	"casasweb/internal/config"
	"casasweb/internal/http/handlers"
	"casasweb/internal/repos"
	"casasweb/internal/session"
)

type testApp struct {
	app      *fiber.App
	api      *apitest.Server
	sessions *session.Store
	repo     *repos.SessionRepo
	done     chan struct{}
}

// newTestApp builds the real routes over an in-memory database and a fake API.
// configure runs before the routes are registered.
func newTestApp(t *testing.T, configure ...func(*handlers.Deps)) *testApp {
	t.Helper()
	db, err := repos.OpenDB(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	sealer, err := repos.NewSealer("test-secret")
	if err != nil {
		t.Fatal(err)
	}
	repo := repos.NewSessionRepo(db, sealer)
	sessions, err := session.Open(repo)
	if err != nil {
		t.Fatal(err)
	}
	api := apitest.NewServer(t)
	client := apiclient.New(api.URL, 2*time.Second)

	// Immutable stays off so handlers prove they copy what they keep past the request.
	app := fiber.New(fiber.Config{Views: handlers.NewViews("../../web/templates")})
	app.Server().MaxRequestBodySize = 1 << 20
	app.Use(requestid.New())
	app.Use(csrf.New(csrf.Config{KeyLookup: "form:csrf", CookieName: "csrf_", CookieSameSite: "Lax"}))
	app.Use(func(c *fiber.Ctx) error {
		if tok, ok := c.Locals("csrf").(string); ok {
			c.Locals("CSRFToken", tok)
		}
		return c.Next()
	})

	done := make(chan struct{})
	deps := handlers.NewDeps(config.Config{NoticeTTL: time.Minute}, client, sessions, done)
	t.Cleanup(deps.Close)
	for _, fn := range configure {
		fn(deps)
	}
	handlers.Register(app, deps)
	return &testApp{app: app, api: api, sessions: sessions, repo: repo, done: done}
}

// browser keeps cookies between requests the way a single tab would.
type browser struct {
	t       *testing.T
	app     *fiber.App
	cookies map[string]string
}

func (ta *testApp) browser(t *testing.T) *browser {
	t.Helper()
	b := &browser{t: t, app: ta.app, cookies: map[string]string{}}
	b.get("/sign-in")
	if b.cookies["csrf_"] == "" {
		t.Fatal("csrf token missing")
	}
	return b
}

// tab opens a second tab sharing this browser's cookies.
func (b *browser) tab() *browser {
	nb := &browser{t: b.t, app: b.app, cookies: map[string]string{}}
	for k, v := range b.cookies {
		nb.cookies[k] = v
	}
	return nb
}

func (b *browser) do(req *http.Request) *http.Response {
	b.t.Helper()
	for k, v := range b.cookies {
		req.AddCookie(&http.Cookie{Name: k, Value: v})
	}
	resp, err := b.app.Test(req, 5000)
	if err != nil {
		b.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	for _, c := range resp.Cookies() {
		if c.Value == "" || (!c.Expires.IsZero() && c.Expires.Before(time.Now())) {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c.Value
	}
	return resp
}

func (b *browser) get(path string) *http.Response {
	b.t.Helper()
	return b.do(httptest.NewRequest("GET", path, nil))
}

// post submits a form, adding the csrf field.
func (b *browser) post(path string, form url.Values) *http.Response {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	form.Set("csrf", b.cookies["csrf_"])
	req := httptest.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) signIn(email, password string) {
	b.t.Helper()
	resp := b.post("/sign-in", url.Values{"email": {email}, "password": {password}})
	if resp.StatusCode != http.StatusFound {
		b.t.Fatalf("sign in: expected 302, got %d", resp.StatusCode)
	}
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func expectRedirect(t *testing.T, resp *http.Response, to string) {
	t.Helper()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302 to %s, got %d", to, resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != to {
		t.Fatalf("expected redirect to %s, got %q", to, loc)
	}
}

type logEntry struct {
	Level  string                 `json:"level"`
	Action string                 `json:"action"`
	SID    string                 `json:"sid"`
	Fields map[string]interface{} `json:"fields"`
}

// captureLogs collects the JSON lines written through the standard logger while fn runs.
func captureLogs(t *testing.T, fn func()) []logEntry {
	t.Helper()
	var buf bytes.Buffer
	var mu sync.Mutex
	oldW := log.Writer()
	oldFlags := log.Flags()
	log.SetOutput(&lockedWriter{w: &buf, mu: &mu})
	log.SetFlags(0) // remove timestamps to make JSON parseable
	defer func() {
		log.SetOutput(oldW)
		log.SetFlags(oldFlags)
	}()

	fn()

	mu.Lock()
	defer mu.Unlock()
	var entries []logEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var e logEntry
		if err := json.Unmarshal([]byte(line), &e); err == nil {
			entries = append(entries, e)
		}
	}
	return entries
}

func findLog(entries []logEntry, action string) (logEntry, bool) {
	for _, e := range entries {
		if e.Action == action {
			return e, true
		}
	}
	return logEntry{}, false
}

type lockedWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
