package handlers

import (
	"casasweb/internal/apiclient"
	"casasweb/internal/config"
	"casasweb/internal/manage"
	"casasweb/internal/services"
	"casasweb/internal/session"

	"github.com/gofiber/fiber/v2"
)

type Deps struct {
	Sessions       *session.Store
	AuthHandler    *AuthHandler
	CatalogHandler *CatalogHandler
	ListingHandler *ListingHandler
	EventsHandler  *EventsHandler

	// AuthLimiter, when set, throttles the sign-in and sign-up posts.
	AuthLimiter fiber.Handler

	unsubscribe func()
}

// NewDeps wires the services and handlers around one API client and session store.
// Signing out drops that session's listing screen state.
func NewDeps(cfg config.Config, api *apiclient.Client, sessions *session.Store, done <-chan struct{}) *Deps {
	mgr := manage.New(api, cfg.NoticeTTL)
	unsub := sessions.Subscribe("", func(ch session.Change) {
		if !ch.Authenticated {
			mgr.Forget(ch.SID)
		}
	})
	return &Deps{
		Sessions:       sessions,
		AuthHandler:    &AuthHandler{Auth: &services.AuthService{API: api, Sessions: sessions}},
		CatalogHandler: &CatalogHandler{Catalog: services.NewCatalogService(api)},
		ListingHandler: &ListingHandler{Manager: mgr},
		EventsHandler:  &EventsHandler{Sessions: sessions, Done: done},
		unsubscribe:    unsub,
	}
}

// Close detaches the deps from the session store.
func (d *Deps) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
}

// Register mounts every page route on app. Global middleware is the caller's.
func Register(app *fiber.App, d *Deps) {
	throttle := d.AuthLimiter
	if throttle == nil {
		throttle = func(c *fiber.Ctx) error { return c.Next() }
	}
	app.Use(AttachSession(d.Sessions))

	app.Get("/", d.CatalogHandler.Home)
	guard := RequireSession(d.Sessions)
	app.Get("/contact/:id", guard, d.CatalogHandler.ContactForm)
	app.Post("/contact/:id", guard, d.CatalogHandler.Contact)

	app.Get(signInPath, d.AuthHandler.SignInForm)
	app.Post(signInPath, throttle, d.AuthHandler.SignIn)
	app.Get("/sign-up", d.AuthHandler.SignUpForm)
	app.Post("/sign-up", throttle, d.AuthHandler.SignUp)
	app.Post("/logout", d.AuthHandler.Logout)

	app.Get(listingsPath, guard, d.ListingHandler.Manage)
	app.Post(listingsPath, guard, d.ListingHandler.Submit)
	app.Post(listingsPath+"/cancel", guard, d.ListingHandler.Cancel)
	app.Post(listingsPath+"/:id/edit", guard, d.ListingHandler.Edit)
	app.Get(listingsPath+"/:id/delete", guard, d.ListingHandler.ConfirmDelete)
	app.Post(listingsPath+"/:id/delete", guard, d.ListingHandler.Delete)

	app.Get("/session/events", d.EventsHandler.Stream)
	app.Get("/healthz", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"ok": true}) })
}
