package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"casasweb/internal/apiclient"
	"casasweb/internal/config"
	"casasweb/internal/http/handlers"
	applog "casasweb/internal/log"
	"casasweb/internal/repos"
	"casasweb/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	// Optional file logging
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[warn] could not open log file %s: %v", cfg.LogFile, err)
		} else {
			log.SetOutput(io.MultiWriter(os.Stdout, f))
		}
	}

	db, err := repos.OpenDB(cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	sealer, err := repos.NewSealer(cfg.SessionSecret)
	if err != nil {
		log.Fatal(err)
	}
	sessionRepo := repos.NewSessionRepo(db, sealer)
	if n, err := sessionRepo.Purge("-30 days"); err != nil {
		log.Printf("[warn] purge sessions: %v", err)
	} else if n > 0 {
		log.Printf("[session] purged %d stale sessions", n)
	}
	sessions, err := session.Open(sessionRepo)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Other processes sharing DB_DSN may sign this browser in or out.
	go sessions.Watch(ctx, cfg.SyncInterval)

	api := apiclient.New(cfg.APIURL, cfg.APITimeout)

	engine := handlers.NewViews(cfg.TemplatesDir)
	app := fiber.New(fiber.Config{
		Views: engine,
		// Values read from the request outlive it as session keys.
		Immutable: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			applog.Error(c, "server.error", err, nil)
			msg := "Something went wrong. Please try again."
			if code == fiber.StatusNotFound {
				msg = "Page not found"
			}
			if rerr := c.Status(code).Render("notfound", fiber.Map{"Message": msg}); rerr != nil {
				return c.Status(code).SendString(msg)
			}
			return nil
		},
	})
	// Global body size guard
	app.Server().MaxRequestBodySize = 1 << 20 // 1 MiB

	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(helmet.New())
	app.Use(limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			p := c.Path()
			return strings.HasPrefix(p, "/static/") || p == "/session/events"
		},
	}))
	app.Use(csrf.New(csrf.Config{
		KeyLookup:      "form:csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		CookieSecure:   false, // set true behind HTTPS
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			applog.Security(c, "csrf.fail", nil)
			return c.Status(fiber.StatusForbidden).Render("notfound", fiber.Map{"Message": "Security check failed. Please refresh and try again."})
		},
	}))
	app.Use(func(c *fiber.Ctx) error {
		if tok, ok := c.Locals("csrf").(string); ok {
			c.Locals("CSRFToken", tok)
		}
		return c.Next()
	})

	app.Static("/static", "./web/static")

	deps := handlers.NewDeps(cfg, api, sessions, ctx.Done())
	defer deps.Close()
	if cfg.StateIdle > 0 {
		go deps.ListingHandler.Manager.ExpireEvery(ctx, time.Minute, cfg.StateIdle)
	}
	deps.AuthLimiter = limiter.New(limiter.Config{
		Max:        5,
		Expiration: 10 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			applog.Security(c, "rate.auth.hit", nil)
			tmpl := "signin"
			if c.Path() == "/sign-up" {
				tmpl = "signup"
			}
			return c.Status(fiber.StatusTooManyRequests).Render(tmpl, fiber.Map{"Err": "Too many attempts. Please try again later."})
		},
	})
	handlers.Register(app, deps)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).Render("notfound", fiber.Map{"Message": "Page not found"})
	})

	go func() {
		<-ctx.Done()
		if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Printf("[warn] shutdown: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}
