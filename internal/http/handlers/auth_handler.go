package handlers

import (
	"errors"

	"casasweb/internal/apiclient"
	"casasweb/internal/http/flash"
	applog "casasweb/internal/log"
	"casasweb/internal/services"
	"casasweb/internal/validate"

	"github.com/gofiber/fiber/v2"
)

const (
	msgSignInFailed = "Sign in failed. Please try again."
	msgSignUpFailed = "Signup failed. Please try again."
	msgDuplicate    = "The username or email is already taken. Please choose another."
	msgNetwork      = "A network error occurred. Please try again later."
	msgGeneric      = "Something went wrong. Please try again."
)

type AuthHandler struct {
	Auth *services.AuthService
}

func (h *AuthHandler) SignInForm(c *fiber.Ctx) error {
	return render(c, "signin", fiber.Map{"Err": ""})
}

func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	sid := ensureSID(c)
	email, okEmail := validate.Email(c.FormValue("email"))
	pass := c.FormValue("password")
	if !okEmail || !validate.Password(pass) {
		applog.Security(c, "auth.signin.fail", map[string]any{"reason": "bad_format"})
		c.Status(fiber.StatusBadRequest)
		return render(c, "signin", fiber.Map{"Err": "Enter a valid email and password.", "Email": c.FormValue("email")})
	}

	if err := h.Auth.SignIn(c.UserContext(), sid, email, pass); err != nil {
		status, msg := fiber.StatusInternalServerError, msgGeneric
		var re *apiclient.RequestError
		switch {
		case errors.As(err, &re):
			status, msg = fiber.StatusUnauthorized, re.Message
			applog.Security(c, "auth.signin.fail", map[string]any{"email": email, "status": re.Status})
		case errors.Is(err, apiclient.ErrNetwork):
			status, msg = fiber.StatusBadGateway, msgNetwork
			applog.Error(c, "auth.signin.network", err, nil)
		default:
			applog.Error(c, "auth.signin.error", err, nil)
		}
		if msg == "" {
			msg = msgSignInFailed
		}
		c.Status(status)
		return render(c, "signin", fiber.Map{"Err": msg, "Email": email})
	}

	applog.Audit(c, "auth.signin.success", map[string]any{"email": email})
	return c.Redirect("/")
}

func (h *AuthHandler) SignUpForm(c *fiber.Ctx) error {
	return render(c, "signup", fiber.Map{"Err": ""})
}

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	ensureSID(c)
	username, okUser := validate.Username(c.FormValue("username"))
	email, okEmail := validate.Email(c.FormValue("email"))
	pass := c.FormValue("password")
	if !okUser || !okEmail || !validate.Password(pass) {
		applog.Security(c, "auth.signup.fail", map[string]any{"reason": "bad_format"})
		c.Status(fiber.StatusBadRequest)
		return render(c, "signup", fiber.Map{
			"Err": "Enter a username, a valid email and a password.", "Username": c.FormValue("username"), "Email": c.FormValue("email"),
		})
	}

	if err := h.Auth.SignUp(c.UserContext(), username, email, pass); err != nil {
		status, msg := fiber.StatusBadRequest, msgSignUpFailed
		switch {
		case errors.Is(err, services.ErrDuplicateAccount):
			status, msg = fiber.StatusConflict, msgDuplicate
			applog.Security(c, "auth.signup.duplicate", map[string]any{"email": email})
		case errors.Is(err, apiclient.ErrNetwork):
			status, msg = fiber.StatusBadGateway, msgNetwork
			applog.Error(c, "auth.signup.network", err, nil)
		default:
			applog.Error(c, "auth.signup.fail", err, map[string]any{"email": email})
		}
		c.Status(status)
		return render(c, "signup", fiber.Map{"Err": msg, "Username": username, "Email": email})
	}

	applog.Audit(c, "auth.signup.success", map[string]any{"email": email})
	flash.Write(c, flash.Success("User created successfully!"))
	return c.Redirect(signInPath)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sid := cookieSID(c)
	if sid != "" {
		if err := h.Auth.Logout(sid); err != nil {
			applog.Error(c, "auth.logout.fail", err, nil)
			flash.Write(c, flash.Error(msgGeneric))
			return c.Redirect("/")
		}
	}
	applog.Audit(c, "auth.logout", nil)
	return c.Redirect(signInPath)
}
