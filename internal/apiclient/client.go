// Package apiclient talks to the remote listings API. Every call is a single
// attempt: failures are returned once and never retried here.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"casasweb/internal/domain"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	timeout time.Duration
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

type listEnvelope struct {
	Casas []domain.Listing `json:"casas"`
}

type messageBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Catalog fetches the public listing set. No credentials are sent.
func (c *Client) Catalog(ctx context.Context) ([]domain.Listing, error) {
	var env listEnvelope
	if err := c.do(ctx, call{op: "catalog", method: fiber.MethodGet, path: "/casas", fallback: "Could not load the catalog"}, &env); err != nil {
		return nil, err
	}
	return nonNil(env.Casas), nil
}

type signInBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn exchanges credentials for a session token.
func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, call{
		op: "signin", method: fiber.MethodPost, path: "/auth/signin",
		body: signInBody{Email: email, Password: password}, fallback: "Sign in failed. Please try again.",
	}, &out)
	if err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &RequestError{Op: "signin", Status: fiber.StatusBadGateway, Message: "no token in sign in response", Kind: KindOther}
	}
	return out.Token, nil
}

type signUpBody struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp registers an account. A duplicate account comes back as KindConflict.
func (c *Client) SignUp(ctx context.Context, username, email, password string) error {
	return c.do(ctx, call{
		op: "signup", method: fiber.MethodPost, path: "/auth/signup",
		body: signUpBody{Username: username, Email: email, Password: password}, fallback: "Signup failed. Please try again.",
	}, nil)
}

// ListMine fetches the listings owned by the token's user.
func (c *Client) ListMine(ctx context.Context, token string) ([]domain.Listing, error) {
	if token == "" {
		return nil, ErrAuthRequired
	}
	var env listEnvelope
	err := c.do(ctx, call{
		op: "listing.list", method: fiber.MethodGet, path: "/casas/mis-casas",
		token: token, fallback: "Could not load your listings",
	}, &env)
	if err != nil {
		return nil, err
	}
	return nonNil(env.Casas), nil
}

func (c *Client) Create(ctx context.Context, token string, in domain.ListingInput) (domain.Listing, error) {
	if token == "" {
		return domain.Listing{}, ErrAuthRequired
	}
	var raw json.RawMessage
	err := c.do(ctx, call{
		op: "listing.create", method: fiber.MethodPost, path: "/casas",
		token: token, body: in, fallback: "Could not create the listing",
	}, &raw)
	if err != nil {
		return domain.Listing{}, err
	}
	return decodeListing(raw)
}

// Update replaces the four editable fields of listing id.
func (c *Client) Update(ctx context.Context, token, id string, in domain.ListingInput) (domain.Listing, error) {
	if token == "" {
		return domain.Listing{}, ErrAuthRequired
	}
	var raw json.RawMessage
	err := c.do(ctx, call{
		op: "listing.update", method: fiber.MethodPut, path: "/casas/" + url.PathEscape(id),
		token: token, body: in, fallback: "Could not update the listing",
	}, &raw)
	if err != nil {
		return domain.Listing{}, err
	}
	return decodeListing(raw)
}

// Delete removes listing id. Callers confirm with the user first.
func (c *Client) Delete(ctx context.Context, token, id string) error {
	if token == "" {
		return ErrAuthRequired
	}
	return c.do(ctx, call{
		op: "listing.delete", method: fiber.MethodDelete, path: "/casas/" + url.PathEscape(id),
		token: token, fallback: "Could not delete the listing",
	}, nil)
}

type call struct {
	op       string
	method   string
	path     string
	token    string
	body     any
	fallback string
}

func (c *Client) do(ctx context.Context, cl call, out any) error {
	if err := ctx.Err(); err != nil {
		return &NetworkError{Op: cl.op, Err: err}
	}

	a := fiber.AcquireAgent()
	req := a.Request()
	req.Header.SetMethod(cl.method)
	req.SetRequestURI(c.baseURL + cl.path)
	a.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	if cl.token != "" {
		a.Set(fiber.HeaderAuthorization, "Bearer "+cl.token)
	}
	if cl.body != nil {
		a.JSON(cl.body)
	}
	// fasthttp has no context support; the context deadline caps the timeout instead.
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < timeout {
			timeout = left
		}
	}
	a.Timeout(timeout)

	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return &NetworkError{Op: cl.op, Err: err}
	}
	status, body, errs := a.Bytes()
	if len(errs) > 0 {
		return &NetworkError{Op: cl.op, Err: errors.Join(errs...)}
	}

	if status < 200 || status > 299 {
		return &RequestError{Op: cl.op, Status: status, Message: serverMessage(body, cl.fallback), Kind: kindOf(status)}
	}
	if out == nil || len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &RequestError{Op: cl.op, Status: fiber.StatusBadGateway, Message: "unreadable response from server", Kind: KindOther}
	}
	return nil
}

func serverMessage(body []byte, fallback string) string {
	var m messageBody
	if err := json.Unmarshal(body, &m); err == nil {
		if s := strings.TrimSpace(m.Message); s != "" {
			return s
		}
		if s := strings.TrimSpace(m.Error); s != "" {
			return s
		}
	}
	return fallback
}

// decodeListing accepts either the bare object or a {"casa": {...}} envelope.
func decodeListing(raw json.RawMessage) (domain.Listing, error) {
	if len(raw) == 0 {
		return domain.Listing{}, nil
	}
	var env struct {
		Casa *domain.Listing `json:"casa"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Casa != nil {
		return *env.Casa, nil
	}
	var l domain.Listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return domain.Listing{}, &RequestError{Op: "listing.decode", Status: fiber.StatusBadGateway, Message: "unreadable listing from server", Kind: KindOther}
	}
	return l, nil
}

func nonNil(ls []domain.Listing) []domain.Listing {
	if ls == nil {
		return []domain.Listing{}
	}
	return ls
}
