// Package apitest runs an in-memory stand-in for the remote listings API.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// House mirrors the API's listing document.
type House struct {
	ID          string  `json:"_id"`
	Name        string  `json:"nombre"`
	Price       float64 `json:"precio"`
	Location    string  `json:"ubicacion"`
	Description string  `json:"descripcion"`
	Owner       string  `json:"-"`
}

type user struct {
	Username string
	Email    string
	Password string
}

type failure struct {
	status  int
	message string
}

// Server is a fake API. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	users    []user
	tokens   map[string]string // token -> email
	houses   []House
	nextID   int
	calls    map[string]int
	failures map[string]failure
}

// NewServer starts a fake API and closes it when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		tokens:   map[string]string{},
		calls:    map[string]int{},
		failures: map[string]failure{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", s.signUp)
	mux.HandleFunc("POST /auth/signin", s.signIn)
	mux.HandleFunc("GET /casas", s.catalog)
	mux.HandleFunc("GET /casas/mis-casas", s.mine)
	mux.HandleFunc("POST /casas", s.create)
	mux.HandleFunc("PUT /casas/{id}", s.update)
	mux.HandleFunc("DELETE /casas/{id}", s.delete)
	s.Server = httptest.NewServer(s.count(mux))
	t.Cleanup(s.Server.Close)
	return s
}

// AddUser registers an account and returns a token already bound to it.
func (s *Server) AddUser(username, email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, user{Username: username, Email: email, Password: password})
	tok := fmt.Sprintf("tok-%s", username)
	s.tokens[tok] = email
	return tok
}

// SetToken makes the next successful sign-in for email return tok.
func (s *Server) SetToken(email, tok string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.tokens {
		if v == email {
			delete(s.tokens, k)
		}
	}
	s.tokens[tok] = email
}

// AddHouse stores a listing owned by email and returns its id.
func (s *Server) AddHouse(owner string, h House) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	h.ID = fmt.Sprintf("c%d", s.nextID)
	h.Owner = owner
	s.houses = append(s.houses, h)
	return h.ID
}

// Houses returns a copy of every stored listing.
func (s *Server) Houses() []House {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]House(nil), s.houses...)
}

// Fail makes the next request matching "METHOD /path" answer with status and message.
func (s *Server) Fail(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, message: message}
}

// Calls returns how many requests hit route ("METHOD /path"), or all routes when route is "".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if route == "" {
		n := 0
		for _, c := range s.calls {
			n += c
		}
		return n
	}
	return s.calls[route]
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.calls[route]++
		f, failing := s.failures[route]
		delete(s.failures, route)
		s.mu.Unlock()
		if failing {
			if f.message == "" {
				w.WriteHeader(f.status)
				return
			}
			writeJSON(w, f.status, map[string]string{"message": f.message})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	var in struct{ Username, Email, Password string }
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Email == "" || in.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Missing fields"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, in.Email) || u.Username == in.Username {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "Username or email already exists"})
			return
		}
	}
	s.users = append(s.users, user{Username: in.Username, Email: in.Email, Password: in.Password})
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User created"})
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var in struct{ Email, Password string }
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Bad request"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, in.Email) && u.Password == in.Password {
			for tok, email := range s.tokens {
				if email == u.Email {
					writeJSON(w, http.StatusOK, map[string]string{"token": tok})
					return
				}
			}
			tok := fmt.Sprintf("tok-%s", u.Username)
			s.tokens[tok] = u.Email
			writeJSON(w, http.StatusOK, map[string]string{"token": tok})
			return
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
}

func (s *Server) owner(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return "", false
	}
	email, ok := s.tokens[tok]
	return email, ok
}

func (s *Server) catalog(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"casas": append([]House{}, s.houses...)})
}

func (s *Server) mine(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.owner(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token inválido"})
		return
	}
	out := []House{}
	for _, h := range s.houses {
		if h.Owner == email {
			out = append(out, h)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"casas": out})
}

func decodeHouse(r *http.Request) (House, bool) {
	var h House
	if err := json.NewDecoder(r.Body).Decode(&h); err != nil {
		return House{}, false
	}
	return h, h.Name != "" && h.Location != ""
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.owner(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token inválido"})
		return
	}
	h, ok := decodeHouse(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Datos incompletos"})
		return
	}
	s.nextID++
	h.ID = fmt.Sprintf("c%d", s.nextID)
	h.Owner = email
	s.houses = append(s.houses, h)
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) find(id string) int {
	for i, h := range s.houses {
		if h.ID == id {
			return i
		}
	}
	return -1
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.owner(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token inválido"})
		return
	}
	i := s.find(r.PathValue("id"))
	if i < 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Casa no encontrada"})
		return
	}
	if s.houses[i].Owner != email {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "No autorizado"})
		return
	}
	h, ok := decodeHouse(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Datos incompletos"})
		return
	}
	h.ID, h.Owner = s.houses[i].ID, email
	s.houses[i] = h
	writeJSON(w, http.StatusOK, map[string]any{"casa": h})
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := s.owner(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token inválido"})
		return
	}
	i := s.find(r.PathValue("id"))
	if i < 0 || s.houses[i].Owner != email {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.houses = append(s.houses[:i], s.houses[i+1:]...)
	w.WriteHeader(http.StatusNoContent)
}
