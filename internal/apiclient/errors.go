package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAuthRequired is returned, without any network call, when an authenticated
// operation is attempted with no session token.
var ErrAuthRequired = errors.New("authentication required")

// ErrNetwork matches every *NetworkError via errors.Is.
var ErrNetwork = errors.New("network failure")

// Kind classifies a failed response so callers never match on message text.
type Kind int

const (
	KindOther Kind = iota
	KindUnauthorized
	KindNotFound
	KindConflict
)

func kindOf(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	default:
		return KindOther
	}
}

// RequestError is a non-2xx answer from the API. Message carries the server's
// own message when it sent one.
type RequestError struct {
	Op      string
	Status  int
	Message string
	Kind    Kind
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// NetworkError wraps a transport failure (unreachable host, timeout, bad URL).
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// StatusOf returns the HTTP status of a RequestError, or 0.
func StatusOf(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// IsKind reports whether err is a RequestError of the given kind.
func IsKind(err error, k Kind) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Kind == k
}

// Describe turns any client error into the text shown to the user.
func Describe(err error) string {
	var re *RequestError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthRequired):
		return "You are not signed in."
	case errors.As(err, &re):
		return re.Message
	case errors.Is(err, ErrNetwork):
		return "A network error occurred. Please try again later."
	default:
		return "Something went wrong. Please try again."
	}
}
