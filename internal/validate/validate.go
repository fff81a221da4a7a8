package validate

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"casasweb/internal/domain"
)

var (
	reEmail = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	reID    = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

const (
	maxName        = 120
	maxLocation    = 160
	maxDescription = 4000
	maxSubject     = 120
	maxMessage     = 2000
)

// Errors maps a form field to a user-facing problem. A non-empty Errors is a ValidationFailed error.
type Errors map[string]string

func (e Errors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e Errors) Has(field string) bool {
	_, ok := e[field]
	return ok
}

// Draft checks the listing form. All four fields are required and the price
// must be a non-negative number.
func Draft(d domain.Draft) (domain.ListingInput, Errors) {
	errs := Errors{}
	in := domain.ListingInput{
		Name:        strings.TrimSpace(d.Name),
		Location:    strings.TrimSpace(d.Location),
		Description: strings.TrimSpace(d.Description),
	}

	switch {
	case in.Name == "":
		errs["name"] = "Name is required"
	case len(in.Name) > maxName:
		errs["name"] = "Name is too long"
	}

	rawPrice := strings.TrimSpace(d.Price)
	if rawPrice == "" {
		errs["price"] = "Price is required"
	} else if p, err := strconv.ParseFloat(rawPrice, 64); err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		errs["price"] = "Price must be a number"
	} else if p < 0 {
		errs["price"] = "Price cannot be negative"
	} else {
		in.Price = p
	}

	switch {
	case in.Location == "":
		errs["location"] = "Location is required"
	case len(in.Location) > maxLocation:
		errs["location"] = "Location is too long"
	}

	switch {
	case in.Description == "":
		errs["description"] = "Description is required"
	case len(in.Description) > maxDescription:
		errs["description"] = "Description is too long"
	}

	if len(errs) > 0 {
		return domain.ListingInput{}, errs
	}
	return in, nil
}

func Email(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 0 || len(s) > 100 {
		return "", false
	}
	return s, reEmail.MatchString(s)
}

// Username validates a display name for sign-up.
func Username(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 30 {
		return "", false
	}
	return s, true
}

// Password only checks presence and an upper bound; strength rules belong to the API.
func Password(s string) bool {
	return s != "" && len(s) <= 128
}

// ID validates a listing identifier taken from a path.
func ID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reID.MatchString(s)
}

// Contact validates the contact modal. Subject is optional.
func Contact(subject, message string) (string, string, Errors) {
	errs := Errors{}
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	if len(subject) > maxSubject {
		errs["subject"] = "Subject is too long"
	}
	switch {
	case message == "":
		errs["message"] = "Message is required"
	case len(message) > maxMessage:
		errs["message"] = "Message is too long"
	}
	if len(errs) > 0 {
		return "", "", errs
	}
	return subject, message, nil
}
