package validate

import (
	"errors"
	"testing"

	"casasweb/internal/domain"
)

func TestDraftValid(t *testing.T) {
	in, errs := Draft(domain.Draft{Name: " Casa A ", Price: "1000", Location: "X", Description: "Y"})
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if in.Name != "Casa A" || in.Price != 1000 || in.Location != "X" || in.Description != "Y" {
		t.Fatalf("unexpected input: %+v", in)
	}
}

func TestDraftZeroPriceAllowed(t *testing.T) {
	if _, errs := Draft(domain.Draft{Name: "n", Price: "0", Location: "l", Description: "d"}); errs != nil {
		t.Fatalf("zero price should be valid: %v", errs)
	}
}

func TestDraftRejections(t *testing.T) {
	base := domain.Draft{Name: "n", Price: "10", Location: "l", Description: "d"}
	cases := []struct {
		name  string
		mod   func(*domain.Draft)
		field string
	}{
		{"empty name", func(d *domain.Draft) { d.Name = "  " }, "name"},
		{"empty price", func(d *domain.Draft) { d.Price = "" }, "price"},
		{"negative price", func(d *domain.Draft) { d.Price = "-1" }, "price"},
		{"non numeric price", func(d *domain.Draft) { d.Price = "abc" }, "price"},
		{"nan price", func(d *domain.Draft) { d.Price = "NaN" }, "price"},
		{"empty location", func(d *domain.Draft) { d.Location = "" }, "location"},
		{"empty description", func(d *domain.Draft) { d.Description = "" }, "description"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := base
			tc.mod(&d)
			_, errs := Draft(d)
			if !errs.Has(tc.field) {
				t.Fatalf("expected error on %s, got %v", tc.field, errs)
			}
			var target Errors
			if !errors.As(error(errs), &target) {
				t.Fatal("Errors should satisfy error")
			}
		})
	}
}

func TestEmail(t *testing.T) {
	if _, ok := Email("a@b.com"); !ok {
		t.Fatal("a@b.com should be valid")
	}
	if _, ok := Email("not-an-email"); ok {
		t.Fatal("expected invalid email")
	}
}

func TestContact(t *testing.T) {
	if _, _, errs := Contact("", "hello"); errs != nil {
		t.Fatalf("subject is optional: %v", errs)
	}
	if _, _, errs := Contact("hi", "   "); !errs.Has("message") {
		t.Fatal("message is required")
	}
}
