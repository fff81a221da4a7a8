package services

import (
	"context"
	"errors"

	"casasweb/internal/domain"
)

var ErrListingNotFound = errors.New("listing not found")

type CatalogAPI interface {
	Catalog(ctx context.Context) ([]domain.Listing, error)
}

type CatalogService struct {
	API CatalogAPI
}

func NewCatalogService(api CatalogAPI) *CatalogService {
	return &CatalogService{API: api}
}

// List returns the public listing set.
func (s *CatalogService) List(ctx context.Context) ([]domain.Listing, error) {
	return s.API.Catalog(ctx)
}

// Get finds one public listing. The API has no single-listing endpoint, so
// this filters the full catalog.
func (s *CatalogService) Get(ctx context.Context, id string) (domain.Listing, error) {
	ls, err := s.API.Catalog(ctx)
	if err != nil {
		return domain.Listing{}, err
	}
	for _, l := range ls {
		if l.ID == id {
			return l, nil
		}
	}
	return domain.Listing{}, ErrListingNotFound
}
