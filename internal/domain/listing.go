package domain

import (
	"encoding/json"
	"strconv"
)

// Listing is a property record as served by the remote catalog API.
type Listing struct {
	ID          string  `json:"_id"`
	Name        string  `json:"nombre"`
	Price       float64 `json:"precio"`
	Location    string  `json:"ubicacion"`
	Description string  `json:"descripcion"`
}

// UnmarshalJSON accepts both `_id` and `id` and tolerates prices sent as strings.
func (l *Listing) UnmarshalJSON(b []byte) error {
	var raw struct {
		MongoID     string          `json:"_id"`
		ID          string          `json:"id"`
		Name        string          `json:"nombre"`
		Price       json.RawMessage `json:"precio"`
		Location    string          `json:"ubicacion"`
		Description string          `json:"descripcion"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	l.ID = raw.MongoID
	if l.ID == "" {
		l.ID = raw.ID
	}
	l.Name, l.Location, l.Description = raw.Name, raw.Location, raw.Description
	l.Price = 0
	if len(raw.Price) > 0 && string(raw.Price) != "null" {
		var n float64
		if err := json.Unmarshal(raw.Price, &n); err != nil {
			var s string
			if err := json.Unmarshal(raw.Price, &s); err != nil {
				return err
			}
			if n, err = strconv.ParseFloat(s, 64); err != nil {
				return err
			}
		}
		l.Price = n
	}
	return nil
}

// Draft is the single create/edit form as typed by the user.
type Draft struct {
	Name        string
	Price       string
	Location    string
	Description string
}

// DraftFromListing fills a draft with an existing listing's editable fields.
func DraftFromListing(l Listing) Draft {
	return Draft{
		Name:        l.Name,
		Price:       strconv.FormatFloat(l.Price, 'f', -1, 64),
		Location:    l.Location,
		Description: l.Description,
	}
}

// ListingInput is a validated draft, ready to be sent to the API.
type ListingInput struct {
	Name        string  `json:"nombre"`
	Price       float64 `json:"precio"`
	Location    string  `json:"ubicacion"`
	Description string  `json:"descripcion"`
}
