package models

import "strings"

// ListingFilter narrows the listing set before it is grouped into buildings.
type ListingFilter struct {
	FavoritesOnly bool                `json:"favorites_only"`
	Favorites     map[string]struct{} `json:"-"`
	MinPrice      *float64            `json:"min_price"`
	MaxPrice      *float64            `json:"max_price"`
	MinRooms      *int                `json:"min_rooms"`
	MaxRooms      *int                `json:"max_rooms"`
	Floors        []string            `json:"floors"`
}

// IsFavorite reports whether the listing id is in the favorites set.
func (f *ListingFilter) IsFavorite(id FlexString) bool {
	if f == nil || f.Favorites == nil {
		return false
	}
	_, ok := f.Favorites[string(id)]
	return ok
}

// Allows checks if a record matches the filter criteria. price is the already
// normalized price of the record.
func (f *ListingFilter) Allows(record *PropertyRecord, price float64) bool {
	if f == nil {
		return true // No filter means allow all
	}

	if f.FavoritesOnly && !f.IsFavorite(record.ID) {
		return false
	}

	// Check price range
	if f.MinPrice != nil && price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && price > *f.MaxPrice {
		return false
	}

	// Check number of rooms
	if f.MinRooms != nil && record.Rooms < *f.MinRooms {
		return false
	}
	if f.MaxRooms != nil && record.Rooms > *f.MaxRooms {
		return false
	}

	if len(f.Floors) > 0 {
		floor := strings.TrimSpace(record.Floor.String())
		allowed := false
		for _, want := range f.Floors {
			if want == floor {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}

// FilterRecords returns the records allowed by the filter, preserving input order.
func FilterRecords(records []PropertyRecord, filter *ListingFilter, price func(*PropertyRecord) float64) []PropertyRecord {
	if filter == nil {
		return records
	}
	out := make([]PropertyRecord, 0, len(records))
	for i := range records {
		var p float64
		if price != nil {
			p = price(&records[i])
		}
		if filter.Allows(&records[i], p) {
			out = append(out, records[i])
		}
	}
	return out
}
