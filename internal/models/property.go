package models

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// FlexString accepts either a JSON string or a JSON number. The listing API is not
// consistent about quoting identifiers and prices.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	*s = FlexString(b)
	return nil
}

func (s FlexString) String() string {
	return string(s)
}

// Degrees holds a latitude or longitude exactly as received. Records whose
// coordinates do not parse are kept but never reach the spatial pipeline.
type Degrees string

func (d *Degrees) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		// Non-numeric garbage must not fail the whole payload.
		*d = Degrees(strings.Trim(string(b), `"`))
		return nil
	}
	*d = Degrees(s)
	return nil
}

func (d Degrees) MarshalJSON() ([]byte, error) {
	if v, ok := d.Float(); ok {
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), nil
	}
	return []byte("null"), nil
}

// Float parses the value. NaN and infinities are rejected.
func (d Degrees) Float() (float64, bool) {
	raw := strings.TrimSpace(string(d))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// DegreesOf formats a float as Degrees.
func DegreesOf(v float64) Degrees {
	return Degrees(strconv.FormatFloat(v, 'f', -1, 64))
}

// PropertyRecord is a single rental listing as delivered by the listing API.
type PropertyRecord struct {
	ID              FlexString `json:"room_id" gorm:"primaryKey;column:room_id"`
	Latitude        Degrees    `json:"latitude"`
	Longitude       Degrees    `json:"longitude"`
	Address         string     `json:"address"`
	PriceDeposit    FlexString `json:"price_deposit"`
	PriceMonthly    FlexString `json:"price_monthly"`
	TransactionType string     `json:"transaction_type"`
	Floor           FlexString `json:"floor"`
	Rooms           int        `json:"rooms"`
	FavoriteCount   int        `json:"favorite_count"`
	UpdatedAt       time.Time  `json:"-"`
}

// TableName keeps the gorm table name stable.
func (PropertyRecord) TableName() string {
	return "listings"
}

// UnmarshalJSON accepts both "room_id" and the older "id" field.
func (r *PropertyRecord) UnmarshalJSON(b []byte) error {
	type plain PropertyRecord
	var aux struct {
		plain
		LegacyID FlexString `json:"id"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = PropertyRecord(aux.plain)
	if r.ID == "" {
		r.ID = aux.LegacyID
	}
	return nil
}

// Coordinates returns the record position if both values are numeric and on the globe.
func (r *PropertyRecord) Coordinates() (lat, lng float64, ok bool) {
	lat, ok = r.Latitude.Float()
	if !ok || lat < -90 || lat > 90 {
		return 0, 0, false
	}
	lng, ok = r.Longitude.Float()
	if !ok || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}

// BuildingGroup aggregates every listing sharing a building key.
type BuildingGroup struct {
	Key       string           `json:"building_key"`
	Latitude  float64          `json:"latitude"`
	Longitude float64          `json:"longitude"`
	Members   []PropertyRecord `json:"members"`
	Count     int              `json:"count"`
	MinPrice  float64          `json:"min_price"`
	MaxPrice  float64          `json:"max_price"`
}

// Favorite marks a listing as favorited by the local user.
type Favorite struct {
	ListingID string    `gorm:"primaryKey" json:"listing_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchPin is a geocoded search result shown as an overlay on the map.
type SearchPin struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label"`
}
