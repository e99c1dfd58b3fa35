// Package building groups listings into buildings and summarizes each building.
package building

import (
	"math"

	"roommap/server/internal/address"
	"roommap/server/internal/models"
	"roommap/server/internal/pricing"
)

// Groups is the result of one aggregation pass. It is never mutated after Aggregate
// returns.
type Groups struct {
	byKey   map[string]*models.BuildingGroup
	order   []string
	Skipped int // records without usable coordinates
}

// Aggregate groups records by building key in a single pass. Records with missing or
// non-numeric coordinates are skipped. Member order follows input order and keys are
// reported in first-seen order.
func Aggregate(records []models.PropertyRecord, price pricing.Func) *Groups {
	if price == nil {
		price = pricing.NormalizeDeposit
	}

	g := &Groups{byKey: make(map[string]*models.BuildingGroup)}
	for _, r := range records {
		lat, lng, ok := r.Coordinates()
		if !ok {
			g.Skipped++
			continue
		}

		key := address.BuildingKey(r.Address)
		group, exists := g.byKey[key]
		if !exists {
			group = &models.BuildingGroup{
				Key:       key,
				Latitude:  lat,
				Longitude: lng,
				MinPrice:  math.Inf(1),
				MaxPrice:  0,
			}
			g.byKey[key] = group
			g.order = append(g.order, key)
		}

		p := price(r.PriceDeposit.String(), r.ID.String(), r.TransactionType)
		group.Members = append(group.Members, r)
		group.Count++
		group.MinPrice = math.Min(group.MinPrice, p)
		group.MaxPrice = math.Max(group.MaxPrice, p)
	}
	return g
}

// Len returns the number of buildings.
func (g *Groups) Len() int {
	if g == nil {
		return 0
	}
	return len(g.order)
}

// Get returns the building for a key.
func (g *Groups) Get(key string) (*models.BuildingGroup, bool) {
	if g == nil {
		return nil, false
	}
	b, ok := g.byKey[key]
	return b, ok
}

// List returns the buildings in first-seen order.
func (g *Groups) List() []*models.BuildingGroup {
	if g == nil {
		return nil
	}
	out := make([]*models.BuildingGroup, len(g.order))
	for i, key := range g.order {
		out[i] = g.byKey[key]
	}
	return out
}
