// Package viewport turns the visible map region into the node list to render.
package viewport

import (
	"math"

	"github.com/paulmach/orb"

	"roommap/server/internal/models"
	"roommap/server/internal/spatial"
)

// Viewport is the visible map region as a center plus its spans in degrees.
type Viewport struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	LatitudeDelta  float64 `json:"latitudeDelta"`
	LongitudeDelta float64 `json:"longitudeDelta"`
}

// Limits bounds the spans a viewport may have.
type Limits struct {
	MinDelta float64
	MaxDelta float64
}

// DefaultLimits allows anything from a single block to the whole globe.
func DefaultLimits() Limits {
	return Limits{MinDelta: 0.0005, MaxDelta: 360}
}

// Valid reports whether the center is finite and both spans are positive.
func (v Viewport) Valid() bool {
	for _, f := range []float64{v.Latitude, v.Longitude, v.LatitudeDelta, v.LongitudeDelta} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return v.LatitudeDelta > 0 && v.LongitudeDelta > 0
}

// Clamp returns v with both spans bounded by l. Non-positive and NaN spans clamp
// to the minimum.
func (v Viewport) Clamp(l Limits) Viewport {
	v.LatitudeDelta = clampDelta(v.LatitudeDelta, l)
	v.LongitudeDelta = clampDelta(v.LongitudeDelta, l)
	return v
}

func clampDelta(d float64, l Limits) float64 {
	if math.IsNaN(d) || d <= 0 {
		return l.MinDelta
	}
	return math.Max(l.MinDelta, math.Min(l.MaxDelta, d))
}

// ZoomFor maps the longitude span to a discrete zoom level in [minZoom, maxZoom].
func ZoomFor(v Viewport, minZoom, maxZoom int) int {
	if math.IsNaN(v.LongitudeDelta) || v.LongitudeDelta <= 0 {
		return maxZoom
	}
	zoom := math.Round(math.Log2(360 / v.LongitudeDelta))
	switch {
	case zoom < float64(minZoom):
		return minZoom
	case zoom > float64(maxZoom):
		return maxZoom
	}
	return int(zoom)
}

// BBox returns the region covered by v.
func BBox(v Viewport) orb.Bound {
	return orb.Bound{
		Min: orb.Point{v.Longitude - v.LongitudeDelta/2, v.Latitude - v.LatitudeDelta/2},
		Max: orb.Point{v.Longitude + v.LongitudeDelta/2, v.Latitude + v.LatitudeDelta/2},
	}
}

// Source hands out the current index build. It may return nil before the first build.
type Source interface {
	Index() *spatial.Index
}

// Resolver answers viewport queries against whatever index the source holds.
type Resolver struct {
	source Source
}

func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns the nodes visible in v. It never fails: an unbuilt index or an
// invalid viewport yields an empty list.
func (r *Resolver) Resolve(v Viewport) []models.ClusterNode {
	if r == nil || r.source == nil {
		return []models.ClusterNode{}
	}
	return ResolveIndex(r.source.Index(), v)
}

// ResolveIndex is Resolve against an explicit build.
func ResolveIndex(ix *spatial.Index, v Viewport) []models.ClusterNode {
	if ix == nil || !v.Valid() {
		return []models.ClusterNode{}
	}
	opts := ix.Options()
	// Zoom MaxZoom+1 reads the unclustered buildings.
	zoom := ZoomFor(v, opts.MinZoom, opts.MaxZoom+1)
	return ix.Query(BBox(v), zoom)
}
