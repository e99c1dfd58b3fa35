// Package camera plans camera moves for cluster taps and projects overlays into
// screen space.
package camera

import (
	"math"

	"roommap/server/internal/models"
	"roommap/server/internal/viewport"
)

// LeafSource resolves the buildings inside a cluster.
type LeafSource interface {
	Leaves(id models.ClusterID, limit, offset int) ([]*models.BuildingGroup, error)
}

// PlannerConfig bounds the regions produced by the planner.
type PlannerConfig struct {
	Padding     float64 // fraction of each span added on both sides
	MinLatDelta float64
	MaxLatDelta float64
	MinLngDelta float64
	MaxLngDelta float64
}

func DefaultPlannerConfig() PlannerConfig {
	return PlannerConfig{
		Padding:     0.1,
		MinLatDelta: 0.005,
		MaxLatDelta: 0.5,
		MinLngDelta: 0.004,
		MaxLngDelta: 0.4,
	}
}

// Planner computes the region that frames every building of a cluster.
type Planner struct {
	config PlannerConfig
}

func NewPlanner(config PlannerConfig) *Planner {
	if config.Padding < 0 || math.IsNaN(config.Padding) {
		config.Padding = 0
	}
	if config.MaxLatDelta < config.MinLatDelta {
		config.MaxLatDelta = config.MinLatDelta
	}
	if config.MaxLngDelta < config.MinLngDelta {
		config.MaxLngDelta = config.MinLngDelta
	}
	return &Planner{config: config}
}

// Config returns the planner's bounds.
func (p *Planner) Config() PlannerConfig {
	return p.config
}

// Plan returns the target region for a cluster node. ok is false when the camera
// should stay where it is: the node is not a cluster, its id does not resolve, or it
// has fewer than two buildings with usable coordinates.
func (p *Planner) Plan(source LeafSource, node models.ClusterNode) (viewport.Viewport, bool) {
	if source == nil || !node.IsCluster() {
		return viewport.Viewport{}, false
	}
	leaves, err := source.Leaves(node.ClusterID, 0, 0)
	if err != nil || len(leaves) < 2 {
		return viewport.Viewport{}, false
	}

	minLat, maxLat := math.Inf(1), math.Inf(-1)
	minLng, maxLng := math.Inf(1), math.Inf(-1)
	counted := 0
	for _, leaf := range leaves {
		if leaf == nil || !finite(leaf.Latitude) || !finite(leaf.Longitude) {
			continue
		}
		minLat = math.Min(minLat, leaf.Latitude)
		maxLat = math.Max(maxLat, leaf.Latitude)
		minLng = math.Min(minLng, leaf.Longitude)
		maxLng = math.Max(maxLng, leaf.Longitude)
		counted++
	}
	if counted < 2 {
		return viewport.Viewport{}, false
	}

	scale := 1 + 2*p.config.Padding
	return viewport.Viewport{
		Latitude:       (minLat + maxLat) / 2,
		Longitude:      (minLng + maxLng) / 2,
		LatitudeDelta:  clamp((maxLat-minLat)*scale, p.config.MinLatDelta, p.config.MaxLatDelta),
		LongitudeDelta: clamp((maxLng-minLng)*scale, p.config.MinLngDelta, p.config.MaxLngDelta),
	}, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
