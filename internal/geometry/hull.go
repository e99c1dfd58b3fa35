// Package geometry computes the outline of a cluster for map overlays.
package geometry

import (
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"roommap/server/internal/models"
)

// DefaultBuffer pads hulls by roughly 50 m so single buildings stay visible.
const DefaultBuffer = 0.0005

// ConvexHull returns the closed convex hull of points, counter-clockwise. It returns
// nil when the points do not span an area.
func ConvexHull(points []orb.Point) orb.Ring {
	if len(points) < 3 {
		return nil
	}
	pts := make([]orb.Point, len(points))
	copy(pts, points)
	sort.Slice(pts, func(i, j int) bool {
		if pts[i][0] != pts[j][0] {
			return pts[i][0] < pts[j][0]
		}
		return pts[i][1] < pts[j][1]
	})

	// Monotone chain: lower hull then upper hull.
	hull := make([]orb.Point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// The last point repeats the first, closing the ring.
	if len(hull) < 4 {
		return nil
	}
	return orb.Ring(hull)
}

func cross(o, a, b orb.Point) float64 {
	return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
}

// bufferRing pushes every vertex of a convex ring away from its centroid by d.
func bufferRing(ring orb.Ring, d float64) orb.Ring {
	center, _ := planar.CentroidArea(ring)
	out := make(orb.Ring, len(ring))
	for i, p := range ring {
		dx, dy := p[0]-center[0], p[1]-center[1]
		dist := planar.Distance(p, center)
		if dist == 0 {
			out[i] = p
			continue
		}
		out[i] = orb.Point{p[0] + dx/dist*d, p[1] + dy/dist*d}
	}
	return out
}

// Outline returns the polygon covering points, padded by buffer. Fewer than three
// points, or collinear points, give their padded bounding box.
func Outline(points []orb.Point, buffer float64) orb.Polygon {
	if len(points) == 0 {
		return nil
	}
	if ring := ConvexHull(points); ring != nil {
		return orb.Polygon{bufferRing(ring, buffer)}
	}

	b := orb.MultiPoint(points).Bound().Pad(buffer)
	return b.ToPolygon()
}

// ClusterHull builds a GeoJSON feature outlining the buildings of a cluster.
func ClusterHull(id models.ClusterID, leaves []*models.BuildingGroup, buffer float64) *geojson.Feature {
	points := make([]orb.Point, 0, len(leaves))
	for _, l := range leaves {
		if l != nil {
			points = append(points, orb.Point{l.Longitude, l.Latitude})
		}
	}
	poly := Outline(points, buffer)
	if poly == nil {
		return nil
	}

	f := geojson.NewFeature(poly)
	f.Properties["cluster_id"] = id.String()
	f.Properties["point_count"] = len(points)
	f.Properties["area"] = planar.Area(poly)
	return f
}
