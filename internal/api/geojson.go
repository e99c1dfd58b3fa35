package api

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"roommap/server/internal/mapview"
	"roommap/server/internal/models"
)

// nodeFeature renders one viewport node as a GeoJSON point. Cluster and building
// features share kind, marker_id and the marker state properties.
func nodeFeature(rn mapview.RenderedNode) *geojson.Feature {
	n := rn.Node
	f := geojson.NewFeature(orb.Point{n.Longitude, n.Latitude})
	f.ID = n.MarkerID()
	f.Properties["marker_id"] = n.MarkerID()

	if n.IsCluster() {
		f.Properties["kind"] = models.NodeCluster.String()
		f.Properties["cluster_id"] = n.ClusterID.String()
		f.Properties["point_count"] = n.PointCount
	} else if n.Building != nil {
		f.Properties["kind"] = models.NodeBuilding.String()
		f.Properties["building_key"] = n.Building.Key
		f.Properties["count"] = n.Building.Count
		f.Properties["min_price"] = n.Building.MinPrice
		f.Properties["max_price"] = n.Building.MaxPrice
	}

	if rn.Marker != nil {
		f.Properties["selected"] = rn.Marker.Selected
		f.Properties["scale"] = rn.Marker.Scale
	}
	return f
}

func nodesCollection(nodes []mapview.RenderedNode) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, rn := range nodes {
		fc.Append(nodeFeature(rn))
	}
	return fc
}
