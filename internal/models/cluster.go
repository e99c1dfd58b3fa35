package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidClusterID = errors.New("invalid cluster id")

// NodeKind tags the variant held by a ClusterNode.
type NodeKind uint8

const (
	NodeBuilding NodeKind = iota
	NodeCluster
)

func (k NodeKind) String() string {
	switch k {
	case NodeBuilding:
		return "building"
	case NodeCluster:
		return "cluster"
	default:
		return "unknown"
	}
}

// ClusterID identifies a cluster within one build of the spatial index.
type ClusterID struct {
	Build uuid.UUID
	Seq   uint64
}

func (id ClusterID) String() string {
	return fmt.Sprintf("%d@%s", id.Seq, id.Build)
}

// ParseClusterID parses the form produced by ClusterID.String.
func ParseClusterID(s string) (ClusterID, error) {
	seq, build, found := strings.Cut(s, "@")
	if !found {
		return ClusterID{}, fmt.Errorf("%w: %q", ErrInvalidClusterID, s)
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return ClusterID{}, fmt.Errorf("%w: %q", ErrInvalidClusterID, s)
	}
	b, err := uuid.Parse(build)
	if err != nil {
		return ClusterID{}, fmt.Errorf("%w: %q", ErrInvalidClusterID, s)
	}
	return ClusterID{Build: b, Seq: n}, nil
}

// ClusterNode is one renderable result of a viewport query: either a cluster of
// buildings or exactly one building.
type ClusterNode struct {
	Kind       NodeKind
	Latitude   float64
	Longitude  float64
	ClusterID  ClusterID      // NodeCluster only
	PointCount int            // NodeCluster only
	Building   *BuildingGroup // NodeBuilding only
}

// NewClusterNode builds a cluster variant.
func NewClusterNode(id ClusterID, lat, lng float64, pointCount int) ClusterNode {
	return ClusterNode{
		Kind:       NodeCluster,
		Latitude:   lat,
		Longitude:  lng,
		ClusterID:  id,
		PointCount: pointCount,
	}
}

// NewBuildingNode builds a building variant positioned at the group's coordinate.
func NewBuildingNode(g *BuildingGroup) ClusterNode {
	return ClusterNode{
		Kind:      NodeBuilding,
		Latitude:  g.Latitude,
		Longitude: g.Longitude,
		Building:  g,
	}
}

// IsCluster reports whether the node must render as a cluster bubble. Single point
// results always render as building markers.
func (n ClusterNode) IsCluster() bool {
	return n.Kind == NodeCluster && n.PointCount > 1
}

// MarkerID is the stable identifier used for marker state.
func (n ClusterNode) MarkerID() string {
	if n.Kind == NodeCluster {
		return "cluster:" + n.ClusterID.String()
	}
	if n.Building == nil {
		return ""
	}
	return BuildingMarkerID(n.Building.Key)
}

// BuildingMarkerID is the marker identifier for a building key.
func BuildingMarkerID(key string) string {
	return "building:" + key
}
