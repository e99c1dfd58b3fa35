// Package spatial implements the hierarchical clustering index over buildings.
//
// Buildings are projected into the Web-Mercator unit square and clustered greedily
// from the deepest zoom level up to the shallowest. Every level keeps its own
// quadtree, so a viewport query at any zoom is a single range lookup.
package spatial

import (
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"roommap/server/internal/models"
)

var (
	ErrClusterNotFound = errors.New("cluster not found")
	ErrStaleCluster    = errors.New("cluster belongs to a previous index build")
)

// Cluster ids pack the origin node index and zoom; 5 bits of zoom.
const maxSupportedZoom = 24

var unitSquare = orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}

// Options configures an index build.
type Options struct {
	MinZoom   int     // shallowest zoom level that gets clusters
	MaxZoom   int     // deepest zoom level that gets clusters
	MinPoints int     // minimum number of buildings to form a cluster
	Radius    float64 // cluster radius in pixels
	Extent    int     // tile extent in pixels, radius is relative to it
	NodeSize  int     // initial buffer size for neighbour lookups
}

// DefaultOptions mirrors the settings the map screen ships with.
func DefaultOptions() Options {
	return Options{
		MinZoom:   0,
		MaxZoom:   16,
		MinPoints: 2,
		Radius:    40,
		Extent:    512,
		NodeSize:  64,
	}
}

func (o Options) normalized() Options {
	if o.MinZoom < 0 {
		o.MinZoom = 0
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = 16
	}
	if o.MaxZoom > maxSupportedZoom {
		o.MaxZoom = maxSupportedZoom
	}
	if o.MinZoom > o.MaxZoom {
		o.MinZoom = o.MaxZoom
	}
	if o.MinPoints < 2 {
		o.MinPoints = 2
	}
	if o.Radius <= 0 {
		o.Radius = 40
	}
	if o.Extent <= 0 {
		o.Extent = 512
	}
	if o.NodeSize <= 0 {
		o.NodeSize = 64
	}
	return o
}

type node struct {
	x, y      float64
	zoom      int    // last zoom level this node was processed at
	index     int    // building index for leaves, origin index for clusters
	id        uint64 // cluster id, 0 for leaves
	parent    uint64 // id of the cluster that absorbed this node, 0 if none
	numPoints int
	cluster   bool
}

func (n *node) Point() orb.Point {
	return orb.Point{n.x, n.y}
}

type level struct {
	nodes []*node
	tree  *quadtree.Quadtree
}

func newLevel(nodes []*node) *level {
	tree := quadtree.New(unitSquare)
	for _, n := range nodes {
		// Nodes are validated before projection, Add cannot fail.
		_ = tree.Add(n)
	}
	return &level{nodes: nodes, tree: tree}
}

// Index is an immutable clustering index over one set of buildings.
type Index struct {
	opts      Options
	buildID   uuid.UUID
	groups    []*models.BuildingGroup
	numPoints int
	levels    []*level // indexed by zoom, MaxZoom+1 holds the raw buildings
}

// Build clusters the buildings at every zoom level. Buildings whose coordinates do
// not project onto the map are left out.
func Build(groups []*models.BuildingGroup, opts Options) *Index {
	opts = opts.normalized()
	ix := &Index{
		opts:    opts,
		buildID: uuid.New(),
		groups:  groups,
		levels:  make([]*level, opts.MaxZoom+2),
	}

	nodes := make([]*node, 0, len(groups))
	for i, g := range groups {
		if g == nil {
			continue
		}
		p := orb.Point{ProjectX(g.Longitude), ProjectY(g.Latitude)}
		if !finite(p) || !unitSquare.Contains(p) {
			continue
		}
		nodes = append(nodes, &node{
			x:         p[0],
			y:         p[1],
			zoom:      math.MaxInt,
			index:     i,
			numPoints: 1,
		})
	}
	ix.numPoints = len(nodes)
	ix.levels[opts.MaxZoom+1] = newLevel(nodes)

	for z := opts.MaxZoom; z >= opts.MinZoom; z-- {
		nodes = ix.cluster(nodes, z)
		ix.levels[z] = newLevel(nodes)
	}
	return ix
}

func (ix *Index) cluster(points []*node, zoom int) []*node {
	r := ix.radiusAt(zoom)
	tree := ix.levels[zoom+1].tree
	next := make([]*node, 0, len(points))
	buf := make([]orb.Pointer, 0, ix.opts.NodeSize)

	for i, p := range points {
		if p.zoom <= zoom {
			continue
		}
		p.zoom = zoom

		buf = within(tree, buf[:0], p.x, p.y, r)

		numOrigin := p.numPoints
		num := numOrigin
		for _, b := range buf {
			if nb := b.(*node); nb.zoom > zoom {
				num += nb.numPoints
			}
		}

		if num > numOrigin && num >= ix.opts.MinPoints {
			wx := p.x * float64(numOrigin)
			wy := p.y * float64(numOrigin)
			id := uint64(i)<<5 + uint64(zoom+1) + uint64(ix.numPoints)

			for _, b := range buf {
				nb := b.(*node)
				if nb.zoom <= zoom {
					continue
				}
				nb.zoom = zoom
				wx += nb.x * float64(nb.numPoints)
				wy += nb.y * float64(nb.numPoints)
				nb.parent = id
			}

			p.parent = id
			next = append(next, &node{
				x:         wx / float64(num),
				y:         wy / float64(num),
				zoom:      math.MaxInt,
				index:     i,
				id:        id,
				numPoints: num,
				cluster:   true,
			})
			continue
		}

		next = append(next, p)
		if num > 1 {
			for _, b := range buf {
				nb := b.(*node)
				if nb.zoom <= zoom {
					continue
				}
				nb.zoom = zoom
				next = append(next, nb)
			}
		}
	}
	return next
}

func (ix *Index) radiusAt(zoom int) float64 {
	return ix.opts.Radius / (float64(ix.opts.Extent) * math.Pow(2, float64(zoom)))
}

func within(tree *quadtree.Quadtree, buf []orb.Pointer, x, y, r float64) []orb.Pointer {
	b := orb.Bound{Min: orb.Point{x - r, y - r}, Max: orb.Point{x + r, y + r}}
	r2 := r * r
	return tree.InBoundMatching(buf, b, func(p orb.Pointer) bool {
		n := p.(*node)
		dx, dy := n.x-x, n.y-y
		return dx*dx+dy*dy <= r2
	})
}

// BuildID identifies this build. Cluster ids from other builds are rejected.
func (ix *Index) BuildID() uuid.UUID {
	if ix == nil {
		return uuid.Nil
	}
	return ix.buildID
}

// Len returns the number of indexed buildings.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.numPoints
}

// Options returns the normalized build options.
func (ix *Index) Options() Options {
	if ix == nil {
		return DefaultOptions()
	}
	return ix.opts
}

func (ix *Index) limitZoom(z int) int {
	return max(ix.opts.MinZoom, min(z, ix.opts.MaxZoom+1))
}

// Query returns the clusters and single buildings inside bbox at the given zoom. The
// result is empty, never nil, when nothing is indexed or nothing is visible.
func (ix *Index) Query(bbox orb.Bound, zoom int) []models.ClusterNode {
	out := []models.ClusterNode{}
	if ix.Len() == 0 || !finite(bbox.Min) || !finite(bbox.Max) {
		return out
	}

	minLng := wrapLng(bbox.Min[0])
	minLat := clampLat(bbox.Min[1])
	maxLng := wrapLng(bbox.Max[0])
	if bbox.Max[0] == 180 {
		maxLng = 180
	}
	maxLat := clampLat(bbox.Max[1])

	if bbox.Max[0]-bbox.Min[0] >= 360 {
		minLng, maxLng = -180, 180
	} else if minLng > maxLng {
		east := ix.Query(orb.Bound{Min: orb.Point{minLng, minLat}, Max: orb.Point{180, maxLat}}, zoom)
		west := ix.Query(orb.Bound{Min: orb.Point{-180, minLat}, Max: orb.Point{maxLng, maxLat}}, zoom)
		return append(east, west...)
	}

	lvl := ix.levels[ix.limitZoom(zoom)]
	found := lvl.tree.InBound(nil, orb.Bound{
		Min: orb.Point{ProjectX(minLng), ProjectY(maxLat)},
		Max: orb.Point{ProjectX(maxLng), ProjectY(minLat)},
	})
	for _, p := range found {
		out = append(out, ix.toNode(p.(*node)))
	}
	return out
}

func (ix *Index) toNode(n *node) models.ClusterNode {
	if n.cluster {
		id := models.ClusterID{Build: ix.buildID, Seq: n.id}
		return models.NewClusterNode(id, UnprojectY(n.y), UnprojectX(n.x), n.numPoints)
	}
	return models.NewBuildingNode(ix.groups[n.index])
}

// origin decodes a cluster id into the node it grew from and that node's zoom level.
func (ix *Index) origin(id models.ClusterID) (*node, int, error) {
	if ix == nil {
		return nil, 0, ErrClusterNotFound
	}
	if id.Build != ix.buildID {
		return nil, 0, ErrStaleCluster
	}
	base := uint64(ix.numPoints)
	if id.Seq <= base {
		return nil, 0, ErrClusterNotFound
	}
	v := id.Seq - base
	originZoom := int(v % 32)
	originIdx := v >> 5
	if originZoom < ix.opts.MinZoom+1 || originZoom > ix.opts.MaxZoom+1 {
		return nil, 0, ErrClusterNotFound
	}
	lvl := ix.levels[originZoom]
	if originIdx >= uint64(len(lvl.nodes)) {
		return nil, 0, ErrClusterNotFound
	}
	return lvl.nodes[originIdx], originZoom, nil
}

func (ix *Index) childNodes(id models.ClusterID) ([]*node, error) {
	origin, originZoom, err := ix.origin(id)
	if err != nil {
		return nil, err
	}
	r := ix.radiusAt(originZoom - 1)
	var children []*node
	for _, p := range within(ix.levels[originZoom].tree, nil, origin.x, origin.y, r) {
		if n := p.(*node); n.parent == id.Seq {
			children = append(children, n)
		}
	}
	if len(children) == 0 {
		return nil, ErrClusterNotFound
	}
	return children, nil
}

// Children returns the nodes a cluster splits into one zoom level deeper.
func (ix *Index) Children(id models.ClusterID) ([]models.ClusterNode, error) {
	children, err := ix.childNodes(id)
	if err != nil {
		return nil, err
	}
	out := make([]models.ClusterNode, len(children))
	for i, c := range children {
		out[i] = ix.toNode(c)
	}
	return out, nil
}

// Leaves returns the buildings inside a cluster. A limit <= 0 returns all of them.
func (ix *Index) Leaves(id models.ClusterID, limit, offset int) ([]*models.BuildingGroup, error) {
	if limit <= 0 {
		limit = math.MaxInt
	}
	var leaves []*models.BuildingGroup
	if _, err := ix.appendLeaves(&leaves, id, limit, offset, 0); err != nil {
		return nil, err
	}
	return leaves, nil
}

func (ix *Index) appendLeaves(out *[]*models.BuildingGroup, id models.ClusterID, limit, offset, skipped int) (int, error) {
	children, err := ix.childNodes(id)
	if err != nil {
		return skipped, err
	}

	for _, c := range children {
		switch {
		case c.cluster && skipped+c.numPoints <= offset:
			skipped += c.numPoints
		case c.cluster:
			skipped, err = ix.appendLeaves(out, models.ClusterID{Build: id.Build, Seq: c.id}, limit, offset, skipped)
			if err != nil {
				return skipped, err
			}
		case skipped < offset:
			skipped++
		default:
			*out = append(*out, ix.groups[c.index])
		}
		if len(*out) == limit {
			break
		}
	}
	return skipped, nil
}

// ExpansionZoom returns the zoom level at which a cluster splits into more than one
// node.
func (ix *Index) ExpansionZoom(id models.ClusterID) (int, error) {
	_, originZoom, err := ix.origin(id)
	if err != nil {
		return 0, err
	}
	zoom := originZoom - 1
	for zoom <= ix.opts.MaxZoom {
		children, err := ix.childNodes(id)
		if err != nil {
			return 0, err
		}
		zoom++
		if len(children) != 1 || !children[0].cluster {
			break
		}
		id = models.ClusterID{Build: id.Build, Seq: children[0].id}
	}
	return zoom, nil
}

func finite(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
