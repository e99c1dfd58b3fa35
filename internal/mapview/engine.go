// Package mapview owns the map screen state: the listing inputs, the derived
// building groups and clustering index, the selection and the camera commands.
//
// Inputs are versioned. Any change to the records, favorites or filter bumps the
// input version and the next read re-runs filter, aggregation and index build as one
// pass. The groups and the index built from them are published together, so a
// query never mixes an index with a newer group set.
package mapview

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"roommap/server/internal/building"
	"roommap/server/internal/camera"
	"roommap/server/internal/markers"
	"roommap/server/internal/models"
	"roommap/server/internal/pricing"
	"roommap/server/internal/scheduler"
	"roommap/server/internal/selection"
	"roommap/server/internal/spatial"
	"roommap/server/internal/viewport"
)

var (
	ErrUnknownBuilding = errors.New("building not found")
	ErrUnknownUnit     = errors.New("unit not in the open sheet")
)

// Config holds the engine settings.
type Config struct {
	Index          spatial.Options
	Limits         viewport.Limits
	Planner        camera.PlannerConfig
	CameraDuration time.Duration
	SheetDuration  time.Duration
	Debounce       time.Duration
	MarkerCapacity int
	// Fallback is where the camera goes when the current location is unknown.
	Fallback viewport.Viewport
	Price    pricing.Func
	Clock    func() time.Time
}

// DefaultConfig returns the settings the map screen ships with.
func DefaultConfig() Config {
	return Config{
		Index:          spatial.DefaultOptions(),
		Limits:         viewport.DefaultLimits(),
		Planner:        camera.DefaultPlannerConfig(),
		CameraDuration: scheduler.DefaultCameraDuration,
		SheetDuration:  scheduler.DefaultSheetDuration,
		Debounce:       selection.DefaultDebounce,
		MarkerCapacity: markers.DefaultCapacity,
		Fallback: viewport.Viewport{
			Latitude:       37.5863,
			Longitude:      127.0292,
			LatitudeDelta:  0.02,
			LongitudeDelta: 0.02,
		},
		Price: pricing.NormalizeDeposit,
		Clock: time.Now,
	}
}

// Coordinate is a resolved device location.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RenderedNode is a node to draw together with its marker state.
type RenderedNode struct {
	Node   models.ClusterNode
	Marker *markers.Handle // nil when the arena is full
}

// build is one published result of the pipeline.
type build struct {
	version uint64
	groups  *building.Groups
	index   *spatial.Index
}

// Engine is safe for concurrent use. Callbacks run while the engine lock is held
// and must not call back into the engine. A rebuild drops or refreshes the
// selection, so the open sheet never lists units of a replaced build.
type Engine struct {
	mu     sync.Mutex
	cfg    Config
	logger *logrus.Logger

	records   []models.PropertyRecord
	favorites map[string]struct{}
	filter    models.ListingFilter
	version   uint64

	current atomic.Pointer[build]

	planner   *camera.Planner
	projector camera.Projector
	selection *selection.Controller
	arena     *markers.Arena
	scheduler *scheduler.Scheduler
	searchPin *models.SearchPin
}

// NewEngine creates an engine with no listings. callbacks receive the selection
// events; sheet visibility changes also issue sheet commands on the scheduler.
func NewEngine(cfg Config, logger *logrus.Logger, callbacks selection.Callbacks) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if cfg.Price == nil {
		cfg.Price = pricing.NormalizeDeposit
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if !cfg.Fallback.Valid() {
		cfg.Fallback = DefaultConfig().Fallback
	}
	if cfg.Limits.MinDelta <= 0 || cfg.Limits.MaxDelta < cfg.Limits.MinDelta {
		cfg.Limits = viewport.DefaultLimits()
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		favorites: make(map[string]struct{}),
		planner:   camera.NewPlanner(cfg.Planner),
		arena:     markers.NewArena(cfg.MarkerCapacity),
		scheduler: scheduler.NewScheduler(logger),
	}

	onSheet := callbacks.OnBuildingModalStateChange
	callbacks.OnBuildingModalStateChange = func(open bool) {
		e.scheduler.ToggleSheet(open, e.cfg.SheetDuration, e.cfg.Clock())
		if onSheet != nil {
			onSheet(open)
		}
	}
	e.selection = selection.NewController(selection.Config{
		Debounce: cfg.Debounce,
		Clock:    cfg.Clock,
		Expand:   func(node models.ClusterNode) { e.expandLocked(node) },
	}, callbacks)

	e.current.Store(&build{})
	return e
}

// Scheduler returns the camera command scheduler.
func (e *Engine) Scheduler() *scheduler.Scheduler {
	return e.scheduler
}

// SetRecords replaces the listing set.
func (e *Engine) SetRecords(records []models.PropertyRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append([]models.PropertyRecord(nil), records...)
	e.version++
}

// SetFavorites replaces the favorites set.
func (e *Engine) SetFavorites(ids map[string]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.favorites = copySet(ids)
	e.version++
}

// setInputs replaces the listings and the favorites as one input version.
func (e *Engine) setInputs(records []models.PropertyRecord, favorites map[string]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append([]models.PropertyRecord(nil), records...)
	e.favorites = copySet(favorites)
	e.version++
}

func copySet(ids map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for id := range ids {
		out[id] = struct{}{}
	}
	return out
}

// SetFavoritesOnly toggles whether only favorited listings are shown.
func (e *Engine) SetFavoritesOnly(only bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filter.FavoritesOnly == only {
		return
	}
	e.filter.FavoritesOnly = only
	e.version++
}

// SetFilter replaces the listing filter. The favorites set is managed separately.
func (e *Engine) SetFilter(f models.ListingFilter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f.Favorites = nil
	e.filter = f
	e.version++
}

// Filter returns the current listing filter.
func (e *Engine) Filter() models.ListingFilter {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.filter
	f.Favorites = nil
	return f
}

// Versions returns the input version and the version of the published build.
func (e *Engine) Versions() (input, built uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version, e.current.Load().version
}

// Refresh rebuilds the groups and the index if any input changed since the last
// build. It reports whether a rebuild happened.
func (e *Engine) Refresh() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, rebuilt := e.refreshLocked()
	return rebuilt
}

func (e *Engine) refreshLocked() (*build, bool) {
	cur := e.current.Load()
	if cur.version == e.version && cur.index != nil {
		return cur, false
	}

	start := time.Now()
	filter := e.filter
	filter.Favorites = e.favorites
	price := func(r *models.PropertyRecord) float64 {
		return e.cfg.Price(r.PriceDeposit.String(), r.ID.String(), r.TransactionType)
	}
	records := models.FilterRecords(e.records, &filter, price)
	groups := building.Aggregate(records, e.cfg.Price)
	index := spatial.Build(groups.List(), e.cfg.Index)

	next := &build{version: e.version, groups: groups, index: index}
	e.current.Store(next)
	e.selection.Sync(groups.Get)

	e.logger.WithFields(logrus.Fields{
		"version":   next.version,
		"records":   len(e.records),
		"filtered":  len(records),
		"buildings": groups.Len(),
		"skipped":   groups.Skipped,
		"took_ms":   time.Since(start).Milliseconds(),
	}).Debug("Rebuilt clustering index")
	return next, true
}

// Index returns the current index, rebuilding it first if the inputs changed.
func (e *Engine) Index() *spatial.Index {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, _ := e.refreshLocked()
	return b.index
}

// Groups returns the building groups the current index was built from.
func (e *Engine) Groups() *building.Groups {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, _ := e.refreshLocked()
	return b.groups
}

// Nodes returns what to draw for v and drops marker state for nodes that are no
// longer visible.
func (e *Engine) Nodes(v viewport.Viewport) []RenderedNode {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, _ := e.refreshLocked()
	nodes := viewport.ResolveIndex(b.index, v.Clamp(e.cfg.Limits))

	out := make([]RenderedNode, 0, len(nodes))
	visible := make(map[string]struct{}, len(nodes))
	full := false
	for _, n := range nodes {
		id := n.MarkerID()
		visible[id] = struct{}{}

		rn := RenderedNode{Node: n}
		h, err := e.arena.Acquire(id)
		if err != nil {
			full = true
		} else {
			h.Selected = n.Building != nil && e.selection.IsActive(n.Building.Key)
			h.Scale = 1
			if h.Selected {
				h.Scale = 1.2
			}
			cp := *h
			rn.Marker = &cp
		}
		out = append(out, rn)
	}
	evicted := e.arena.Retain(visible)

	if full {
		e.logger.WithFields(logrus.Fields{
			"nodes":    len(nodes),
			"capacity": e.arena.Cap(),
		}).Warn("Marker arena full, some markers render without state")
	}
	e.logger.WithFields(logrus.Fields{
		"nodes":   len(nodes),
		"evicted": evicted,
	}).Debug("Resolved viewport")
	return out
}

// Leaves returns the buildings inside a cluster of the current build.
func (e *Engine) Leaves(id models.ClusterID, limit, offset int) ([]*models.BuildingGroup, error) {
	return e.Index().Leaves(id, limit, offset)
}

// ClusterRegion plans the region framing a cluster without moving the camera.
func (e *Engine) ClusterRegion(id models.ClusterID) (viewport.Viewport, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, _ := e.refreshLocked()
	return e.planner.Plan(b.index, clusterRef(b.index, id))
}

// ExpandCluster moves the camera to frame the cluster. The camera is left alone
// when the cluster cannot be expanded.
func (e *Engine) ExpandCluster(node models.ClusterNode) (scheduler.Command, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.expandLocked(node)
}

func (e *Engine) expandLocked(node models.ClusterNode) (scheduler.Command, bool) {
	b, _ := e.refreshLocked()
	region, ok := e.planner.Plan(b.index, node)
	if !ok {
		e.logger.WithFields(logrus.Fields{
			"cluster":     node.ClusterID.String(),
			"point_count": node.PointCount,
		}).Warn("Cluster expansion produced no region, camera unchanged")
		return scheduler.Command{}, false
	}
	return e.scheduler.MoveCamera(region, e.cfg.CameraDuration, e.cfg.Clock()), true
}

// TapCluster handles a tap on a cluster bubble of the current build.
func (e *Engine) TapCluster(id models.ClusterID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, _ := e.refreshLocked()
	e.selection.TapCluster(clusterRef(b.index, id))
}

// clusterRef rebuilds the node for a cluster id. Unknown ids give a node the planner
// rejects.
func clusterRef(ix *spatial.Index, id models.ClusterID) models.ClusterNode {
	leaves, err := ix.Leaves(id, 0, 0)
	if err != nil {
		return models.NewClusterNode(id, 0, 0, 0)
	}
	return models.NewClusterNode(id, 0, 0, len(leaves))
}

// TapBuilding handles a tap on a building marker.
func (e *Engine) TapBuilding(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, _ := e.refreshLocked()
	group, ok := b.groups.Get(key)
	if !ok {
		return ErrUnknownBuilding
	}
	e.selection.TapBuilding(group)
	return nil
}

// TapBackground handles a tap on the empty map. It reports whether the selection
// was cleared.
func (e *Engine) TapBackground() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection.TapBackground()
}

// CloseSheet closes the unit sheet.
func (e *Engine) CloseSheet() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection.CloseSheet()
}

// ChooseFromSheet picks a unit from the open sheet by id.
func (e *Engine) ChooseFromSheet(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	unit, ok := e.selection.SheetUnit(id)
	if !ok {
		return ErrUnknownUnit
	}
	e.selection.ChooseFromSheet(unit)
	return nil
}

// Selection returns a copy of the selection state.
func (e *Engine) Selection() selection.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selection.Snapshot()
}

// GoToCurrentLocation moves the camera to coord, or to the fallback region when the
// location is unknown.
func (e *Engine) GoToCurrentLocation(coord *Coordinate) scheduler.Command {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := e.cfg.Fallback
	if coord != nil {
		candidate := target
		candidate.Latitude, candidate.Longitude = coord.Latitude, coord.Longitude
		if candidate.Valid() && coord.Latitude >= -90 && coord.Latitude <= 90 && coord.Longitude >= -180 && coord.Longitude <= 180 {
			target = candidate
		} else {
			e.logger.WithFields(logrus.Fields{
				"latitude":  coord.Latitude,
				"longitude": coord.Longitude,
			}).Warn("Ignoring invalid location, using fallback region")
		}
	}
	return e.scheduler.MoveCamera(target, e.cfg.CameraDuration, e.cfg.Clock())
}

// SetSearchPin sets or clears (nil) the search result overlay.
func (e *Engine) SetSearchPin(pin *models.SearchPin) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if pin == nil {
		e.searchPin = nil
		return
	}
	cp := *pin
	e.searchPin = &cp
}

// SearchPinPosition projects the search pin for cam.
func (e *Engine) SearchPinPosition(cam camera.Camera) (*camera.ScreenPoint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.projector.Project(e.searchPin, cam)
}

// SearchPin returns a copy of the search pin, or nil when none is set.
func (e *Engine) SearchPin() *models.SearchPin {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.searchPin == nil {
		return nil
	}
	cp := *e.searchPin
	return &cp
}
