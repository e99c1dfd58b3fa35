// Package selection arbitrates which marker is active and whether a building's
// unit sheet is open.
package selection

import (
	"fmt"
	"time"

	"roommap/server/internal/models"
)

// State is the controller's current mode.
type State int

const (
	Idle State = iota
	BuildingSelected
	ClusterFocused
	SheetOpen
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case BuildingSelected:
		return "building_selected"
	case ClusterFocused:
		return "cluster_focused"
	case SheetOpen:
		return "sheet_open"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the names written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for _, candidate := range []State{Idle, BuildingSelected, ClusterFocused, SheetOpen} {
		if candidate.String() == string(b) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown selection state %q", b)
}

// DefaultDebounce is how long after a marker tap a background tap is ignored.
const DefaultDebounce = 100 * time.Millisecond

// Callbacks are invoked synchronously from the controller. Any of them may be nil.
type Callbacks struct {
	OnMarkerPress              func(record models.PropertyRecord)
	OnBuildingModalStateChange func(open bool)
	OnMarkerSelectionChange    func(key *string)
}

// Config holds the controller settings.
type Config struct {
	Debounce time.Duration
	Clock    func() time.Time
	// Expand is called for cluster taps, usually to plan and issue a camera move.
	Expand func(node models.ClusterNode)
}

// Snapshot is a copy of the selection state.
type Snapshot struct {
	State        State                   `json:"state"`
	ActiveMarker *string                 `json:"activeMarker"`
	SheetKey     *string                 `json:"sheetKey"`
	SheetUnits   []models.PropertyRecord `json:"sheetUnits"`
}

// Controller is the selection state machine. It is not safe for concurrent use;
// the owner serializes calls.
type Controller struct {
	callbacks Callbacks
	debounce  time.Duration
	clock     func() time.Time
	expand    func(node models.ClusterNode)

	state     State
	activeKey string // building key of the emphasized marker
	sheet     *models.BuildingGroup
	lastTap   time.Time
}

// NewController creates a controller in the Idle state.
func NewController(cfg Config, callbacks Callbacks) *Controller {
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Controller{
		callbacks: callbacks,
		debounce:  cfg.Debounce,
		clock:     cfg.Clock,
		expand:    cfg.Expand,
		state:     Idle,
	}
}

// State returns the current mode.
func (c *Controller) State() State {
	return c.state
}

// TapBuilding handles a tap on a building marker. A single-unit building is chosen
// directly; a multi-unit building opens its sheet.
func (c *Controller) TapBuilding(group *models.BuildingGroup) {
	if group == nil || len(group.Members) == 0 {
		return
	}
	c.lastTap = c.clock()

	if len(group.Members) == 1 {
		c.closeSheet()
		c.state = BuildingSelected
		c.setActive(group.Key)
		if c.callbacks.OnMarkerPress != nil {
			c.callbacks.OnMarkerPress(group.Members[0])
		}
		return
	}

	// Opening a sheet drops the emphasis of whatever marker was active.
	c.setActive("")
	wasOpen := c.sheet != nil
	c.sheet = copyGroup(group)
	c.state = SheetOpen
	if !wasOpen && c.callbacks.OnBuildingModalStateChange != nil {
		c.callbacks.OnBuildingModalStateChange(true)
	}
}

// TapCluster hands the cluster to the expansion callback. The selection is left as
// it was.
func (c *Controller) TapCluster(node models.ClusterNode) {
	c.lastTap = c.clock()
	previous := c.state
	c.state = ClusterFocused
	if c.expand != nil {
		c.expand(node)
	}
	c.state = previous
}

// TapBackground clears the selection unless a marker was tapped within the debounce
// window. It reports whether the tap was handled.
func (c *Controller) TapBackground() bool {
	if !c.lastTap.IsZero() && c.clock().Sub(c.lastTap) < c.debounce {
		return false
	}
	c.closeSheet()
	c.state = Idle
	c.activeKey = ""
	if c.callbacks.OnMarkerSelectionChange != nil {
		c.callbacks.OnMarkerSelectionChange(nil)
	}
	return true
}

// CloseSheet closes the open sheet, if any.
func (c *Controller) CloseSheet() {
	if c.sheet == nil {
		return
	}
	c.closeSheet()
	c.state = Idle
}

// ChooseFromSheet closes the sheet and forwards the chosen unit. It does nothing when
// no sheet is open.
func (c *Controller) ChooseFromSheet(record models.PropertyRecord) bool {
	if c.sheet == nil {
		return false
	}
	c.closeSheet()
	c.state = Idle
	if c.callbacks.OnMarkerPress != nil {
		c.callbacks.OnMarkerPress(record)
	}
	return true
}

// SheetUnit finds a unit of the open sheet by id.
func (c *Controller) SheetUnit(id string) (models.PropertyRecord, bool) {
	if c.sheet == nil {
		return models.PropertyRecord{}, false
	}
	for _, m := range c.sheet.Members {
		if string(m.ID) == id {
			return m, true
		}
	}
	return models.PropertyRecord{}, false
}

// IsActive reports whether the building's marker carries the selected emphasis.
func (c *Controller) IsActive(key string) bool {
	return c.activeKey != "" && c.activeKey == key
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{State: c.state, SheetUnits: []models.PropertyRecord{}}
	if c.activeKey != "" {
		key := c.activeKey
		s.ActiveMarker = &key
	}
	if c.sheet != nil {
		key := c.sheet.Key
		s.SheetKey = &key
		s.SheetUnits = append(s.SheetUnits, c.sheet.Members...)
	}
	return s
}

// Sync reconciles the selection with a rebuilt building set. A sheet or active
// marker whose building is gone is dropped; a surviving sheet takes the new members.
func (c *Controller) Sync(lookup func(key string) (*models.BuildingGroup, bool)) {
	if c.sheet != nil {
		if g, ok := lookup(c.sheet.Key); ok && len(g.Members) > 0 {
			c.sheet = copyGroup(g)
		} else {
			c.closeSheet()
			c.state = Idle
		}
	}
	if c.activeKey != "" {
		if _, ok := lookup(c.activeKey); !ok {
			c.setActive("")
			if c.state == BuildingSelected {
				c.state = Idle
			}
		}
	}
}

func (c *Controller) setActive(key string) {
	if c.activeKey == key {
		return
	}
	c.activeKey = key
	if c.callbacks.OnMarkerSelectionChange == nil {
		return
	}
	if key == "" {
		c.callbacks.OnMarkerSelectionChange(nil)
		return
	}
	c.callbacks.OnMarkerSelectionChange(&key)
}

func (c *Controller) closeSheet() {
	if c.sheet == nil {
		return
	}
	c.sheet = nil
	if c.callbacks.OnBuildingModalStateChange != nil {
		c.callbacks.OnBuildingModalStateChange(false)
	}
}

func copyGroup(g *models.BuildingGroup) *models.BuildingGroup {
	cp := *g
	cp.Members = append([]models.PropertyRecord(nil), g.Members...)
	return &cp
}
