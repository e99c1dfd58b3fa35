package selection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roommap/server/internal/models"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

type recorder struct {
	pressed    []models.FlexString
	sheetState []bool
	selections []*string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnMarkerPress:              func(rec models.PropertyRecord) { r.pressed = append(r.pressed, rec.ID) },
		OnBuildingModalStateChange: func(open bool) { r.sheetState = append(r.sheetState, open) },
		OnMarkerSelectionChange:    func(key *string) { r.selections = append(r.selections, key) },
	}
}

func building(key string, ids ...string) *models.BuildingGroup {
	g := &models.BuildingGroup{Key: key, Latitude: 37.59, Longitude: 127.03}
	for _, id := range ids {
		g.Members = append(g.Members, models.PropertyRecord{ID: models.FlexString(id), Address: key})
	}
	g.Count = len(g.Members)
	return g
}

func newTestController() (*Controller, *recorder, *fakeClock) {
	rec := &recorder{}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := NewController(Config{Debounce: DefaultDebounce, Clock: clock.Now}, rec.callbacks())
	return c, rec, clock
}

// assertExclusive checks that an active marker and an open sheet never coexist.
func assertExclusive(t *testing.T, c *Controller) {
	t.Helper()
	s := c.Snapshot()
	assert.False(t, s.ActiveMarker != nil && s.SheetKey != nil, "active marker and open sheet at the same time")
}

func TestTapBuilding_SingleUnit(t *testing.T) {
	c, rec, _ := newTestController()

	c.TapBuilding(building("안암동 ", "1"))

	assert.Equal(t, BuildingSelected, c.State())
	assert.Equal(t, []models.FlexString{"1"}, rec.pressed)
	assert.Empty(t, rec.sheetState)
	require.Len(t, rec.selections, 1)
	assert.Equal(t, "안암동 ", *rec.selections[0])
	assert.True(t, c.IsActive("안암동 "))
	assertExclusive(t, c)
}

func TestTapBuilding_MultiUnitOpensSheet(t *testing.T) {
	c, rec, _ := newTestController()

	c.TapBuilding(building("A", "1"))
	c.TapBuilding(building("B", "2", "3"))

	assert.Equal(t, SheetOpen, c.State())
	assert.Equal(t, []bool{true}, rec.sheetState)
	assert.False(t, c.IsActive("A"), "opening a sheet clears other emphasis")
	require.Len(t, rec.selections, 2)
	assert.Nil(t, rec.selections[1])

	s := c.Snapshot()
	require.NotNil(t, s.SheetKey)
	assert.Equal(t, "B", *s.SheetKey)
	assert.Len(t, s.SheetUnits, 2)
	assertExclusive(t, c)
}

func TestTapBuilding_SheetReplaced(t *testing.T) {
	c, rec, _ := newTestController()

	c.TapBuilding(building("A", "1", "2"))
	c.TapBuilding(building("B", "3", "4", "5"))

	s := c.Snapshot()
	require.NotNil(t, s.SheetKey)
	assert.Equal(t, "B", *s.SheetKey)
	ids := make([]models.FlexString, 0, len(s.SheetUnits))
	for _, u := range s.SheetUnits {
		assert.Equal(t, "B", u.Address, "no unit of A may remain")
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []models.FlexString{"3", "4", "5"}, ids)
	assert.Equal(t, []bool{true}, rec.sheetState, "sheet stays open while its contents change")

	_, ok := c.SheetUnit("1")
	assert.False(t, ok)
	_, ok = c.SheetUnit("4")
	assert.True(t, ok)
}

func TestTapBuilding_SingleUnitClosesSheet(t *testing.T) {
	c, rec, _ := newTestController()

	c.TapBuilding(building("A", "1", "2"))
	c.TapBuilding(building("B", "3"))

	assert.Equal(t, BuildingSelected, c.State())
	assert.Equal(t, []bool{true, false}, rec.sheetState)
	assert.Nil(t, c.Snapshot().SheetKey)
	assertExclusive(t, c)
}

func TestTapBuilding_Ignored(t *testing.T) {
	c, rec, _ := newTestController()

	c.TapBuilding(nil)
	c.TapBuilding(&models.BuildingGroup{Key: "empty"})

	assert.Equal(t, Idle, c.State())
	assert.Empty(t, rec.pressed)
	assert.Empty(t, rec.selections)
}

func TestTapBackground_Debounce(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		handled bool
		want    State
	}{
		{"Immediately after tap", 10 * time.Millisecond, false, BuildingSelected},
		{"Just inside window", 99 * time.Millisecond, false, BuildingSelected},
		{"At window edge", 100 * time.Millisecond, true, Idle},
		{"Well after tap", time.Second, true, Idle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec, clock := newTestController()
			c.TapBuilding(building("A", "1"))

			clock.Advance(tt.elapsed)
			assert.Equal(t, tt.handled, c.TapBackground())
			assert.Equal(t, tt.want, c.State())
			if tt.handled {
				require.Len(t, rec.selections, 2)
				assert.Nil(t, rec.selections[1])
				assert.False(t, c.IsActive("A"))
			}
		})
	}
}

func TestTapBackground_ClosesSheet(t *testing.T) {
	c, rec, clock := newTestController()
	c.TapBuilding(building("A", "1", "2"))

	clock.Advance(time.Second)
	assert.True(t, c.TapBackground())

	assert.Equal(t, Idle, c.State())
	assert.Equal(t, []bool{true, false}, rec.sheetState)
	assert.Nil(t, c.Snapshot().SheetKey)
	assert.Empty(t, c.Snapshot().SheetUnits)
}

func TestTapBackground_NoPriorTap(t *testing.T) {
	c, rec, _ := newTestController()

	assert.True(t, c.TapBackground())
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, []*string{nil}, rec.selections)
	assert.Empty(t, rec.sheetState)
}

func TestTapCluster(t *testing.T) {
	rec := &recorder{}
	clock := &fakeClock{now: time.Now()}
	var expanded []models.ClusterNode
	var stateDuringExpand State
	var c *Controller
	c = NewController(Config{
		Debounce: DefaultDebounce,
		Clock:    clock.Now,
		Expand: func(node models.ClusterNode) {
			stateDuringExpand = c.State()
			expanded = append(expanded, node)
		},
	}, rec.callbacks())

	c.TapBuilding(building("A", "1"))
	clock.Advance(time.Second)

	node := models.NewClusterNode(models.ClusterID{Seq: 40}, 37.5, 127, 5)
	c.TapCluster(node)

	require.Len(t, expanded, 1)
	assert.Equal(t, node, expanded[0])
	assert.Equal(t, ClusterFocused, stateDuringExpand)
	assert.Equal(t, BuildingSelected, c.State(), "selection survives a cluster tap")
	assert.True(t, c.IsActive("A"))

	// The map's own press event right after a cluster tap is ignored too.
	clock.Advance(20 * time.Millisecond)
	assert.False(t, c.TapBackground())
}

func TestCloseSheet(t *testing.T) {
	c, rec, _ := newTestController()

	c.CloseSheet()
	assert.Empty(t, rec.sheetState, "closing with no sheet is a no-op")

	c.TapBuilding(building("A", "1", "2"))
	c.CloseSheet()
	assert.Equal(t, Idle, c.State())
	assert.Equal(t, []bool{true, false}, rec.sheetState)
}

func TestChooseFromSheet(t *testing.T) {
	c, rec, _ := newTestController()

	assert.False(t, c.ChooseFromSheet(models.PropertyRecord{ID: "x"}))
	assert.Empty(t, rec.pressed)

	c.TapBuilding(building("A", "1", "2"))
	unit, ok := c.SheetUnit("2")
	require.True(t, ok)
	assert.True(t, c.ChooseFromSheet(unit))

	assert.Equal(t, Idle, c.State())
	assert.Equal(t, []bool{true, false}, rec.sheetState)
	assert.Equal(t, []models.FlexString{"2"}, rec.pressed)
}

func TestSnapshot_IsACopy(t *testing.T) {
	c, _, _ := newTestController()
	g := building("A", "1", "2")
	c.TapBuilding(g)

	g.Members[0].Address = "mutated"
	s := c.Snapshot()
	s.SheetUnits[1].Address = "mutated"

	again := c.Snapshot()
	assert.Equal(t, "A", again.SheetUnits[0].Address)
	assert.Equal(t, "A", again.SheetUnits[1].Address)
}

func TestNilCallbacks(t *testing.T) {
	c := NewController(Config{}, Callbacks{})
	assert.NotPanics(t, func() {
		c.TapBuilding(building("A", "1"))
		c.TapBuilding(building("B", "1", "2"))
		c.TapCluster(models.ClusterNode{})
		c.CloseSheet()
		c.TapBackground()
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "sheet_open", SheetOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestStateText(t *testing.T) {
	for _, s := range []State{Idle, BuildingSelected, ClusterFocused, SheetOpen} {
		text, err := s.MarshalText()
		require.NoError(t, err)

		var parsed State
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, s, parsed)
	}

	var s State
	assert.Error(t, s.UnmarshalText([]byte("dancing")))
}

func lookupIn(groups ...*models.BuildingGroup) func(string) (*models.BuildingGroup, bool) {
	return func(key string) (*models.BuildingGroup, bool) {
		for _, g := range groups {
			if g.Key == key {
				return g, true
			}
		}
		return nil, false
	}
}

func TestSync(t *testing.T) {
	t.Run("Sheet building gone", func(t *testing.T) {
		c, rec, _ := newTestController()
		c.TapBuilding(building("A", "1", "2"))

		c.Sync(lookupIn(building("B", "9")))

		assert.Equal(t, Idle, c.State())
		assert.Nil(t, c.Snapshot().SheetKey)
		assert.Equal(t, []bool{true, false}, rec.sheetState)
		assert.False(t, c.ChooseFromSheet(models.PropertyRecord{ID: "1"}))
		assert.Empty(t, rec.pressed)
	})

	t.Run("Sheet takes new members", func(t *testing.T) {
		c, rec, _ := newTestController()
		c.TapBuilding(building("A", "1", "2"))

		c.Sync(lookupIn(building("A", "2", "3")))

		assert.Equal(t, SheetOpen, c.State())
		_, ok := c.SheetUnit("1")
		assert.False(t, ok)
		_, ok = c.SheetUnit("3")
		assert.True(t, ok)
		assert.Equal(t, []bool{true}, rec.sheetState)
	})

	t.Run("Active building gone", func(t *testing.T) {
		c, rec, _ := newTestController()
		c.TapBuilding(building("A", "1"))

		c.Sync(lookupIn())

		assert.Equal(t, Idle, c.State())
		assert.False(t, c.IsActive("A"))
		require.Len(t, rec.selections, 2)
		assert.Nil(t, rec.selections[1])
	})

	t.Run("Active building kept", func(t *testing.T) {
		c, rec, _ := newTestController()
		c.TapBuilding(building("A", "1"))

		c.Sync(lookupIn(building("A", "1", "2")))

		assert.Equal(t, BuildingSelected, c.State())
		assert.True(t, c.IsActive("A"))
		assert.Len(t, rec.selections, 1)
	})
}
