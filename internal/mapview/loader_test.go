package mapview

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roommap/server/internal/models"
	"roommap/server/internal/selection"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) AllListings() ([]models.PropertyRecord, error) {
	args := m.Called()
	records, _ := args.Get(0).([]models.PropertyRecord)
	return records, args.Error(1)
}

func (m *MockStore) FavoriteIDs() (map[string]struct{}, error) {
	args := m.Called()
	ids, _ := args.Get(0).(map[string]struct{})
	return ids, args.Error(1)
}

func TestLoad(t *testing.T) {
	t.Run("Replaces inputs", func(t *testing.T) {
		e, _, _ := newTestEngine(t, selection.Callbacks{})
		store := new(MockStore)
		store.On("AllListings").Return(anamRecords(), nil)
		store.On("FavoriteIDs").Return(map[string]struct{}{"1": {}}, nil)

		require.NoError(t, e.Load(store))
		store.AssertExpectations(t)

		assert.Equal(t, 1, e.Groups().Len())

		e.SetFavoritesOnly(true)
		nodes := e.Nodes(anam)
		require.Len(t, nodes, 1)
		require.NotNil(t, nodes[0].Node.Building)
		assert.Equal(t, 1, nodes[0].Node.Building.Count)
	})

	t.Run("Listing error leaves engine untouched", func(t *testing.T) {
		e, _, _ := newTestEngine(t, selection.Callbacks{})
		e.SetRecords(anamRecords())
		input, _ := e.Versions()

		store := new(MockStore)
		store.On("AllListings").Return(nil, errors.New("disk gone"))

		err := e.Load(store)
		assert.ErrorContains(t, err, "failed to load listings")
		after, _ := e.Versions()
		assert.Equal(t, input, after)
		store.AssertNotCalled(t, "FavoriteIDs")
	})

	t.Run("Favorites error", func(t *testing.T) {
		e, _, _ := newTestEngine(t, selection.Callbacks{})
		store := new(MockStore)
		store.On("AllListings").Return(anamRecords(), nil)
		store.On("FavoriteIDs").Return(nil, errors.New("locked"))

		assert.ErrorContains(t, e.Load(store), "failed to load favorites")
		assert.Equal(t, 0, e.Groups().Len())
	})
}

func TestLoad_SingleVersion(t *testing.T) {
	e, _, _ := newTestEngine(t, selection.Callbacks{})
	before, _ := e.Versions()

	store := new(MockStore)
	store.On("AllListings").Return(anamRecords(), nil)
	store.On("FavoriteIDs").Return(map[string]struct{}{"2": {}}, nil)
	require.NoError(t, e.Load(store))

	after, _ := e.Versions()
	assert.Equal(t, before+1, after)
}
