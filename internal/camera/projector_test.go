package camera

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roommap/server/internal/models"
	"roommap/server/internal/viewport"
)

var worldBound = orb.Bound{Min: orb.Point{-180, -85}, Max: orb.Point{180, 85}}

func seoulCamera() Camera {
	return Camera{
		Viewport: viewport.Viewport{Latitude: 37.59, Longitude: 127.03, LatitudeDelta: 0.02, LongitudeDelta: 0.02},
		Width:    400,
		Height:   800,
	}
}

func TestProject_Center(t *testing.T) {
	pin := &models.SearchPin{Latitude: 37.59, Longitude: 127.03, Label: "안암역"}
	p, ok := Projector{}.Project(pin, seoulCamera())
	require.True(t, ok)
	assert.InDelta(t, 200, p.X, 1e-6)
	assert.InDelta(t, 400, p.Y, 0.5)
	assert.Equal(t, "안암역", p.Label)
}

func TestProject_Edges(t *testing.T) {
	cam := seoulCamera()
	nw, ok := Projector{}.Project(&models.SearchPin{Latitude: 37.60, Longitude: 127.02}, cam)
	require.True(t, ok)
	assert.InDelta(t, 0, nw.X, 1e-6)
	assert.InDelta(t, 0, nw.Y, 1e-6)

	se, ok := Projector{}.Project(&models.SearchPin{Latitude: 37.58, Longitude: 127.04}, cam)
	require.True(t, ok)
	assert.InDelta(t, 400, se.X, 1e-6)
	assert.InDelta(t, 800, se.Y, 1e-6)
}

func TestProject_OffScreen(t *testing.T) {
	p, ok := Projector{}.Project(&models.SearchPin{Latitude: 35.1, Longitude: 129.0}, seoulCamera())
	require.True(t, ok)
	assert.Greater(t, p.X, 400.0)
	assert.Greater(t, p.Y, 800.0)
}

func TestProject_Antimeridian(t *testing.T) {
	cam := Camera{
		Viewport: viewport.Viewport{Latitude: -15, Longitude: 179, LatitudeDelta: 10, LongitudeDelta: 10},
		Width:    100,
		Height:   100,
	}
	p, ok := Projector{}.Project(&models.SearchPin{Latitude: -15, Longitude: -179}, cam)
	require.True(t, ok)
	assert.InDelta(t, 70, p.X, 1e-6)
}

func TestProject_NotReady(t *testing.T) {
	pin := &models.SearchPin{Latitude: 37.59, Longitude: 127.03}
	tests := []struct {
		name string
		pin  *models.SearchPin
		cam  Camera
	}{
		{"No pin", nil, seoulCamera()},
		{"Zero screen", pin, Camera{Viewport: seoulCamera().Viewport}},
		{"Zero span", pin, Camera{Viewport: viewport.Viewport{Latitude: 37.59, Longitude: 127.03}, Width: 10, Height: 10}},
		{"NaN center", pin, Camera{Viewport: viewport.Viewport{Latitude: math.NaN(), Longitude: 127, LatitudeDelta: 1, LongitudeDelta: 1}, Width: 10, Height: 10}},
		{"NaN pin", &models.SearchPin{Latitude: math.NaN(), Longitude: 127}, seoulCamera()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := Projector{}.Project(tt.pin, tt.cam)
			assert.False(t, ok)
			assert.Nil(t, p)
		})
	}
}
