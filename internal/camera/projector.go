package camera

import (
	"math"

	"roommap/server/internal/models"
	"roommap/server/internal/spatial"
	"roommap/server/internal/viewport"
)

// Camera is the current map transform: the visible region and the size of the
// screen it is drawn on.
type Camera struct {
	Viewport viewport.Viewport `json:"viewport"`
	Width    float64           `json:"width"`
	Height   float64           `json:"height"`
}

// Ready reports whether screen coordinates can be computed for this camera.
func (c Camera) Ready() bool {
	return c.Viewport.Valid() && finite(c.Width) && finite(c.Height) && c.Width > 0 && c.Height > 0
}

// ScreenPoint is an overlay position in screen pixels, origin top-left.
type ScreenPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label,omitempty"`
}

// Projector places the search pin on screen.
type Projector struct{}

// Project returns the pin's screen position for cam. It returns false when there is
// no pin or the camera is not ready. Points outside the visible region are returned
// with coordinates outside [0, Width] x [0, Height].
func (Projector) Project(pin *models.SearchPin, cam Camera) (*ScreenPoint, bool) {
	if pin == nil || !cam.Ready() || !finite(pin.Latitude) || !finite(pin.Longitude) {
		return nil, false
	}
	v := cam.Viewport

	top := spatial.ProjectY(v.Latitude + v.LatitudeDelta/2)
	bottom := spatial.ProjectY(v.Latitude - v.LatitudeDelta/2)
	if bottom <= top {
		return nil, false
	}

	// Longitudes are measured from the center so the antimeridian does not tear.
	dLng := math.Mod(pin.Longitude-v.Longitude+540, 360) - 180
	x := (dLng/v.LongitudeDelta + 0.5) * cam.Width
	y := (spatial.ProjectY(pin.Latitude) - top) / (bottom - top) * cam.Height

	if !finite(x) || !finite(y) {
		return nil, false
	}
	return &ScreenPoint{X: x, Y: y, Label: pin.Label}, true
}
