package spatial

import "math"

// ProjectX converts a longitude to the Web-Mercator unit square.
func ProjectX(lng float64) float64 {
	return lng/360 + 0.5
}

// ProjectY converts a latitude to the Web-Mercator unit square, clamped to [0, 1].
func ProjectY(lat float64) float64 {
	sin := math.Sin(lat * math.Pi / 180)
	y := 0.5 - 0.25*math.Log((1+sin)/(1-sin))/math.Pi
	switch {
	case y < 0:
		return 0
	case y > 1:
		return 1
	}
	return y
}

// UnprojectX converts a unit-square x back to a longitude.
func UnprojectX(x float64) float64 {
	return (x - 0.5) * 360
}

// UnprojectY converts a unit-square y back to a latitude.
func UnprojectY(y float64) float64 {
	y2 := (180 - y*360) * math.Pi / 180
	return 360*math.Atan(math.Exp(y2))/math.Pi - 90
}

func wrapLng(lng float64) float64 {
	return math.Mod(math.Mod(lng+180, 360)+360, 360) - 180
}

func clampLat(lat float64) float64 {
	return math.Max(-90, math.Min(90, lat))
}
