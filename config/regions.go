package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"roommap/server/internal/viewport"
)

// Region is a named map region the camera can fall back to.
type Region struct {
	Name           string    `json:"name"`
	Center         []float64 `json:"center"` // [lat, lng]
	LatitudeDelta  float64   `json:"latitude_delta"`
	LongitudeDelta float64   `json:"longitude_delta"`
}

// Viewport returns the region as a camera target.
func (r Region) Viewport() viewport.Viewport {
	v := viewport.Viewport{LatitudeDelta: r.LatitudeDelta, LongitudeDelta: r.LongitudeDelta}
	if len(r.Center) == 2 {
		v.Latitude, v.Longitude = r.Center[0], r.Center[1]
	}
	return v
}

func (r Region) valid() bool {
	return r.Name != "" && len(r.Center) == 2 && r.Viewport().Valid()
}

// SupportedRegions is used when no regions file is loaded. The first entry is the
// fallback when the current location is unavailable.
var SupportedRegions = []Region{
	{
		Name:           "anam",
		Center:         []float64{37.5863, 127.0292},
		LatitudeDelta:  0.02,
		LongitudeDelta: 0.02,
	},
	{
		Name:           "seoul",
		Center:         []float64{37.5665, 126.9780},
		LatitudeDelta:  0.35,
		LongitudeDelta: 0.35,
	},
}

type regionsFile struct {
	Regions []Region `json:"regions"`
}

var (
	loadedRegions []Region
	regionsLock   sync.RWMutex
)

// LoadRegions replaces the built-in regions with the ones in a JSON file.
func LoadRegions(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("failed to read regions file: %w", err)
	}

	var file regionsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse regions file: %w", err)
	}
	for i, r := range file.Regions {
		if !r.valid() {
			return fmt.Errorf("invalid region at index %d: %q", i, r.Name)
		}
	}
	if len(file.Regions) == 0 {
		return fmt.Errorf("regions file %s has no regions", path)
	}

	regionsLock.Lock()
	defer regionsLock.Unlock()
	loadedRegions = file.Regions
	return nil
}

// ResetRegions drops any loaded regions file.
func ResetRegions() {
	regionsLock.Lock()
	defer regionsLock.Unlock()
	loadedRegions = nil
}

// Regions returns the configured regions.
func Regions() []Region {
	regionsLock.RLock()
	defer regionsLock.RUnlock()

	src := SupportedRegions
	if loadedRegions != nil {
		src = loadedRegions
	}
	out := make([]Region, len(src))
	copy(out, src)
	return out
}

// GetRegionNames returns a list of configured region names
func GetRegionNames() []string {
	regions := Regions()
	names := make([]string, len(regions))
	for i, r := range regions {
		names[i] = r.Name
	}
	return names
}

// GetRegionByName returns a region by name, case-insensitively
func GetRegionByName(name string) *Region {
	for _, r := range Regions() {
		if strings.EqualFold(r.Name, strings.TrimSpace(name)) {
			return &r
		}
	}
	return nil
}

// DefaultRegion is where the camera goes when no location is known.
func DefaultRegion() Region {
	return Regions()[0]
}
