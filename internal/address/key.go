// Package address derives building identities from free-text listing addresses.
package address

import "regexp"

const (
	UnitMarker  = "호"
	FloorMarker = "층"
)

var (
	unitToken  = regexp.MustCompile(`[0-9]+` + UnitMarker + `\s*`)
	floorToken = regexp.MustCompile(`[0-9]+` + FloorMarker + `\s*`)
)

// BuildingKey strips unit-number and floor-number tokens from an address. Nothing
// else is normalized, so two addresses that differ in any other way are treated as
// different buildings.
func BuildingKey(addr string) string {
	for {
		next := unitToken.ReplaceAllString(addr, "")
		next = floorToken.ReplaceAllString(next, "")
		if next == addr {
			return next
		}
		addr = next
	}
}
