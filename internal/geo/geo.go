// Package geo holds the pure great-circle math. No state, no I/O.
package geo

import (
	"math"

	"citydistance/internal/domain"
)

// EarthRadiusKm is the fixed sphere radius used by all distance math.
const EarthRadiusKm = 6371.0

func ToRadians(deg float64) float64 { return deg * math.Pi / 180 }

func ToDegrees(rad float64) float64 { return rad * 180 / math.Pi }

// Distance returns the haversine great-circle distance between a and b in
// kilometers. Symmetric, zero for equal points, never fails for in-range
// input.
func Distance(a, b domain.Coordinates) float64 {
	dLat := ToRadians(b.Lat - a.Lat)
	dLon := ToRadians(b.Lon - a.Lon)
	latA := ToRadians(a.Lat)
	latB := ToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// Bearing returns the initial heading from a to b in degrees [0, 360).
// 0 = north, 90 = east.
func Bearing(a, b domain.Coordinates) float64 {
	dLon := ToRadians(b.Lon - a.Lon)
	latA := ToRadians(a.Lat)
	latB := ToRadians(b.Lat)

	y := math.Sin(dLon) * math.Cos(latB)
	x := math.Cos(latA)*math.Sin(latB) - math.Sin(latA)*math.Cos(latB)*math.Cos(dLon)

	return math.Mod(ToDegrees(math.Atan2(y, x))+360, 360)
}

var compassPoints = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Compass maps a bearing to an 8-wind rose direction.
func Compass(bearing float64) string {
	i := int(math.Round(bearing/45)) % 8
	return compassPoints[i]
}
