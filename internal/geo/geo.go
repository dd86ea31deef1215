// Package geo decides geofence containment for attendance marking. All
// functions are pure; callers resolve absent-location sentinels before
// asking for a distance.
package geo

import "math"

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// DistanceMeters returns the great-circle distance between two coordinates
// using the haversine formula.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := radians(lat1)
	lat2Rad := radians(lat2)
	deltaLat := radians(lat2 - lat1)
	deltaLon := radians(lon2 - lon1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// WithinRadius reports whether a distance falls inside the allowed radius.
// The boundary itself verifies.
func WithinRadius(distanceMeters, radiusMeters float64) bool {
	return distanceMeters <= radiusMeters
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
