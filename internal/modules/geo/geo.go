// README: Pure geographic computation helpers (haversine distance, ETA banding).
package geo

import (
	"math"

	"porter/internal/types"
)

const earthRadiusKm = 6371.0

// Assumed average mover speed for ETA estimation, in km/h.
const avgSpeedKmh = 20.0

// DistanceKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// ETABucket converts a distance to a coarse display band. The raw minute
// estimate is rounded up to the nearest 5 minutes before banding so that GPS
// jitter near a band edge does not flap the displayed range. Distance 0
// still yields the lowest band, never "0 minutes".
func ETABucket(distanceKm float64) string {
	rawMinutes := distanceKm / avgSpeedKmh * 60.0
	minutes := math.Ceil(rawMinutes/5.0) * 5.0

	switch {
	case minutes <= 20:
		return "15-20 minutes"
	case minutes <= 30:
		return "20-30 minutes"
	case minutes <= 40:
		return "30-40 minutes"
	case minutes <= 50:
		return "40-50 minutes"
	default:
		return "50-60 minutes"
	}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
