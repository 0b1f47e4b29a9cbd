package geospatial

import (
	"math"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Haversine calculates the great-circle distance in meters between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c * 1000 // meters
}

// Extent returns the ground width (measured along the centre latitude) and
// height of b in meters.
func Extent(b domain.Bounds) domain.Extent {
	mid := b.Center().Lat
	return domain.Extent{
		WidthMeters:  math.Round(Haversine(mid, b.West, mid, b.East)),
		HeightMeters: math.Round(Haversine(b.South, b.West, b.North, b.West)),
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
