package geospatial

import (
	"math"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

// TileX returns the slippy-map column containing lon at zoom.
func TileX(lon float64, zoom int) int {
	return int(math.Floor((lon + 180) / 360 * math.Exp2(float64(zoom))))
}

// TileY returns the slippy-map row containing lat at zoom.
//
// asinh(tan(lat)) diverges at the poles, so lat must lie strictly inside
// (-90, 90). Web Mercator only covers about ±85.0511°; rows computed beyond
// that fall outside [0, 2^zoom). No validation happens here.
func TileY(lat float64, zoom int) int {
	latRad := lat * math.Pi / 180
	return int(math.Floor((1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * math.Exp2(float64(zoom))))
}

// TileAt returns the tile containing the point at zoom.
func TileAt(lat, lon float64, zoom int) domain.TileCoordinate {
	return domain.TileCoordinate{
		Zoom: zoom,
		X:    TileX(lon, zoom),
		Y:    TileY(lat, zoom),
	}
}

// CenterTile returns the tile containing the centre of b. The centre is
// pulled inside the Web Mercator latitude range and the indices are kept in
// [0, 2^zoom), so polar and antimeridian boxes still address a real tile.
func CenterTile(b domain.Bounds, zoom int) domain.TileCoordinate {
	c := b.Center()
	lat := math.Max(-domain.MaxMercatorLat, math.Min(domain.MaxMercatorLat, c.Lat))
	t := TileAt(lat, c.Lon, zoom)
	last := int(math.Exp2(float64(zoom))) - 1
	t.X = max(0, min(last, t.X))
	t.Y = max(0, min(last, t.Y))
	return t
}
