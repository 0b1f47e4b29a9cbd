package domain

import (
	"fmt"
	"math"
)

// PointBuffer is the half-width, in degrees, of the square drawn around a
// manually entered point (roughly 500 m at mid latitudes).
const PointBuffer = 0.005

// MaxMercatorLat is the latitude limit of the Web Mercator projection.
const MaxMercatorLat = 85.05112878

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks the point lies inside the WGS 84 coordinate ranges.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return fmt.Errorf("%w: latitude and longitude must be numbers", ErrInvalidCoordinate)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %g outside [-90, 90]", ErrInvalidCoordinate, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %g outside [-180, 180]", ErrInvalidCoordinate, p.Lon)
	}
	return nil
}

// Bounds is an axis-aligned geographic bounding box in degrees.
// A valid box has West < East and South < North.
type Bounds struct {
	West  float64 `json:"west"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	North float64 `json:"north"`
}

// BoundsAround returns the square of half-width PointBuffer centred on p,
// cut at the poles and the antimeridian.
func BoundsAround(p GeoPoint) Bounds {
	return Bounds{
		West:  max(p.Lon-PointBuffer, -180),
		South: max(p.Lat-PointBuffer, -90),
		East:  min(p.Lon+PointBuffer, 180),
		North: min(p.Lat+PointBuffer, 90),
	}
}

// Center returns the midpoint of the box.
func (b Bounds) Center() GeoPoint {
	return GeoPoint{
		Lat: (b.North + b.South) / 2,
		Lon: (b.East + b.West) / 2,
	}
}

// BBox returns the box as [west, south, east, north].
func (b Bounds) BBox() [4]float64 {
	return [4]float64{b.West, b.South, b.East, b.North}
}

// Validate checks the ordering invariant, that no edge is NaN and that the
// box lies inside the WGS 84 ranges.
func (b Bounds) Validate() error {
	for _, v := range b.BBox() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: bounds contain a non-finite value", ErrInvalidGeometry)
		}
	}
	if b.South < -90 || b.North > 90 {
		return fmt.Errorf("%w: latitudes %g..%g outside [-90, 90]", ErrInvalidGeometry, b.South, b.North)
	}
	if b.West < -180 || b.East > 180 {
		return fmt.Errorf("%w: longitudes %g..%g outside [-180, 180]", ErrInvalidGeometry, b.West, b.East)
	}
	if b.West >= b.East {
		return fmt.Errorf("%w: west %g must be less than east %g", ErrInvalidGeometry, b.West, b.East)
	}
	if b.South >= b.North {
		return fmt.Errorf("%w: south %g must be less than north %g", ErrInvalidGeometry, b.South, b.North)
	}
	return nil
}

// TileCoordinate addresses a tile in the Web Mercator (slippy map) scheme.
type TileCoordinate struct {
	Zoom int `json:"zoom"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// Extent is the approximate ground size of a bounding box.
type Extent struct {
	WidthMeters  float64 `json:"width_m"`
	HeightMeters float64 `json:"height_m"`
}
