package geospatial

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

// BoundsFromPoint validates the point and returns the PointBuffer square
// around it.
func BoundsFromPoint(lat, lon float64) (domain.Bounds, error) {
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return domain.Bounds{}, err
	}
	return domain.BoundsAround(p), nil
}

// BoundsFromGeoJSON returns the envelope of every coordinate in a GeoJSON
// Geometry, Feature or FeatureCollection document.
//
// A collapsed envelope (a single point, or a vertical/horizontal line) is
// widened by domain.PointBuffer on the collapsed axis.
func BoundsFromGeoJSON(raw []byte) (domain.Bounds, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return domain.Bounds{}, fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err)
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err)
		}
		for _, f := range fc.Features {
			if f != nil && f.Geometry != nil {
				geoms = append(geoms, f.Geometry)
			}
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err)
		}
		if f.Geometry != nil {
			geoms = append(geoms, f.Geometry)
		}
	case "":
		return domain.Bounds{}, fmt.Errorf("%w: missing \"type\" member", domain.ErrInvalidGeometry)
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("%w: %v", domain.ErrInvalidGeometry, err)
		}
		geoms = append(geoms, g.Geometry())
	}

	bound, ok := envelope(geoms)
	if !ok {
		return domain.Bounds{}, fmt.Errorf("%w: no coordinates found", domain.ErrInvalidGeometry)
	}
	if bound.Min.Lat() < -90 || bound.Max.Lat() > 90 || bound.Min.Lon() < -180 || bound.Max.Lon() > 180 {
		return domain.Bounds{}, fmt.Errorf("%w: coordinates outside [-90, 90] latitude or [-180, 180] longitude", domain.ErrInvalidGeometry)
	}
	b := fromOrb(bound)
	if err := b.Validate(); err != nil {
		return domain.Bounds{}, err
	}
	return b, nil
}

// ToOrb converts bounds into an orb.Bound.
func ToOrb(b domain.Bounds) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

func envelope(geoms []orb.Geometry) (orb.Bound, bool) {
	var (
		out   orb.Bound
		found bool
	)
	for _, g := range geoms {
		if g == nil {
			continue
		}
		b := g.Bound()
		if b.IsEmpty() {
			continue
		}
		if !found {
			out, found = b, true
			continue
		}
		out = out.Union(b)
	}
	return out, found
}

func fromOrb(b orb.Bound) domain.Bounds {
	out := domain.Bounds{
		West:  b.Min.X(),
		South: b.Min.Y(),
		East:  b.Max.X(),
		North: b.Max.Y(),
	}
	if out.West == out.East {
		out.West = max(out.West-domain.PointBuffer, -180)
		out.East = min(out.East+domain.PointBuffer, 180)
	}
	if out.South == out.North {
		out.South = max(out.South-domain.PointBuffer, -90)
		out.North = min(out.North+domain.PointBuffer, 90)
	}
	return out
}
