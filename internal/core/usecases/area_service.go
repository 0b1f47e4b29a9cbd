package usecases

import (
	"context"
	"fmt"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/ports"
	"github.com/samirrijal/eudrsat/internal/pkg/geospatial"
	"github.com/samirrijal/eudrsat/internal/pkg/portals"
)

// AreaInput is one user submission: a GeoJSON document or a point.
type AreaInput struct {
	GeoJSON []byte
	Point   *domain.GeoPoint
}

// AreaService resolves user submissions into bounds.
type AreaService struct {
	links   portals.Generator
	static  ports.StaticTileSource
	imagery *ImageryService
}

// NewAreaService creates a new AreaService. imagery may be nil when only
// resolution is needed.
func NewAreaService(links portals.Generator, static ports.StaticTileSource, imagery *ImageryService) *AreaService {
	return &AreaService{links: links, static: static, imagery: imagery}
}

// Resolve turns an input into an Area. GeoJSON wins when both are set.
func (s *AreaService) Resolve(in AreaInput) (*domain.Area, error) {
	var (
		bounds domain.Bounds
		err    error
	)
	switch {
	case len(in.GeoJSON) > 0:
		bounds, err = geospatial.BoundsFromGeoJSON(in.GeoJSON)
	case in.Point != nil:
		bounds, err = geospatial.BoundsFromPoint(in.Point.Lat, in.Point.Lon)
	default:
		err = fmt.Errorf("%w: provide a GeoJSON document or a latitude/longitude", domain.ErrInvalidCoordinate)
	}
	if err != nil {
		return nil, err
	}
	return s.Describe(bounds), nil
}

// Describe builds the Area for already valid bounds.
func (s *AreaService) Describe(bounds domain.Bounds) *domain.Area {
	return &domain.Area{
		Bounds: bounds,
		Center: bounds.Center(),
		Extent: geospatial.Extent(bounds),
		Links:  s.links.ForBounds(bounds),
	}
}

// Submit resolves the input, shows its links, then runs a fetch cycle on
// the session. Resolution errors stop before any network call.
func (s *AreaService) Submit(ctx context.Context, sessionID string, in AreaInput, ui ports.Presenter) (*domain.Area, *domain.ImageryResult, error) {
	if ui == nil {
		ui = NoopPresenter{}
	}
	area, err := s.Resolve(in)
	if err != nil {
		ui.ShowError(err.Error())
		return nil, nil, err
	}
	if s.imagery == nil {
		ui.ShowLinks(area.Links)
		return area, nil, nil
	}
	res, err := s.imagery.Fetch(ctx, sessionID, area.Bounds, ui)
	return area, res, err
}

// Tile returns the tile and static image containing a point.
func (s *AreaService) Tile(lat, lon float64, zoom int) (domain.ImageSource, error) {
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return domain.ImageSource{}, err
	}
	if zoom < 0 || zoom > 23 {
		return domain.ImageSource{}, fmt.Errorf("%w: zoom %d outside [0, 23]", domain.ErrInvalidParameter, zoom)
	}
	return s.static.TileImage(domain.BoundsAround(p), zoom, fmt.Sprintf("z%d", zoom)), nil
}

// Links returns the portal links for a point. A zero period uses the
// configured window.
func (s *AreaService) Links(lat, lon float64, period domain.Period) (domain.CopernicusLinks, error) {
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return domain.CopernicusLinks{}, err
	}
	if period.From.IsZero() && period.To.IsZero() {
		period = s.links.Window
	}
	if err := period.Validate(); err != nil {
		return domain.CopernicusLinks{}, err
	}
	zoom := s.links.Zoom
	if zoom <= 0 {
		zoom = portals.DefaultZoom
	}
	return portals.BuildLinksAtZoom(lat, lon, period.From, period.To, zoom), nil
}
