// Package esri builds links to Esri World Imagery tiles.
package esri

import (
	"fmt"
	"strings"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/pkg/geospatial"
)

const (
	// WorldImageryURL is the MapServer root of the public World Imagery layer.
	WorldImageryURL = "https://services.arcgisonline.com/arcgis/rest/services/World_Imagery/MapServer"

	DefaultPrimaryZoom  = 14
	DefaultFallbackZoom = 13

	// MaxZoom is the deepest level the layer publishes.
	MaxZoom = 23
)

// TileSource implements ports.StaticTileSource.
// It never performs I/O: clients fetch the tile from the returned URL.
type TileSource struct {
	baseURL      string
	primaryZoom  int
	fallbackZoom int
}

// NewTileSource returns a tile source rooted at baseURL. Zero values fall back
// to the public layer and the default zooms.
func NewTileSource(baseURL string, primaryZoom, fallbackZoom int) *TileSource {
	if baseURL == "" {
		baseURL = WorldImageryURL
	}
	if primaryZoom <= 0 {
		primaryZoom = DefaultPrimaryZoom
	}
	if fallbackZoom <= 0 {
		fallbackZoom = DefaultFallbackZoom
	}
	return &TileSource{
		baseURL:      strings.TrimRight(baseURL, "/"),
		primaryZoom:  primaryZoom,
		fallbackZoom: fallbackZoom,
	}
}

func (s *TileSource) PrimaryZoom() int  { return s.primaryZoom }
func (s *TileSource) FallbackZoom() int { return s.fallbackZoom }

// TileURL returns the URL of a single tile. Note the {z}/{y}/{x} order.
func (s *TileSource) TileURL(t domain.TileCoordinate) string {
	return fmt.Sprintf("%s/tile/%d/%d/%d", s.baseURL, t.Zoom, t.Y, t.X)
}

// TileImage returns the tile containing the centre of bounds at zoom.
func (s *TileSource) TileImage(bounds domain.Bounds, zoom int, label string) domain.ImageSource {
	tile := geospatial.CenterTile(bounds, zoom)
	return domain.ImageSource{
		Kind:     domain.SourceURL,
		URL:      s.TileURL(tile),
		Label:    label,
		Strategy: domain.StrategyStatic,
		Tile:     &tile,
	}
}
