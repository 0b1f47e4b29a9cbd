package esri

import (
	"strings"
	"testing"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/ports"
)

var _ ports.StaticTileSource = (*TileSource)(nil)

func TestTileImage_URLOrder(t *testing.T) {
	src := NewTileSource("", 0, 0)
	b := domain.BoundsAround(domain.GeoPoint{Lat: 46.0, Lon: 2.0})

	img := src.TileImage(b, 14, "before")
	want := "https://services.arcgisonline.com/arcgis/rest/services/World_Imagery/MapServer/tile/14/5828/8283"
	if img.URL != want {
		t.Fatalf("got %s, want %s", img.URL, want)
	}
	if img.Kind != domain.SourceURL || img.Strategy != domain.StrategyStatic || img.Label != "before" {
		t.Errorf("unexpected source %+v", img)
	}
	if img.Tile == nil || img.Tile.Zoom != 14 {
		t.Errorf("tile not attached: %+v", img.Tile)
	}
}

func TestTileImage_FallbackZoom(t *testing.T) {
	src := NewTileSource("https://tiles.example.test/MapServer/", 14, 13)
	b := domain.BoundsAround(domain.GeoPoint{Lat: 48.8566, Lon: 2.3522})

	img := src.TileImage(b, src.FallbackZoom(), "now")
	if img.URL != "https://tiles.example.test/MapServer/tile/13/2818/4149" {
		t.Errorf("unexpected url %s", img.URL)
	}
}

func TestTileImage_NearPoleStaysOnGrid(t *testing.T) {
	src := NewTileSource("", 14, 13)
	b := domain.BoundsAround(domain.GeoPoint{Lat: 89, Lon: 10})

	img := src.TileImage(b, 13, "now")
	if strings.Contains(img.URL, "-") {
		t.Fatalf("negative tile index in %s", img.URL)
	}
	if img.Tile.Y != 0 || img.Tile.X < 0 || img.Tile.X >= 1<<13 {
		t.Errorf("tile %+v outside the z13 grid", img.Tile)
	}
}
