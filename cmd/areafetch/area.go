package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/usecases"
)

// areaFlags are the shared --lat/--lon/--geojson flags.
type areaFlags struct {
	lat, lon float64
	geojson  string
}

func (f *areaFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "latitude of the area centre")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "longitude of the area centre")
	cmd.Flags().StringVar(&f.geojson, "geojson", "", "GeoJSON file describing the area (- for stdin)")
}

// input builds the area input. A GeoJSON file wins over a point; a point
// needs both coordinates.
func (f *areaFlags) input(cmd *cobra.Command) (usecases.AreaInput, error) {
	if f.geojson != "" {
		var (
			data []byte
			err  error
		)
		if f.geojson == "-" {
			data, err = readAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(f.geojson)
		}
		if err != nil {
			return usecases.AreaInput{}, fmt.Errorf("read geojson: %w", err)
		}
		return usecases.AreaInput{GeoJSON: data}, nil
	}
	latSet, lonSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lon")
	if !latSet && !lonSet {
		return usecases.AreaInput{}, fmt.Errorf("%w: pass --geojson or --lat and --lon", domain.ErrInvalidCoordinate)
	}
	if latSet != lonSet {
		return usecases.AreaInput{}, fmt.Errorf("%w: --lat and --lon go together", domain.ErrInvalidCoordinate)
	}
	return usecases.AreaInput{Point: &domain.GeoPoint{Lat: f.lat, Lon: f.lon}}, nil
}

// saveImages writes inline image bytes under dir and replaces them with a
// file:// reference. URL sources are left alone.
func saveImages(dir string, res *domain.ImageryResult) error {
	if dir == "" || res == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, src := range map[string]*domain.ImageSource{"before": res.Before, "now": res.Now} {
		if src == nil || src.Kind != domain.SourceBytes {
			continue
		}
		path := filepath.Join(dir, res.CycleID+"-"+name+extension(src.ContentType))
		if err := os.WriteFile(path, src.Data, 0o644); err != nil {
			return err
		}
		src.Data = nil
		src.URL = "file://" + path
	}
	return nil
}

func extension(contentType string) string {
	switch strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]) {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/tiff":
		return ".tif"
	default:
		return ".bin"
	}
}
