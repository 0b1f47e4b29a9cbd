// Package portals builds deep links into third-party Earth-observation
// portals for a location and date window.
package portals

import (
	"fmt"
	"strconv"
	"time"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

const (
	sciHubTemplate    = "https://scihub.copernicus.eu/dhus/#/home?start=%sT00:00:00Z&end=%sT23:59:59Z&lat=%s&lng=%s&zoom=%d"
	eoBrowserTemplate = "https://apps.sentinel-hub.com/eo-browser/?lat=%s&lng=%s&zoom=%d&fromTime=%s&toTime=%s&datasetId=S2L2A"

	// DefaultZoom is the map zoom both portals open at.
	DefaultZoom = 13
)

// OpenDelay is how long a client should wait after opening the first link
// before opening the second; browsers block back-to-back window.open calls.
const OpenDelay = 500 * time.Millisecond

// BuildLinks returns the SciHub and EO Browser links for a centre point and
// date window at DefaultZoom.
func BuildLinks(lat, lon float64, from, to domain.Date) domain.CopernicusLinks {
	return BuildLinksAtZoom(lat, lon, from, to, DefaultZoom)
}

// BuildLinksAtZoom is BuildLinks with an explicit portal zoom.
func BuildLinksAtZoom(lat, lon float64, from, to domain.Date, zoom int) domain.CopernicusLinks {
	la, lo := formatCoord(lat), formatCoord(lon)
	return domain.CopernicusLinks{
		SciHubURL:    fmt.Sprintf(sciHubTemplate, from, to, la, lo, zoom),
		EOBrowserURL: fmt.Sprintf(eoBrowserTemplate, la, lo, zoom, from, to),
	}
}

// Generator binds a date window and zoom so callers only supply bounds.
type Generator struct {
	Window domain.Period
	Zoom   int
}

// ForBounds returns links centred on b.
func (g Generator) ForBounds(b domain.Bounds) domain.CopernicusLinks {
	zoom := g.Zoom
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	c := b.Center()
	return BuildLinksAtZoom(c.Lat, c.Lon, g.Window.From, g.Window.To, zoom)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
