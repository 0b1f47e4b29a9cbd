package portals_test

import (
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/pkg/portals"
)

// sciHubQuery extracts the query that SciHub keeps inside its URL fragment.
func sciHubQuery(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	_, query, ok := strings.Cut(u.Fragment, "?")
	if !ok {
		t.Fatalf("fragment %q has no query", u.Fragment)
	}
	v, err := url.ParseQuery(query)
	if err != nil {
		t.Fatalf("parse fragment query: %v", err)
	}
	return v
}

func TestBuildLinks_RoundTrip(t *testing.T) {
	from := domain.NewDate(2020, 1, 1)
	to := domain.NewDate(2024, 12, 31)
	cases := [][2]float64{{46.2276, 2.2137}, {-33.8688, 151.2093}, {0, 0}, {43.263, -2.935}}

	for _, c := range cases {
		links := portals.BuildLinks(c[0], c[1], from, to)

		eo, err := url.Parse(links.EOBrowserURL)
		if err != nil {
			t.Fatalf("parse eo browser url: %v", err)
		}
		if eo.Host != "apps.sentinel-hub.com" {
			t.Errorf("unexpected host %q", eo.Host)
		}
		q := eo.Query()
		if q.Get("lat") != formatted(c[0]) || q.Get("lng") != formatted(c[1]) {
			t.Errorf("eo browser lat/lng = %s/%s, want %v", q.Get("lat"), q.Get("lng"), c)
		}
		if q.Get("fromTime") != "2020-01-01" || q.Get("toTime") != "2024-12-31" {
			t.Errorf("eo browser dates = %s..%s", q.Get("fromTime"), q.Get("toTime"))
		}
		if q.Get("datasetId") != "S2L2A" || q.Get("zoom") != "13" {
			t.Errorf("unexpected eo browser params %v", q)
		}

		sh := sciHubQuery(t, links.SciHubURL)
		if sh.Get("lat") != formatted(c[0]) || sh.Get("lng") != formatted(c[1]) {
			t.Errorf("scihub lat/lng = %s/%s, want %v", sh.Get("lat"), sh.Get("lng"), c)
		}
		if sh.Get("start") != "2020-01-01T00:00:00Z" || sh.Get("end") != "2024-12-31T23:59:59Z" {
			t.Errorf("scihub window = %s..%s", sh.Get("start"), sh.Get("end"))
		}
	}
}

func TestBuildLinks_ExactTemplate(t *testing.T) {
	links := portals.BuildLinks(46.5, 2.25, domain.NewDate(2020, 1, 1), domain.NewDate(2024, 12, 31))
	wantSciHub := "https://scihub.copernicus.eu/dhus/#/home?start=2020-01-01T00:00:00Z&end=2024-12-31T23:59:59Z&lat=46.5&lng=2.25&zoom=13"
	wantEO := "https://apps.sentinel-hub.com/eo-browser/?lat=46.5&lng=2.25&zoom=13&fromTime=2020-01-01&toTime=2024-12-31&datasetId=S2L2A"
	if links.SciHubURL != wantSciHub {
		t.Errorf("scihub:\n got %s\nwant %s", links.SciHubURL, wantSciHub)
	}
	if links.EOBrowserURL != wantEO {
		t.Errorf("eo browser:\n got %s\nwant %s", links.EOBrowserURL, wantEO)
	}
}

func TestGenerator_ForBounds(t *testing.T) {
	g := portals.Generator{Window: domain.Period{From: domain.NewDate(2021, 3, 1), To: domain.NewDate(2021, 4, 1)}}
	links := g.ForBounds(domain.Bounds{West: 2, South: 46, East: 3, North: 47})
	q, _ := url.Parse(links.EOBrowserURL)
	if q.Query().Get("lat") != "46.5" || q.Query().Get("lng") != "2.5" {
		t.Errorf("links not centred on bounds: %s", links.EOBrowserURL)
	}
}

func formatted(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
