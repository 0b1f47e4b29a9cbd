package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DateLayout is the ISO calendar date format used throughout the API.
const DateLayout = "2006-01-02"

// Date is a calendar day in UTC.
type Date struct {
	time.Time
}

// NewDate returns the UTC calendar day y-m-d.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q is not a YYYY-MM-DD date", ErrInvalidPeriod, s)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Period is an inclusive range of calendar days.
type Period struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// Validate checks From <= To.
func (p Period) Validate() error {
	if p.From.IsZero() || p.To.IsZero() {
		return fmt.Errorf("%w: both dates are required", ErrInvalidPeriod)
	}
	if p.From.After(p.To.Time) {
		return fmt.Errorf("%w: %s is after %s", ErrInvalidPeriod, p.From, p.To)
	}
	return nil
}

// Strategy names the imagery backend that produced an image.
type Strategy string

const (
	StrategyStatic        Strategy = "static"
	StrategyAuthenticated Strategy = "authenticated"
)

// ImageryRequest is the value handed to an imagery strategy.
type ImageryRequest struct {
	Bounds Bounds `json:"bounds"`
	Period Period `json:"period"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	// MaxCloudCoverage is a percentage; nil means no filter.
	MaxCloudCoverage *float64 `json:"max_cloud_coverage,omitempty"`
	Label            string   `json:"label"`
}

// Validate checks the bounds and period of the request.
func (r ImageryRequest) Validate() error {
	if err := r.Bounds.Validate(); err != nil {
		return err
	}
	return r.Period.Validate()
}

// SourceKind tells whether an ImageSource is a link, inline bytes or a
// reference to bytes parked in the cache.
type SourceKind string

const (
	SourceURL    SourceKind = "url"
	SourceBytes  SourceKind = "bytes"
	SourceCached SourceKind = "cached"
)

// ImageSource is what an imagery strategy yields for one slot.
type ImageSource struct {
	Kind        SourceKind      `json:"kind"`
	URL         string          `json:"url,omitempty"`
	Data        []byte          `json:"data,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	Label       string          `json:"label"`
	Strategy    Strategy        `json:"strategy"`
	Tile        *TileCoordinate `json:"tile,omitempty"`
	Period      *Period         `json:"period,omitempty"`
	CacheKey    string          `json:"cache_key,omitempty"`
}

// AccessToken is a short-lived bearer credential for the processing API.
// It lives only for the duration of one fetch cycle.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// String keeps the token value out of logs and error messages.
func (t AccessToken) String() string {
	return "AccessToken(redacted)"
}

// CopernicusLinks are deep links into the two external imagery portals.
type CopernicusLinks struct {
	SciHubURL    string `json:"scihub_url"`
	EOBrowserURL string `json:"eobrowser_url"`
}

// SceneQuery asks for a single processed image around a point.
type SceneQuery struct {
	Lat    float64 `json:"latitude"`
	Lon    float64 `json:"longitude"`
	Period Period  `json:"period"`
	// MaxCloudCoverage is a percentage; nil selects the configured default.
	MaxCloudCoverage *float64 `json:"cloud_coverage,omitempty"`
}

// SceneResult is the answer to a SceneQuery.
type SceneResult struct {
	Location         GeoPoint    `json:"location"`
	Bounds           Bounds      `json:"bounds"`
	Period           Period      `json:"period"`
	MaxCloudCoverage float64     `json:"cloud_coverage"`
	State            FetchState  `json:"state"`
	Image            ImageSource `json:"image"`
	Error            string      `json:"error,omitempty"`
}
