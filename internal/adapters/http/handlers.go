package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/usecases"
)

const (
	headerSessionID = "X-Session-ID"
	mimeGeoJSON     = "application/geo+json"

	maxUploadBytes = 2 << 20
)

// areaRequest is the JSON form of an area submission: a point or a GeoJSON
// document. A GeoJSON object posted as the whole body is accepted too.
type areaRequest struct {
	Lat     *float64        `json:"lat"`
	Lon     *float64        `json:"lon"`
	GeoJSON json.RawMessage `json:"geojson"`
	Type    string          `json:"type"`
}

func (r areaRequest) input(raw []byte) (usecases.AreaInput, error) {
	var in usecases.AreaInput
	switch {
	case r.Type != "":
		in.GeoJSON = raw
	case len(r.GeoJSON) > 0 && string(r.GeoJSON) != "null":
		in.GeoJSON = r.GeoJSON
	}
	switch {
	case r.Lat != nil && r.Lon != nil:
		in.Point = &domain.GeoPoint{Lat: *r.Lat, Lon: *r.Lon}
	case r.Lat != nil || r.Lon != nil:
		if len(in.GeoJSON) == 0 {
			return in, fmt.Errorf("%w: both lat and lon are required", domain.ErrInvalidCoordinate)
		}
	}
	return in, nil
}

func isGeoJSONBody(c *fiber.Ctx) bool {
	return strings.HasPrefix(string(c.Request().Header.ContentType()), mimeGeoJSON)
}

// decodeArea reads an area submission from the request body into dst,
// whose embedded areaRequest yields the input. A geo+json body is taken as
// the GeoJSON document itself.
func decodeArea(c *fiber.Ctx, dst any, area *areaRequest) (usecases.AreaInput, error) {
	body := bytes.TrimSpace(c.Body())
	switch {
	case len(body) == 0:
		return usecases.AreaInput{}, nil
	case isGeoJSONBody(c):
		return usecases.AreaInput{GeoJSON: body}, nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return usecases.AreaInput{}, fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidParameter)
	}
	return area.input(body)
}

// CreateAreaHandler resolves a point or GeoJSON submission into bounds,
// extent and portal links.
func CreateAreaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req areaRequest
		in, err := decodeArea(c, &req, &req)
		if err != nil {
			return respondError(c, err)
		}
		area, err := deps.Areas.Resolve(in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(area)
	}
}

// UploadAreaHandler resolves a GeoJSON file sent as multipart field "file".
func UploadAreaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return errBadRequest(c, `multipart field "file" is required`)
		}
		if fh.Size > maxUploadBytes {
			return newError(c, fiber.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("file exceeds %d bytes", maxUploadBytes))
		}
		f, err := fh.Open()
		if err != nil {
			return errInternal(c, fmt.Errorf("open upload: %w", err))
		}
		defer f.Close()

		raw, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		if err != nil {
			return errInternal(c, fmt.Errorf("read upload: %w", err))
		}
		area, err := deps.Areas.Resolve(usecases.AreaInput{GeoJSON: raw})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(area)
	}
}

type imageryRequest struct {
	areaRequest
	SessionID string         `json:"session_id"`
	Bounds    *domain.Bounds `json:"bounds"`
}

// FetchImageryHandler runs one fetch cycle and returns the before/now pair.
// Processing failures degrade to static imagery and are reported in the
// body, never as a 5xx.
func FetchImageryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req imageryRequest
		in, err := decodeArea(c, &req, &req.areaRequest)
		if err != nil && req.Bounds == nil {
			return respondError(c, err)
		}

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID = c.Get(headerSessionID)
		}

		var bounds domain.Bounds
		if req.Bounds != nil {
			bounds = *req.Bounds
		} else {
			area, err := deps.Areas.Resolve(in)
			if err != nil {
				return respondError(c, err)
			}
			bounds = area.Bounds
		}

		result, err := deps.Imagery.Fetch(c.UserContext(), sessionID, bounds, nil)
		if err != nil {
			return respondError(c, err)
		}
		c.Set(headerSessionID, result.SessionID)
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(newImageryResponse(result))
	}
}

type sceneRequest struct {
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	CloudCoverage *float64 `json:"cloud_coverage"`
}

func (r sceneRequest) query() (domain.SceneQuery, error) {
	if r.Latitude == nil || r.Longitude == nil {
		return domain.SceneQuery{}, fmt.Errorf("%w: latitude and longitude are required", domain.ErrInvalidCoordinate)
	}
	if r.StartDate == "" || r.EndDate == "" {
		return domain.SceneQuery{}, fmt.Errorf("%w: start_date and end_date are required", domain.ErrInvalidPeriod)
	}
	from, err := domain.ParseDate(r.StartDate)
	if err != nil {
		return domain.SceneQuery{}, err
	}
	to, err := domain.ParseDate(r.EndDate)
	if err != nil {
		return domain.SceneQuery{}, err
	}
	q := domain.SceneQuery{
		Lat:              *r.Latitude,
		Lon:              *r.Longitude,
		Period:           domain.Period{From: from, To: to},
		MaxCloudCoverage: r.CloudCoverage,
	}
	return q, nil
}

func parseScene(c *fiber.Ctx) (domain.SceneQuery, error) {
	var req sceneRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return domain.SceneQuery{}, fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidParameter)
	}
	return req.query()
}

// SceneHandler returns one processed image around a point for a date range.
func SceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		q, err := parseScene(c)
		if err != nil {
			return respondError(c, err)
		}
		res, err := deps.Imagery.Scene(c.UserContext(), q)
		if err != nil {
			return respondError(c, err)
		}
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(sceneResponse{
			Location:      res.Location,
			Bounds:        res.Bounds,
			Period:        res.Period,
			CloudCoverage: res.MaxCloudCoverage,
			State:         res.State,
			Image:         viewImage(&res.Image),
			Error:         res.Error,
		})
	}
}

// LegacySceneHandler serves the scene lookup in the response shape of the
// old satellite backend.
func LegacySceneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(bytes.TrimSpace(c.Body())) == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "No data provided",
				"message": "Please provide coordinates and date range",
			})
		}
		q, err := parseScene(c)
		if err == nil {
			var res *domain.SceneResult
			if res, err = deps.Imagery.Scene(c.UserContext(), q); err == nil {
				return c.JSON(legacySceneResponse(res))
			}
		}

		switch {
		case errors.Is(err, domain.ErrInvalidCoordinate):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid coordinates",
				"message": "Latitude must be between -90 and 90, longitude between -180 and 180",
			})
		case domain.IsValidation(err):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":   "Invalid parameters",
				"message": err.Error(),
			})
		default:
			LoggerFromCtx(c.UserContext()).Error("legacy scene lookup failed", "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":   "Internal server error",
				"message": "internal server error",
			})
		}
	}
}

// TileHandler returns the tile containing a point and its static image URL.
func TileHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat, lon, err := queryPoint(c)
		if err != nil {
			return respondError(c, err)
		}
		zoom := c.QueryInt("zoom", deps.Imagery.Settings().PrimaryZoom)
		img, err := deps.Areas.Tile(lat, lon, zoom)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"tile":  img.Tile,
			"url":   img.URL,
			"label": img.Label,
		})
	}
}

// LinksHandler returns Copernicus and EO Browser links for a point. from
// and to default to the configured window.
func LinksHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		lat, lon, err := queryPoint(c)
		if err != nil {
			return respondError(c, err)
		}
		var period domain.Period
		if from := c.Query("from"); from != "" {
			if period.From, err = domain.ParseDate(from); err != nil {
				return respondError(c, err)
			}
		}
		if to := c.Query("to"); to != "" {
			if period.To, err = domain.ParseDate(to); err != nil {
				return respondError(c, err)
			}
		}
		links, err := deps.Areas.Links(lat, lon, period)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(links)
	}
}

// ListCyclesHandler pages through the fetch-cycle journal, newest first.
func ListCyclesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Cycles == nil {
			return errUnavailable(c, "cycle journal not available")
		}
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 20)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 100 {
			limit = 20
		}

		cycles, total, err := deps.Cycles.ListRecent(c.UserContext(), c.Query("session"), offset, limit)
		if err != nil {
			return respondError(c, err)
		}
		if cycles == nil {
			cycles = []domain.FetchCycle{}
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: cycles, Pagination: pg})
	}
}

// GetCycleHandler returns one journalled cycle.
func GetCycleHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Cycles == nil {
			return errUnavailable(c, "cycle journal not available")
		}
		cycle, err := deps.Cycles.GetByID(c.UserContext(), c.Params("id"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errNotFound(c, "cycle not found")
			}
			return respondError(c, err)
		}
		return c.JSON(cycle)
	}
}

// SessionHandler returns the current state of a client session.
func SessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		snap, ok := deps.Imagery.Sessions().Get(c.Params("id"))
		if !ok {
			return errNotFound(c, "session not found")
		}
		return c.JSON(snap)
	}
}

// queryPoint reads the required lat and lon query parameters.
func queryPoint(c *fiber.Ctx) (float64, float64, error) {
	if c.Query("lat") == "" || c.Query("lon") == "" {
		return 0, 0, fmt.Errorf("%w: lat and lon are required", domain.ErrInvalidCoordinate)
	}
	lat := c.QueryFloat("lat", 0)
	lon := c.QueryFloat("lon", 0)
	p := domain.GeoPoint{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// --- response views ---

// imageView is an ImageSource as sent to clients: inline bytes become a
// data: URI so every slot is directly displayable.
type imageView struct {
	Kind        domain.SourceKind      `json:"kind"`
	URL         string                 `json:"url"`
	ContentType string                 `json:"content_type,omitempty"`
	Label       string                 `json:"label"`
	Strategy    domain.Strategy        `json:"strategy"`
	Tile        *domain.TileCoordinate `json:"tile,omitempty"`
	Period      *domain.Period         `json:"period,omitempty"`
}

func viewImage(src *domain.ImageSource) *imageView {
	if src == nil {
		return nil
	}
	v := &imageView{
		Kind:        src.Kind,
		URL:         src.URL,
		ContentType: src.ContentType,
		Label:       src.Label,
		Strategy:    src.Strategy,
		Tile:        src.Tile,
		Period:      src.Period,
	}
	if src.Kind == domain.SourceBytes {
		v.URL = dataURI(src.ContentType, src.Data)
	}
	return v
}

func dataURI(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

type imageryResponse struct {
	CycleID   string                 `json:"cycle_id"`
	SessionID string                 `json:"session_id"`
	State     domain.FetchState      `json:"state"`
	Strategy  domain.Strategy        `json:"strategy,omitempty"`
	Bounds    domain.Bounds          `json:"bounds"`
	Before    *imageView             `json:"before,omitempty"`
	Now       *imageView             `json:"now,omitempty"`
	Links     domain.CopernicusLinks `json:"links"`
	Error     string                 `json:"error,omitempty"`
	Stale     bool                   `json:"stale,omitempty"`
}

func newImageryResponse(r *domain.ImageryResult) imageryResponse {
	return imageryResponse{
		CycleID:   r.CycleID,
		SessionID: r.SessionID,
		State:     r.State,
		Strategy:  r.Strategy,
		Bounds:    r.Bounds,
		Before:    viewImage(r.Before),
		Now:       viewImage(r.Now),
		Links:     r.Links,
		Error:     r.Error,
		Stale:     r.Stale,
	}
}

type sceneResponse struct {
	Location      domain.GeoPoint   `json:"location"`
	Bounds        domain.Bounds     `json:"bounds"`
	Period        domain.Period     `json:"period"`
	CloudCoverage float64           `json:"cloud_coverage"`
	State         domain.FetchState `json:"state"`
	Image         *imageView        `json:"image"`
	Error         string            `json:"error,omitempty"`
}

func legacySceneResponse(res *domain.SceneResult) fiber.Map {
	return fiber.Map{
		"success": true,
		"message": "Satellite image retrieved successfully",
		"data": fiber.Map{
			"coordinates": fiber.Map{
				"latitude":  res.Location.Lat,
				"longitude": res.Location.Lon,
			},
			"date_range": fiber.Map{
				"start": res.Period.From.String(),
				"end":   res.Period.To.String(),
			},
			"image_url": viewImage(&res.Image).URL,
			"metadata": fiber.Map{
				"satellite":      "Sentinel-2",
				"resolution":     "10m",
				"bands":          []string{"B02", "B03", "B04"},
				"cloud_coverage": res.MaxCloudCoverage,
				"state":          res.State,
			},
		},
	}
}
