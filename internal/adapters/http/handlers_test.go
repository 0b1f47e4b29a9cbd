package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/eudrsat/internal/adapters/http"
	"github.com/samirrijal/eudrsat/internal/adapters/esri"
	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/usecases"
	"github.com/samirrijal/eudrsat/internal/pkg/portals"
)

// ---- Mocks ----

type mockProcessor struct {
	tokenFn   func(ctx context.Context) (domain.AccessToken, error)
	processFn func(ctx context.Context, tok domain.AccessToken, req domain.ImageryRequest) (domain.ImageSource, error)
}

func (m *mockProcessor) Token(ctx context.Context) (domain.AccessToken, error) {
	if m.tokenFn != nil {
		return m.tokenFn(ctx)
	}
	return domain.AccessToken{Value: "tok"}, nil
}

func (m *mockProcessor) Process(ctx context.Context, tok domain.AccessToken, req domain.ImageryRequest) (domain.ImageSource, error) {
	if m.processFn != nil {
		return m.processFn(ctx, tok, req)
	}
	return domain.ImageSource{
		Kind:        domain.SourceBytes,
		Data:        []byte("PNG"),
		ContentType: "image/png",
		Label:       req.Label,
		Strategy:    domain.StrategyAuthenticated,
	}, nil
}

type mockCycleRepo struct {
	mu     sync.Mutex
	cycles map[string]domain.FetchCycle
	order  []string
	listFn func(ctx context.Context, sessionID string, offset, limit int) ([]domain.FetchCycle, int, error)
}

func newMockCycleRepo() *mockCycleRepo {
	return &mockCycleRepo{cycles: make(map[string]domain.FetchCycle)}
}

func (m *mockCycleRepo) Create(ctx context.Context, c *domain.FetchCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[c.ID] = *c
	m.order = append(m.order, c.ID)
	return nil
}

func (m *mockCycleRepo) Finish(ctx context.Context, c *domain.FetchCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles[c.ID] = *c
	return nil
}

func (m *mockCycleRepo) GetByID(ctx context.Context, id string) (*domain.FetchCycle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cycles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *mockCycleRepo) ListRecent(ctx context.Context, sessionID string, offset, limit int) ([]domain.FetchCycle, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, sessionID, offset, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.FetchCycle
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.cycles[m.order[i]])
	}
	total := len(out)
	if offset >= total {
		return nil, total, nil
	}
	return out[offset:min(offset+limit, total)], total, nil
}

// ---- Setup ----

type testEnv struct {
	app       *fiber.App
	processor *mockProcessor
	cycles    *mockCycleRepo
}

func setup(t *testing.T, authenticated bool) *testEnv {
	t.Helper()

	static := esri.NewTileSource(esri.WorldImageryURL, 14, 13)
	links := portals.Generator{
		Window: domain.Period{From: domain.NewDate(2020, 1, 1), To: domain.NewDate(2024, 12, 31)},
		Zoom:   13,
	}
	proc := &mockProcessor{}
	repo := newMockCycleRepo()

	imagery := usecases.NewImageryService(usecases.ImageryDeps{
		Static:    static,
		Processor: proc,
		Links:     links,
		Cycles:    repo,
	}, usecases.ImagerySettings{
		Authenticated: authenticated,
		PrimaryZoom:   14,
		FallbackZoom:  13,
		SceneMaxCloud: 20,
	})

	deps := &handler.Dependencies{
		Areas:   usecases.NewAreaService(links, static, imagery),
		Imagery: imagery,
		Cycles:  usecases.NewCycleService(repo),
		Version: "test",
	}

	app := handler.NewApp(handler.AppConfig{})
	handler.SetupRoutes(app, deps)
	return &testEnv{app: app, processor: proc, cycles: repo}
}

type response struct {
	status int
	header nethttp.Header
	body   map[string]interface{}
	raw    []byte
}

func send(t *testing.T, app *fiber.App, req *nethttp.Request) response {
	t.Helper()
	resp, err := app.Test(req, 5000)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var body map[string]interface{}
	_ = json.Unmarshal(raw, &body)
	return response{status: resp.StatusCode, header: resp.Header, body: body, raw: raw}
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return send(t, app, req)
}

func get(t *testing.T, app *fiber.App, path string) response {
	t.Helper()
	return doJSON(t, app, "GET", path, "")
}

func expectError(t *testing.T, r response, status int, code string) {
	t.Helper()
	if r.status != status {
		t.Fatalf("expected %d, got %d: %s", status, r.status, r.raw)
	}
	if r.body["code"] != code {
		t.Errorf("expected code %q, got %v", code, r.body["code"])
	}
}

func obj(t *testing.T, m map[string]interface{}, key string) map[string]interface{} {
	t.Helper()
	v, ok := m[key].(map[string]interface{})
	if !ok {
		t.Fatalf("missing object %q in %v", key, m)
	}
	return v
}

const squareGeoJSON = `{"type":"Polygon","coordinates":[[[2.0,46.0],[2.01,46.0],[2.01,46.01],[2.0,46.01],[2.0,46.0]]]}`

// ---- Health ----

func TestHealthHandler(t *testing.T) {
	env := setup(t, false)
	r := get(t, env.app, "/v1/health")
	if r.status != 200 {
		t.Fatalf("expected 200, got %d", r.status)
	}
	if r.body["status"] != "healthy" || r.body["version"] != "test" || r.body["strategy"] != "static" {
		t.Errorf("unexpected body %v", r.body)
	}
}

func TestReadyHandler_NothingConfigured(t *testing.T) {
	env := setup(t, false)
	r := get(t, env.app, "/v1/ready")
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	checks := obj(t, r.body, "checks")
	if checks["database"] != "not configured" || checks["nats"] != "not configured" {
		t.Errorf("unexpected checks %v", checks)
	}
}

func TestLegacyHealthHandler(t *testing.T) {
	env := setup(t, false)
	r := get(t, env.app, "/api/health")
	if r.status != 200 || r.body["service"] != "EUDR Satellite Backend" {
		t.Errorf("unexpected %d %v", r.status, r.body)
	}
}

// ---- Areas ----

func TestCreateArea_Point(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/areas", `{"lat":46.0,"lon":2.0}`)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	b := obj(t, r.body, "bounds")
	if b["west"].(float64) >= b["east"].(float64) || b["south"].(float64) >= b["north"].(float64) {
		t.Errorf("bounds out of order: %v", b)
	}
	links := obj(t, r.body, "links")
	if !strings.Contains(links["eobrowser_url"].(string), "apps.sentinel-hub.com") {
		t.Errorf("unexpected links %v", links)
	}
}

func TestCreateArea_LatOutOfRange(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/areas", `{"lat":100,"lon":2.0}`)
	expectError(t, r, 400, "bad_request")
}

func TestCreateArea_MissingLon(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/areas", `{"lat":46.0}`)
	expectError(t, r, 400, "bad_request")
}

func TestCreateArea_EmptyBody(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/areas", "")
	expectError(t, r, 400, "bad_request")
}

func TestCreateArea_MalformedGeoJSON(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/areas", `{"geojson":{"type":"Polygon","coordinates":"nope"}}`)
	expectError(t, r, 400, "bad_request")
}

func TestCreateArea_GeoJSONOutsideWorldRange(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/areas",
		`{"geojson":{"type":"Polygon","coordinates":[[[10,100],[11,100],[11,120],[10,120],[10,100]]]}}`)
	expectError(t, r, 400, "bad_request")
}

func TestCreateArea_GeoJSONMember(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/areas", `{"geojson":`+squareGeoJSON+`}`)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	b := obj(t, r.body, "bounds")
	if b["west"] != 2.0 || b["north"] != 46.01 {
		t.Errorf("unexpected bounds %v", b)
	}
}

func TestCreateArea_RawGeoJSONBody(t *testing.T) {
	env := setup(t, false)
	req := httptest.NewRequest("POST", "/v1/areas", strings.NewReader(squareGeoJSON))
	req.Header.Set("Content-Type", "application/geo+json")
	r := send(t, env.app, req)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	if obj(t, r.body, "bounds")["east"] != 2.01 {
		t.Errorf("unexpected bounds %v", r.body["bounds"])
	}
}

func TestCreateArea_BareGeoJSONAsJSON(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/areas", squareGeoJSON)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
}

func TestUploadArea(t *testing.T) {
	env := setup(t, false)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "area.geojson")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},"geometry":` + squareGeoJSON + `}]}`))
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/v1/areas/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	r := send(t, env.app, req)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	if obj(t, r.body, "bounds")["south"] != 46.0 {
		t.Errorf("unexpected bounds %v", r.body["bounds"])
	}
}

func TestUploadArea_MissingFile(t *testing.T) {
	env := setup(t, false)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "x")
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/v1/areas/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	expectError(t, send(t, env.app, req), 400, "bad_request")
}

// ---- Imagery ----

func TestFetchImagery_Static(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/imagery", `{"session_id":"s1","lat":43.26,"lon":-2.93}`)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	if r.body["state"] != "success" || r.body["strategy"] != "static" {
		t.Errorf("unexpected result %v", r.body)
	}
	if r.header.Get("X-Session-ID") != "s1" {
		t.Errorf("session header = %q", r.header.Get("X-Session-ID"))
	}
	before := obj(t, r.body, "before")
	if !strings.Contains(before["url"].(string), "/tile/14/") || before["label"] != usecases.LabelBefore {
		t.Errorf("unexpected before %v", before)
	}
	if obj(t, r.body, "now")["label"] != usecases.LabelNow {
		t.Errorf("unexpected now %v", r.body["now"])
	}
}

func TestFetchImagery_AuthenticatedDataURI(t *testing.T) {
	env := setup(t, true)
	r := doJSON(t, env.app, "POST", "/v1/imagery", `{"bounds":{"west":2.0,"south":46.0,"east":2.01,"north":46.01}}`)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	if r.body["strategy"] != "authenticated" {
		t.Errorf("unexpected strategy %v", r.body["strategy"])
	}
	url := obj(t, r.body, "before")["url"].(string)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("expected data URI, got %s", url)
	}
	if r.body["session_id"] == "" {
		t.Error("session id not generated")
	}
}

func TestFetchImagery_ProcessFailureFallsBack(t *testing.T) {
	env := setup(t, true)
	env.processor.processFn = func(ctx context.Context, tok domain.AccessToken, req domain.ImageryRequest) (domain.ImageSource, error) {
		return domain.ImageSource{}, &domain.ImageryFetchError{Status: 503, Payload: "busy"}
	}

	r := doJSON(t, env.app, "POST", "/v1/imagery", `{"lat":46.0,"lon":2.0}`)
	if r.status != 200 {
		t.Fatalf("backend failure must not surface as %d: %s", r.status, r.raw)
	}
	if r.body["state"] != "fallback" || r.body["strategy"] != "static" {
		t.Errorf("unexpected result %v", r.body)
	}
	before := obj(t, r.body, "before")
	if !strings.Contains(before["url"].(string), "/tile/13/") || before["label"] != usecases.LabelBeforeFallback {
		t.Errorf("unexpected fallback image %v", before)
	}
}

func TestFetchImagery_TokenFailureFallsBack(t *testing.T) {
	env := setup(t, true)
	env.processor.tokenFn = func(ctx context.Context) (domain.AccessToken, error) {
		return domain.AccessToken{}, &domain.AuthError{Status: 401, Message: "bad credentials"}
	}
	r := doJSON(t, env.app, "POST", "/v1/imagery", `{"lat":46.0,"lon":2.0}`)
	if r.status != 200 || r.body["state"] != "fallback" {
		t.Errorf("unexpected %d %v", r.status, r.body)
	}
}

func TestFetchImagery_InvalidBounds(t *testing.T) {
	env := setup(t, true)
	r := doJSON(t, env.app, "POST", "/v1/imagery", `{"bounds":{"west":3,"south":46,"east":2,"north":47}}`)
	expectError(t, r, 400, "bad_request")
}

func TestFetchImagery_JournalsCycle(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/imagery", `{"session_id":"s9","lat":46.0,"lon":2.0}`)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d", r.status)
	}
	id := r.body["cycle_id"].(string)

	c := get(t, env.app, "/v1/cycles/"+id)
	if c.status != 200 {
		t.Fatalf("expected 200, got %d: %s", c.status, c.raw)
	}
	if c.body["state"] != "success" || c.body["session_id"] != "s9" {
		t.Errorf("unexpected cycle %v", c.body)
	}
}

// ---- Sessions ----

func TestSessionHandler(t *testing.T) {
	env := setup(t, false)
	doJSON(t, env.app, "POST", "/v1/imagery", `{"session_id":"abc","lat":46.0,"lon":2.0}`)

	r := get(t, env.app, "/v1/sessions/abc")
	if r.status != 200 {
		t.Fatalf("expected 200, got %d", r.status)
	}
	if r.body["controls_enabled"] != true || r.body["state"] != "success" {
		t.Errorf("unexpected session %v", r.body)
	}
	if r.header.Get("Cache-Control") != "no-store" {
		t.Errorf("Cache-Control = %q", r.header.Get("Cache-Control"))
	}
}

func TestSessionHandler_NotFound(t *testing.T) {
	env := setup(t, false)
	expectError(t, get(t, env.app, "/v1/sessions/missing"), 404, "not_found")
}

// ---- Scene ----

func TestScene_Static(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/imagery/scene",
		`{"latitude":46.0,"longitude":2.0,"start_date":"2023-01-01","end_date":"2023-03-31"}`)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	if r.body["cloud_coverage"] != 20.0 || r.body["state"] != "success" {
		t.Errorf("unexpected scene %v", r.body)
	}
}

func TestScene_ExplicitZeroCloudCoverage(t *testing.T) {
	env := setup(t, false)
	r := doJSON(t, env.app, "POST", "/v1/imagery/scene",
		`{"latitude":46.0,"longitude":2.0,"start_date":"2023-01-01","end_date":"2023-03-31","cloud_coverage":0}`)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	if r.body["cloud_coverage"] != 0.0 {
		t.Errorf("cloud_coverage = %v, want 0", r.body["cloud_coverage"])
	}
}

func TestScene_Validation(t *testing.T) {
	env := setup(t, false)
	cases := map[string]string{
		"missing coords":  `{"start_date":"2023-01-01","end_date":"2023-03-31"}`,
		"missing dates":   `{"latitude":46.0,"longitude":2.0}`,
		"reversed period": `{"latitude":46.0,"longitude":2.0,"start_date":"2023-04-01","end_date":"2023-03-31"}`,
		"bad date":        `{"latitude":46.0,"longitude":2.0,"start_date":"01/01/2023","end_date":"2023-03-31"}`,
		"cloud > 100":     `{"latitude":46.0,"longitude":2.0,"start_date":"2023-01-01","end_date":"2023-03-31","cloud_coverage":150}`,
		"malformed":       `{"latitude":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			expectError(t, doJSON(t, env.app, "POST", "/v1/imagery/scene", body), 400, "bad_request")
		})
	}
}

func TestLegacyScene(t *testing.T) {
	env := setup(t, true)
	r := doJSON(t, env.app, "POST", "/api/satellite-image",
		`{"latitude":46.0,"longitude":2.0,"start_date":"2023-01-01","end_date":"2023-03-31","cloud_coverage":10}`)
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	if r.header.Get("Deprecation") != "true" || r.header.Get("Sunset") == "" {
		t.Errorf("missing deprecation headers: %v", r.header)
	}
	if !strings.Contains(r.header.Get("Link"), "/v1/imagery/scene") {
		t.Errorf("Link = %q", r.header.Get("Link"))
	}
	if r.body["success"] != true {
		t.Fatalf("unexpected body %v", r.body)
	}
	data := obj(t, r.body, "data")
	if !strings.HasPrefix(data["image_url"].(string), "data:image/png") {
		t.Errorf("image_url = %v", data["image_url"])
	}
	if obj(t, data, "metadata")["cloud_coverage"] != 10.0 {
		t.Errorf("metadata = %v", data["metadata"])
	}
	if obj(t, data, "date_range")["start"] != "2023-01-01" {
		t.Errorf("date_range = %v", data["date_range"])
	}
}

func TestLegacyScene_Errors(t *testing.T) {
	env := setup(t, false)

	r := doJSON(t, env.app, "POST", "/api/satellite-image", "")
	if r.status != 400 || r.body["error"] != "No data provided" {
		t.Errorf("empty body: %d %v", r.status, r.body)
	}

	r = doJSON(t, env.app, "POST", "/api/satellite-image",
		`{"latitude":95,"longitude":2.0,"start_date":"2023-01-01","end_date":"2023-03-31"}`)
	if r.status != 400 || r.body["error"] != "Invalid coordinates" {
		t.Errorf("bad latitude: %d %v", r.status, r.body)
	}
}

// ---- Tiles & links ----

func TestTileHandler(t *testing.T) {
	env := setup(t, false)
	r := get(t, env.app, "/v1/tiles?lat=43.263&lon=-2.935&zoom=14")
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	tile := obj(t, r.body, "tile")
	if tile["x"] != 8058.0 || tile["y"] != 6003.0 {
		t.Errorf("unexpected tile %v", tile)
	}
	if !strings.HasSuffix(r.body["url"].(string), "/tile/14/6003/8058") {
		t.Errorf("unexpected url %v", r.body["url"])
	}
	if !strings.Contains(r.header.Get("Cache-Control"), "max-age=86400") {
		t.Errorf("Cache-Control = %q", r.header.Get("Cache-Control"))
	}
}

func TestTileHandler_Validation(t *testing.T) {
	env := setup(t, false)
	expectError(t, get(t, env.app, "/v1/tiles?lat=43&lon=-2&zoom=30"), 400, "bad_request")
	expectError(t, get(t, env.app, "/v1/tiles?lon=-2"), 400, "bad_request")
	expectError(t, get(t, env.app, "/v1/tiles?lat=100&lon=-2"), 400, "bad_request")
}

func TestLinksHandler(t *testing.T) {
	env := setup(t, false)
	r := get(t, env.app, "/v1/links?lat=46&lon=2")
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	eo := r.body["eobrowser_url"].(string)
	if !strings.Contains(eo, "2020-01-01") || !strings.Contains(eo, "2024-12-31") {
		t.Errorf("default window not applied: %s", eo)
	}

	r = get(t, env.app, "/v1/links?lat=46&lon=2&from=2022-01-01&to=2022-06-30")
	if !strings.Contains(r.body["scihub_url"].(string), "2022-01-01") {
		t.Errorf("explicit window not applied: %v", r.body)
	}

	expectError(t, get(t, env.app, "/v1/links?lat=46&lon=2&from=2023-01-01&to=2022-01-01"), 400, "bad_request")
}

// ---- Cycles ----

func TestListCycles_Pagination(t *testing.T) {
	env := setup(t, false)
	env.cycles.listFn = func(ctx context.Context, sessionID string, offset, limit int) ([]domain.FetchCycle, int, error) {
		if sessionID != "s1" || offset != 2 || limit != 2 {
			t.Errorf("unexpected args %q %d %d", sessionID, offset, limit)
		}
		return []domain.FetchCycle{{ID: "c3"}, {ID: "c4"}}, 7, nil
	}

	r := get(t, env.app, "/v1/cycles?session=s1&offset=2&limit=2")
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	pg := obj(t, r.body, "pagination")
	if pg["total"] != 7.0 || pg["offset"] != 2.0 {
		t.Errorf("unexpected pagination %v", pg)
	}
	link := r.header.Get("Link")
	for _, want := range []string{`rel="next"`, `rel="prev"`, "offset=4", "session=s1"} {
		if !strings.Contains(link, want) {
			t.Errorf("Link header missing %q: %s", want, link)
		}
	}
}

func TestListCycles_Empty(t *testing.T) {
	env := setup(t, false)
	r := get(t, env.app, "/v1/cycles")
	if r.status != 200 {
		t.Fatalf("expected 200, got %d", r.status)
	}
	if data, ok := r.body["data"].([]interface{}); !ok || len(data) != 0 {
		t.Errorf("expected empty list, got %v", r.body["data"])
	}
}

func TestListCycles_RepoError(t *testing.T) {
	env := setup(t, false)
	env.cycles.listFn = func(ctx context.Context, sessionID string, offset, limit int) ([]domain.FetchCycle, int, error) {
		return nil, 0, errors.New("connection refused")
	}
	r := get(t, env.app, "/v1/cycles")
	expectError(t, r, 500, "internal_error")
	if strings.Contains(string(r.raw), "connection refused") {
		t.Error("internal error detail leaked to client")
	}
}

func TestGetCycle_NotFound(t *testing.T) {
	env := setup(t, false)
	expectError(t, get(t, env.app, "/v1/cycles/nope"), 404, "not_found")
}

// ---- GraphQL ----

func graphql(t *testing.T, app *fiber.App, query string) map[string]interface{} {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"query": query})
	r := doJSON(t, app, "POST", "/graphql", string(body))
	if r.status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.status, r.raw)
	}
	if errs, ok := r.body["errors"]; ok {
		t.Fatalf("graphql errors: %v", errs)
	}
	return obj(t, r.body, "data")
}

func TestGraphQL_Tile(t *testing.T) {
	env := setup(t, false)
	data := graphql(t, env.app, `{ tile(lat: 43.263, lon: -2.935, zoom: 14) { zoom x y url } }`)
	tile := obj(t, data, "tile")
	if tile["x"] != 8058.0 || tile["y"] != 6003.0 || tile["zoom"] != 14.0 {
		t.Errorf("unexpected tile %v", tile)
	}
}

func TestGraphQL_AreaAndLinks(t *testing.T) {
	env := setup(t, false)
	data := graphql(t, env.app, `{
		area(lat: 46.0, lon: 2.0) { center { lat lon } extent_m { width_m } }
		links(lat: 46.0, lon: 2.0, from: "2021-01-01", to: "2021-12-31") { scihub_url }
	}`)
	center := obj(t, obj(t, data, "area"), "center")
	if math.Abs(center["lat"].(float64)-46.0) > 1e-9 || math.Abs(center["lon"].(float64)-2.0) > 1e-9 {
		t.Errorf("unexpected center %v", center)
	}
	if !strings.Contains(obj(t, data, "links")["scihub_url"].(string), "2021-12-31") {
		t.Errorf("unexpected links %v", data["links"])
	}
}

func TestGraphQL_RecentCycles(t *testing.T) {
	env := setup(t, false)
	doJSON(t, env.app, "POST", "/v1/imagery", `{"session_id":"g1","lat":46.0,"lon":2.0}`)

	data := graphql(t, env.app, `{ recentCycles(limit: 5) { total items { id state started_at finished_at } } }`)
	page := obj(t, data, "recentCycles")
	if page["total"] != 1.0 {
		t.Fatalf("unexpected page %v", page)
	}
	item := page["items"].([]interface{})[0].(map[string]interface{})
	if item["state"] != "success" || item["finished_at"] == nil {
		t.Errorf("unexpected item %v", item)
	}
	if _, err := time.Parse(time.RFC3339, item["started_at"].(string)); err != nil {
		t.Errorf("started_at not RFC3339: %v", item["started_at"])
	}
}

func TestGraphQL_InvalidBody(t *testing.T) {
	env := setup(t, false)
	expectError(t, doJSON(t, env.app, "POST", "/graphql", `{}`), 400, "bad_request")
}

// ---- Middleware ----

func TestETagNotModified(t *testing.T) {
	env := setup(t, false)
	first := get(t, env.app, "/v1/links?lat=46&lon=2")
	etag := first.header.Get("ETag")
	if etag == "" {
		t.Fatal("no ETag")
	}
	req := httptest.NewRequest("GET", "/v1/links?lat=46&lon=2", nil)
	req.Header.Set("If-None-Match", etag)
	if r := send(t, env.app, req); r.status != 304 {
		t.Errorf("expected 304, got %d", r.status)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := setup(t, false)
	r := get(t, env.app, "/v1/health")
	if r.header.Get("X-Content-Type-Options") != "nosniff" || r.header.Get("X-Request-ID") == "" {
		t.Errorf("missing headers: %v", r.header)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := setup(t, false)
	expectError(t, get(t, env.app, "/v1/nope"), 404, "not_found")
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	env := setup(t, false)
	expectError(t, get(t, env.app, "/ws"), 426, "upgrade_required")
}

func TestRateLimit(t *testing.T) {
	app := handler.NewApp(handler.AppConfig{RatePerMinute: 2})
	app.Get("/v1/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	for i := 0; i < 2; i++ {
		if r := get(t, app, "/v1/ping"); r.status != 200 {
			t.Fatalf("request %d: %d", i, r.status)
		}
	}
	expectError(t, get(t, app, "/v1/ping"), 429, "rate_limited")
	if r := get(t, app, "/v1/health"); r.status == 429 {
		t.Error("health check was rate limited")
	}
}
