package usecases_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/pkg/geospatial"
)

// --- Mock StaticTileSource ---

type fakeStatic struct{}

func (fakeStatic) TileImage(b domain.Bounds, zoom int, label string) domain.ImageSource {
	t := geospatial.CenterTile(b, zoom)
	return domain.ImageSource{
		Kind:     domain.SourceURL,
		URL:      fmt.Sprintf("https://tiles.test/tile/%d/%d/%d", t.Zoom, t.Y, t.X),
		Label:    label,
		Strategy: domain.StrategyStatic,
		Tile:     &t,
	}
}

// --- Mock ProcessingClient ---

type mockProcessor struct {
	mu        sync.Mutex
	tokenFn   func(ctx context.Context) (domain.AccessToken, error)
	processFn func(ctx context.Context, tok domain.AccessToken, req domain.ImageryRequest) (domain.ImageSource, error)
	tokens    int
	requests  []domain.ImageryRequest
}

func (m *mockProcessor) Token(ctx context.Context) (domain.AccessToken, error) {
	m.mu.Lock()
	m.tokens++
	m.mu.Unlock()
	if m.tokenFn != nil {
		return m.tokenFn(ctx)
	}
	return domain.AccessToken{Value: "tok"}, nil
}

func (m *mockProcessor) Process(ctx context.Context, tok domain.AccessToken, req domain.ImageryRequest) (domain.ImageSource, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.processFn != nil {
		return m.processFn(ctx, tok, req)
	}
	return domain.ImageSource{
		Kind:        domain.SourceBytes,
		Data:        []byte("png:" + req.Label),
		ContentType: "image/png",
		Label:       req.Label,
		Strategy:    domain.StrategyAuthenticated,
	}, nil
}

func (m *mockProcessor) calls() (tokens, processes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens, len(m.requests)
}

// --- Recording Presenter ---

type recordingPresenter struct {
	mu       sync.Mutex
	events   []string
	controls []bool
	rendered [][2]domain.ImageSource
	links    []domain.CopernicusLinks
	errors   []string
}

func (p *recordingPresenter) SetControlsEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.controls = append(p.controls, enabled)
	p.events = append(p.events, fmt.Sprintf("controls:%t", enabled))
}

func (p *recordingPresenter) ShowLoading() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "loading")
}

func (p *recordingPresenter) Render(before, now domain.ImageSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rendered = append(p.rendered, [2]domain.ImageSource{before, now})
	p.events = append(p.events, "render")
}

func (p *recordingPresenter) ShowLinks(links domain.CopernicusLinks) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.links = append(p.links, links)
	p.events = append(p.events, "links")
}

func (p *recordingPresenter) ShowError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errors = append(p.errors, msg)
	p.events = append(p.events, "error")
}

func (p *recordingPresenter) lastControls() (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.controls) == 0 {
		return false, false
	}
	return p.controls[len(p.controls)-1], true
}

// --- Mock CycleRepository ---

type mockCycleRepo struct {
	mu          sync.Mutex
	created     []domain.FetchCycle
	finished    []domain.FetchCycle
	getByIDFn   func(ctx context.Context, id string) (*domain.FetchCycle, error)
	listFn      func(ctx context.Context, sessionID string, offset, limit int) ([]domain.FetchCycle, int, error)
	createError error
}

func (m *mockCycleRepo) Create(ctx context.Context, c *domain.FetchCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *c)
	return m.createError
}

func (m *mockCycleRepo) Finish(ctx context.Context, c *domain.FetchCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, *c)
	return nil
}

func (m *mockCycleRepo) GetByID(ctx context.Context, id string) (*domain.FetchCycle, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockCycleRepo) ListRecent(ctx context.Context, sessionID string, offset, limit int) ([]domain.FetchCycle, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, sessionID, offset, limit)
	}
	return nil, 0, nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	mu      sync.Mutex
	events  []domain.CycleEvent
	release chan struct{} // when set, every publish blocks until it is closed
}

func (m *mockPublisher) PublishCycleEvent(ctx context.Context, ev *domain.CycleEvent) error {
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockPublisher) published() []domain.CycleEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CycleEvent(nil), m.events...)
}

// --- In-memory CacheService ---

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, fmt.Errorf("miss")
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}
