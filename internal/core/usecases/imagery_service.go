package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/ports"
	"github.com/samirrijal/eudrsat/internal/pkg/geospatial"
	"github.com/samirrijal/eudrsat/internal/pkg/metrics"
	"github.com/samirrijal/eudrsat/internal/pkg/portals"
	"github.com/samirrijal/eudrsat/internal/pkg/telemetry"
)

// Slot labels shown under each image.
const (
	LabelBefore         = "Before 2021"
	LabelNow            = "Recent"
	LabelBeforeFallback = "Before (approximate)"
	LabelNowFallback    = "Recent (approximate)"
)

// publishTimeout bounds one cycle-event publish. Publishing runs off the
// fetch path, so a broker outage delays events, not images.
const publishTimeout = 2 * time.Second

// ImagerySettings tunes the fetch orchestrator.
type ImagerySettings struct {
	// Authenticated selects the processing API as primary strategy.
	Authenticated bool
	// Parallel fetches both slots concurrently; rendering still waits for both.
	Parallel     bool
	BeforeWindow domain.Period
	RecentMonths int
	Width        int
	Height       int
	Format       string
	PrimaryZoom  int
	FallbackZoom int
	// CacheTTL is in seconds; zero disables caching of processed images.
	CacheTTL      int
	SceneMaxCloud float64
}

// ImageryDeps are the collaborators of ImageryService. Cycles, Events and
// Cache may be nil.
type ImageryDeps struct {
	Static    ports.StaticTileSource
	Processor ports.ProcessingClient
	Links     portals.Generator
	Sessions  *SessionStore
	Cycles    ports.CycleRepository
	Events    ports.EventPublisher
	Cache     ports.CacheService
}

// ImageryService runs fetch cycles: it acquires a before/now image pair for
// some bounds, degrading to static tiles when the processing API fails.
type ImageryService struct {
	deps ImageryDeps
	cfg  ImagerySettings
	now  func() time.Time

	publishing sync.WaitGroup
}

// NewImageryService creates a new ImageryService.
func NewImageryService(deps ImageryDeps, cfg ImagerySettings) *ImageryService {
	if deps.Sessions == nil {
		deps.Sessions = NewSessionStore()
	}
	if cfg.RecentMonths <= 0 {
		cfg.RecentMonths = 3
	}
	if cfg.Width <= 0 {
		cfg.Width = 512
	}
	if cfg.Height <= 0 {
		cfg.Height = 512
	}
	if cfg.Format == "" {
		cfg.Format = "image/png"
	}
	if cfg.PrimaryZoom <= 0 {
		cfg.PrimaryZoom = 14
	}
	if cfg.FallbackZoom <= 0 {
		cfg.FallbackZoom = 13
	}
	if cfg.BeforeWindow.From.IsZero() {
		cfg.BeforeWindow = domain.Period{From: domain.NewDate(2020, 6, 1), To: domain.NewDate(2020, 12, 30)}
	}
	return &ImageryService{deps: deps, cfg: cfg, now: time.Now}
}

// Wait blocks until every cycle event handed to the broker has been
// published or has timed out.
func (s *ImageryService) Wait() { s.publishing.Wait() }

// Sessions exposes the session store.
func (s *ImageryService) Sessions() *SessionStore { return s.deps.Sessions }

// Settings returns the effective settings.
func (s *ImageryService) Settings() ImagerySettings { return s.cfg }

// Windows returns the before and now date windows for a cycle started at t.
func (s *ImageryService) Windows(t time.Time) (before, now domain.Period) {
	today := domain.DateOf(t)
	return s.cfg.BeforeWindow, domain.Period{
		From: domain.DateOf(today.AddDate(0, -s.cfg.RecentMonths, 0)),
		To:   today,
	}
}

func (s *ImageryService) usesProcessor() bool {
	return s.cfg.Authenticated && s.deps.Processor != nil
}

// Fetch runs one fetch cycle for bounds on the given session and drives ui
// through it. ui may be nil. Invalid bounds fail the cycle before any
// network call and are returned as the error; every other outcome is in the
// result.
func (s *ImageryService) Fetch(ctx context.Context, sessionID string, bounds domain.Bounds, ui ports.Presenter) (*domain.ImageryResult, error) {
	if ui == nil {
		ui = NoopPresenter{}
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	result := &domain.ImageryResult{
		CycleID:   uuid.NewString(),
		SessionID: sessionID,
		Bounds:    bounds,
		State:     domain.StateIdle,
	}
	log := slog.With("session_id", sessionID, "cycle_id", result.CycleID)

	if err := bounds.Validate(); err != nil {
		result.State = domain.StateFailed
		result.Error = err.Error()
		metrics.FetchCycles.WithLabelValues(string(domain.StateFailed)).Inc()
		ui.ShowError(err.Error())
		log.Info("fetch rejected", "error", err)
		return result, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanFetchCycle, trace.WithAttributes(
		telemetry.AttrSession.String(sessionID),
		telemetry.AttrCycle.String(result.CycleID),
	))
	start := s.now()
	gen := s.deps.Sessions.Begin(sessionID, result.CycleID, bounds)

	result.State = domain.StateLoading
	cycle := &domain.FetchCycle{
		ID:        result.CycleID,
		SessionID: sessionID,
		Bounds:    bounds,
		State:     domain.StateLoading,
		StartedAt: start,
	}
	s.journalStart(ctx, cycle)
	loading := s.publish(ctx, result, nil)

	ui.SetControlsEnabled(false)
	ui.ShowLoading()

	defer func() {
		if s.deps.Sessions.Finish(sessionID, gen, result.State) {
			ui.SetControlsEnabled(true)
		} else {
			result.Stale = true
		}

		finished := s.now()
		cycle.State, cycle.Strategy, cycle.Error, cycle.FinishedAt = result.State, result.Strategy, result.Error, &finished
		s.journalFinish(ctx, cycle)
		s.publish(ctx, result, loading)

		metrics.FetchCycles.WithLabelValues(string(result.State)).Inc()
		metrics.FetchCycleDuration.WithLabelValues(string(result.State)).Observe(finished.Sub(start).Seconds())
		span.SetAttributes(
			telemetry.AttrState.String(string(result.State)),
			telemetry.AttrStrategy.String(string(result.Strategy)),
		)
		if result.State == domain.StateFailed {
			span.SetStatus(codes.Error, result.Error)
		}
		span.End()
		log.Info("fetch cycle finished",
			"state", result.State,
			"strategy", result.Strategy,
			"stale", result.Stale,
			"duration", finished.Sub(start),
		)
	}()

	result.Links = s.deps.Links.ForBounds(bounds)
	ui.ShowLinks(result.Links)

	before, now, err := s.acquire(ctx, bounds, start)
	switch {
	case err == nil:
		result.State = domain.StateSuccess
		result.Strategy = before.Strategy
	case ctx.Err() != nil:
		result.State = domain.StateFailed
		result.Error = ctx.Err().Error()
		if s.deps.Sessions.IsCurrent(sessionID, gen) {
			ui.ShowError("image loading was cancelled")
		}
		return result, nil
	default:
		log.Warn("processing API failed, falling back to static tiles", "error", err)
		result.State = domain.StateFallback
		result.Strategy = domain.StrategyStatic
		result.Error = err.Error()
		before, now = s.fallbackPair(ctx, bounds, start)
		if s.deps.Sessions.IsCurrent(sessionID, gen) {
			ui.ShowError("An error occurred while loading the images; showing approximate imagery instead.")
		}
	}

	result.Before, result.Now = &before, &now
	if s.deps.Sessions.IsCurrent(sessionID, gen) {
		ui.Render(before, now)
	}
	return result, nil
}

// primary returns the strategy a cycle starts with. The processing strategy
// carries a token fetched for this call only.
func (s *ImageryService) primary(ctx context.Context) (ports.ImageryStrategy, error) {
	if !s.usesProcessor() {
		return NewStaticStrategy(s.deps.Static, s.cfg.PrimaryZoom), nil
	}
	tok, err := s.deps.Processor.Token(ctx)
	if err != nil {
		return nil, err
	}
	return WithImageCache(NewProcessingStrategy(s.deps.Processor, tok), s.deps.Cache, s.cfg.CacheTTL), nil
}

func (s *ImageryService) fallback() ports.ImageryStrategy {
	return NewStaticStrategy(s.deps.Static, s.cfg.FallbackZoom)
}

// acquire returns the before/now pair from the primary strategy.
func (s *ImageryService) acquire(ctx context.Context, bounds domain.Bounds, at time.Time) (domain.ImageSource, domain.ImageSource, error) {
	strategy, err := s.primary(ctx)
	if err != nil {
		return domain.ImageSource{}, domain.ImageSource{}, err
	}
	beforeWin, nowWin := s.Windows(at)
	return s.buildPair(ctx, strategy,
		s.request(bounds, beforeWin, LabelBefore),
		s.request(bounds, nowWin, LabelNow),
	)
}

// fallbackPair renders both slots as static tiles at the fallback zoom. The
// bounds were validated before the cycle started, so it cannot fail.
func (s *ImageryService) fallbackPair(ctx context.Context, bounds domain.Bounds, at time.Time) (domain.ImageSource, domain.ImageSource) {
	beforeWin, nowWin := s.Windows(at)
	before, now, err := s.buildPair(ctx, s.fallback(),
		s.request(bounds, beforeWin, LabelBeforeFallback),
		s.request(bounds, nowWin, LabelNowFallback),
	)
	if err != nil {
		slog.ErrorContext(ctx, "static fallback failed", "error", err)
	}
	return before, now
}

// buildPair builds both slots with strategy. Only the processing strategy
// does I/O, so only it runs the slots concurrently when Parallel is set.
func (s *ImageryService) buildPair(ctx context.Context, strategy ports.ImageryStrategy, beforeReq, nowReq domain.ImageryRequest) (domain.ImageSource, domain.ImageSource, error) {
	var before, now domain.ImageSource
	if !s.cfg.Parallel || strategy.Name() == domain.StrategyStatic {
		var err error
		if before, err = strategy.Build(ctx, beforeReq); err != nil {
			return domain.ImageSource{}, domain.ImageSource{}, err
		}
		if now, err = strategy.Build(ctx, nowReq); err != nil {
			return domain.ImageSource{}, domain.ImageSource{}, err
		}
		return before, now, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		before, err = strategy.Build(gctx, beforeReq)
		return err
	})
	g.Go(func() error {
		var err error
		now, err = strategy.Build(gctx, nowReq)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.ImageSource{}, domain.ImageSource{}, err
	}
	return before, now, nil
}

func (s *ImageryService) request(bounds domain.Bounds, period domain.Period, label string) domain.ImageryRequest {
	return domain.ImageryRequest{
		Bounds: bounds,
		Period: period,
		Width:  s.cfg.Width,
		Height: s.cfg.Height,
		Format: s.cfg.Format,
		Label:  label,
	}
}

// Scene returns a single image around a point for a date range.
func (s *ImageryService) Scene(ctx context.Context, q domain.SceneQuery) (*domain.SceneResult, error) {
	bounds, err := geospatial.BoundsFromPoint(q.Lat, q.Lon)
	if err != nil {
		return nil, err
	}
	if err := q.Period.Validate(); err != nil {
		return nil, err
	}
	cloud := s.cfg.SceneMaxCloud
	if q.MaxCloudCoverage != nil {
		cloud = *q.MaxCloudCoverage
	}
	if cloud < 0 || cloud > 100 {
		return nil, fmt.Errorf("%w: cloud coverage %g outside [0, 100]", domain.ErrInvalidParameter, cloud)
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanScene)
	defer span.End()

	res := &domain.SceneResult{
		Location:         domain.GeoPoint{Lat: q.Lat, Lon: q.Lon},
		Bounds:           bounds,
		Period:           q.Period,
		MaxCloudCoverage: cloud,
	}

	req := s.request(bounds, q.Period, "Scene")
	req.MaxCloudCoverage = &cloud

	strategy, err := s.primary(ctx)
	if err == nil {
		var img domain.ImageSource
		if img, err = strategy.Build(ctx, req); err == nil {
			res.State = domain.StateSuccess
			res.Image = img
			return res, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	slog.WarnContext(ctx, "scene lookup fell back to static tile", "error", err)
	span.SetStatus(codes.Error, err.Error())
	res.State = domain.StateFallback
	res.Error = err.Error()
	req.Label = "Scene (approximate)"
	if res.Image, err = s.fallback().Build(ctx, req); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *ImageryService) journalStart(ctx context.Context, c *domain.FetchCycle) {
	if s.deps.Cycles == nil {
		return
	}
	if err := s.deps.Cycles.Create(ctx, c); err != nil {
		slog.WarnContext(ctx, "journal cycle start failed", "cycle_id", c.ID, "error", err)
	}
}

func (s *ImageryService) journalFinish(ctx context.Context, c *domain.FetchCycle) {
	if s.deps.Cycles == nil {
		return
	}
	// The request context may already be done; the journal must still close.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.deps.Cycles.Finish(ctx, c); err != nil {
		slog.WarnContext(ctx, "journal cycle finish failed", "cycle_id", c.ID, "error", err)
	}
}

// publish hands the event for r's current state to the broker in the
// background and returns a channel closed once it is done. When after is
// set the publish waits for it first, so one cycle's events stay ordered.
func (s *ImageryService) publish(ctx context.Context, r *domain.ImageryResult, after <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	if s.deps.Events == nil {
		close(done)
		return done
	}
	ev := &domain.CycleEvent{
		CycleID:   r.CycleID,
		SessionID: r.SessionID,
		State:     r.State,
		Strategy:  r.Strategy,
		Error:     r.Error,
		Time:      s.now().UTC(),
	}
	ctx = context.WithoutCancel(ctx)

	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		defer close(done)
		if after != nil {
			<-after
		}
		ctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		if err := s.deps.Events.PublishCycleEvent(ctx, ev); err != nil {
			metrics.CyclePublishErrors.Inc()
			slog.WarnContext(ctx, "publish cycle event failed", "cycle_id", ev.CycleID, "state", ev.State, "error", err)
		}
	}()
	return done
}

// NoopPresenter discards every UI call.
type NoopPresenter struct{}

func (NoopPresenter) SetControlsEnabled(bool)          {}
func (NoopPresenter) ShowLoading()                     {}
func (NoopPresenter) Render(_, _ domain.ImageSource)   {}
func (NoopPresenter) ShowLinks(domain.CopernicusLinks) {}
func (NoopPresenter) ShowError(string)                 {}
