package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/ports"
	"github.com/samirrijal/eudrsat/internal/core/usecases"
)

// Activity names, as registered on the worker.
const (
	ActivityRecordCycle = "RecordCycle"
	ActivityRenderPair  = "RenderPair"
	ActivityStaticPair  = "StaticPair"
)

// DefaultMaxInline is the largest image carried inline in an activity
// result. Temporal rejects payloads over 2 MiB and a pair holds two images.
const DefaultMaxInline = 512 << 10

// defaultParkTTL is how long parked images stay in the cache, in seconds.
const defaultParkTTL = 3600

// ImageryActivities holds the activity implementations for ImageryWorkflow.
// Cycles, Events and Cache may be nil. Without a cache, an image larger
// than MaxInline fails the render.
type ImageryActivities struct {
	Processor ports.ProcessingClient
	Static    ports.StaticTileSource
	Cycles    ports.CycleRepository
	Events    ports.EventPublisher
	Cache     ports.CacheService
	MaxInline int
}

// RenderRequest describes both slots of an authenticated render.
type RenderRequest struct {
	CycleID string
	Before  domain.ImageryRequest
	Now     domain.ImageryRequest
	// CacheTTL is how long parked images are kept, in seconds.
	CacheTTL int
}

// StaticRequest describes both slots of a static-tile pair.
type StaticRequest struct {
	Bounds      domain.Bounds
	Zoom        int
	BeforeLabel string
	NowLabel    string
}

// Pair is a before/now image pair.
type Pair struct {
	Before domain.ImageSource
	Now    domain.ImageSource
}

// RenderPair exchanges credentials for a token and renders both slots. The
// token never leaves the activity. Auth failures are not retried.
func (a *ImageryActivities) RenderPair(ctx context.Context, req RenderRequest) (Pair, error) {
	if a.Processor == nil {
		return Pair{}, temporal.NewNonRetryableApplicationError("processing client not configured", "NotConfigured", nil)
	}
	tok, err := a.Processor.Token(ctx)
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			return Pair{}, temporal.NewNonRetryableApplicationError(authErr.Error(), "AuthError", err)
		}
		return Pair{}, err
	}

	strategy := usecases.NewProcessingStrategy(a.Processor, tok)
	var pair Pair
	for _, slot := range []struct {
		name string
		req  domain.ImageryRequest
		dst  *domain.ImageSource
	}{
		{"before", req.Before, &pair.Before},
		{"now", req.Now, &pair.Now},
	} {
		src, err := strategy.Build(ctx, slot.req)
		if err != nil {
			return Pair{}, fmt.Errorf("render %s: %w", slot.req.Label, err)
		}
		if *slot.dst, err = a.park(ctx, req, slot.name, src); err != nil {
			return Pair{}, err
		}
	}
	return pair, nil
}

// park moves image bytes above MaxInline into the cache and returns a
// SourceCached reference in their place.
func (a *ImageryActivities) park(ctx context.Context, req RenderRequest, slot string, src domain.ImageSource) (domain.ImageSource, error) {
	limit := a.MaxInline
	if limit <= 0 {
		limit = DefaultMaxInline
	}
	if len(src.Data) <= limit {
		return src, nil
	}
	if a.Cache == nil {
		msg := fmt.Sprintf("%s image is %d bytes, over the %d byte inline limit, and no cache is configured", slot, len(src.Data), limit)
		return domain.ImageSource{}, temporal.NewNonRetryableApplicationError(msg, "PayloadTooLarge", nil)
	}

	ttl := req.CacheTTL
	if ttl <= 0 {
		ttl = defaultParkTTL
	}
	key := "imagery:cycle:" + req.CycleID + ":" + slot
	if err := a.Cache.Set(ctx, key, src.Data, ttl); err != nil {
		return domain.ImageSource{}, fmt.Errorf("park %s image: %w", slot, err)
	}
	src.Kind, src.Data, src.CacheKey = domain.SourceCached, nil, key
	return src, nil
}

// StaticPair builds both slots from static tiles. It cannot fail for valid
// bounds.
func (a *ImageryActivities) StaticPair(ctx context.Context, req StaticRequest) (Pair, error) {
	strategy := usecases.NewStaticStrategy(a.Static, req.Zoom)
	before, err := strategy.Build(ctx, domain.ImageryRequest{Bounds: req.Bounds, Label: req.BeforeLabel})
	if err != nil {
		return Pair{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidGeometry", err)
	}
	now, err := strategy.Build(ctx, domain.ImageryRequest{Bounds: req.Bounds, Label: req.NowLabel})
	if err != nil {
		return Pair{}, temporal.NewNonRetryableApplicationError(err.Error(), "InvalidGeometry", err)
	}
	return Pair{Before: before, Now: now}, nil
}

// LoadParked replaces SourceCached references in res with the parked bytes.
func LoadParked(ctx context.Context, cache ports.CacheService, res *domain.ImageryResult) error {
	for _, src := range []*domain.ImageSource{res.Before, res.Now} {
		if src == nil || src.Kind != domain.SourceCached {
			continue
		}
		if cache == nil {
			return fmt.Errorf("image %s is parked in the cache but no cache is configured", src.CacheKey)
		}
		data, err := cache.Get(ctx, src.CacheKey)
		if err != nil {
			return fmt.Errorf("load parked image %s: %w", src.CacheKey, err)
		}
		src.Kind, src.Data, src.CacheKey = domain.SourceBytes, data, ""
	}
	return nil
}

// RecordCycle journals a cycle transition and publishes it. A cycle with a
// terminal state finishes the journal row; any other state creates it.
func (a *ImageryActivities) RecordCycle(ctx context.Context, c domain.FetchCycle) error {
	if a.Cycles != nil {
		var err error
		if c.State.Terminal() {
			err = a.Cycles.Finish(ctx, &c)
		} else {
			err = a.Cycles.Create(ctx, &c)
		}
		if err != nil {
			return fmt.Errorf("journal cycle %s: %w", c.ID, err)
		}
	}
	if a.Events != nil {
		ev := &domain.CycleEvent{
			CycleID:   c.ID,
			SessionID: c.SessionID,
			State:     c.State,
			Strategy:  c.Strategy,
			Error:     c.Error,
			Time:      time.Now().UTC(),
		}
		if err := a.Events.PublishCycleEvent(ctx, ev); err != nil {
			slog.WarnContext(ctx, "publish cycle event failed", "cycle_id", c.ID, "error", err)
		}
	}
	return nil
}
