package ports

import (
	"context"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

// ImageryStrategy turns an imagery request into an image source.
type ImageryStrategy interface {
	Name() domain.Strategy
	Build(ctx context.Context, req domain.ImageryRequest) (domain.ImageSource, error)
}

// StaticTileSource is the unauthenticated tile strategy. Building a tile URL
// cannot fail for valid bounds, so zoom is chosen by the caller.
type StaticTileSource interface {
	TileImage(bounds domain.Bounds, zoom int, label string) domain.ImageSource
}

// ProcessingClient is the authenticated imagery-processing backend.
type ProcessingClient interface {
	Token(ctx context.Context) (domain.AccessToken, error)
	Process(ctx context.Context, token domain.AccessToken, req domain.ImageryRequest) (domain.ImageSource, error)
}

// Presenter is the UI collaborator driven by the fetch orchestrator.
type Presenter interface {
	SetControlsEnabled(enabled bool)
	ShowLoading()
	Render(before, now domain.ImageSource)
	ShowLinks(links domain.CopernicusLinks)
	ShowError(message string)
}

// EventPublisher publishes fetch-cycle events to a message broker.
type EventPublisher interface {
	PublishCycleEvent(ctx context.Context, event *domain.CycleEvent) error
}

// EventSubscriber consumes fetch-cycle events from a message broker.
type EventSubscriber interface {
	SubscribeCycleEvents(ctx context.Context, sessionID string, handler func(ctx context.Context, event *domain.CycleEvent) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
