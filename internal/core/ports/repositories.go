package ports

import (
	"context"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

// CycleRepository journals imagery fetch cycles.
type CycleRepository interface {
	Create(ctx context.Context, cycle *domain.FetchCycle) error
	Finish(ctx context.Context, cycle *domain.FetchCycle) error
	GetByID(ctx context.Context, id string) (*domain.FetchCycle, error)
	ListRecent(ctx context.Context, sessionID string, offset, limit int) ([]domain.FetchCycle, int, error)
}
