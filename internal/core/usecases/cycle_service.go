package usecases

import (
	"context"
	"fmt"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/ports"
)

// CycleService reads the fetch-cycle journal.
type CycleService struct {
	cycles ports.CycleRepository
}

// NewCycleService creates a new CycleService.
func NewCycleService(cycles ports.CycleRepository) *CycleService {
	return &CycleService{cycles: cycles}
}

// GetByID returns one journalled cycle.
func (s *CycleService) GetByID(ctx context.Context, id string) (*domain.FetchCycle, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: cycle id is required", domain.ErrInvalidParameter)
	}
	return s.cycles.GetByID(ctx, id)
}

// ListRecent returns cycles newest first, optionally for one session, with
// the total count for pagination.
func (s *CycleService) ListRecent(ctx context.Context, sessionID string, offset, limit int) ([]domain.FetchCycle, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.cycles.ListRecent(ctx, sessionID, offset, limit)
}
