package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

// CycleRepo implements ports.CycleRepository.
type CycleRepo struct {
	db *DB
}

func NewCycleRepo(db *DB) *CycleRepo {
	return &CycleRepo{db: db}
}

const cycleColumns = `
	id::text, session_id, west, south, east, north,
	state, COALESCE(strategy, ''), COALESCE(error, ''), started_at, finished_at`

func (r *CycleRepo) Create(ctx context.Context, c *domain.FetchCycle) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO fetch_cycles (id, session_id, west, south, east, north, area, state, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, ST_MakeEnvelope($3, $4, $5, $6, 4326), $7, $8)
	`, c.ID, c.SessionID, c.Bounds.West, c.Bounds.South, c.Bounds.East, c.Bounds.North,
		string(c.State), c.StartedAt)
	if err != nil {
		return fmt.Errorf("insert cycle: %w", err)
	}
	return nil
}

func (r *CycleRepo) Finish(ctx context.Context, c *domain.FetchCycle) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE fetch_cycles
		SET state = $2, strategy = $3, error = $4, finished_at = $5
		WHERE id = $1
	`, c.ID, string(c.State), nilIfEmpty(string(c.Strategy)), nilIfEmpty(c.Error), c.FinishedAt)
	if err != nil {
		return fmt.Errorf("finish cycle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish cycle %s: %w", c.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns domain.ErrNotFound for unknown and malformed ids.
func (r *CycleRepo) GetByID(ctx context.Context, id string) (*domain.FetchCycle, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	row := r.db.Pool.QueryRow(ctx, `SELECT `+cycleColumns+` FROM fetch_cycles WHERE id = $1`, id)
	c, err := scanCycle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListRecent returns cycles newest first. An empty sessionID lists all.
func (r *CycleRepo) ListRecent(ctx context.Context, sessionID string, offset, limit int) ([]domain.FetchCycle, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM fetch_cycles WHERE ($1 = '' OR session_id = $1)
	`, sessionID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+cycleColumns+`
		FROM fetch_cycles
		WHERE ($1 = '' OR session_id = $1)
		ORDER BY started_at DESC
		OFFSET $2 LIMIT $3
	`, sessionID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var cycles []domain.FetchCycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, 0, err
		}
		cycles = append(cycles, *c)
	}
	return cycles, total, rows.Err()
}

func scanCycle(row pgx.Row) (*domain.FetchCycle, error) {
	var (
		c        domain.FetchCycle
		state    string
		strategy string
	)
	if err := row.Scan(
		&c.ID, &c.SessionID,
		&c.Bounds.West, &c.Bounds.South, &c.Bounds.East, &c.Bounds.North,
		&state, &strategy, &c.Error, &c.StartedAt, &c.FinishedAt,
	); err != nil {
		return nil, err
	}
	c.State = domain.FetchState(state)
	c.Strategy = domain.Strategy(strategy)
	return &c, nil
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
