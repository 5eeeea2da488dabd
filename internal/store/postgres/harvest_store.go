package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// HarvestStore implements domain.HarvestStore using PostgreSQL.
type HarvestStore struct {
	pool *pgxpool.Pool
}

// NewHarvestStore creates a new HarvestStore backed by the given connection
// pool.
func NewHarvestStore(pool *pgxpool.Pool) *HarvestStore {
	return &HarvestStore{pool: pool}
}

const harvestSelectCols = `id, cycle, staked::text, liquidated::text, forwarded::text, executed_at`

// Insert records one completed harvest cycle.
func (s *HarvestStore) Insert(ctx context.Context, rec domain.HarvestRecord) error {
	const query = `
		INSERT INTO harvests (id, cycle, staked, liquidated, forwarded, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, string(rec.Cycle),
		rec.Staked.String(), rec.Liquidated.String(), rec.Forwarded.String(),
		rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert harvest: %w", err)
	}
	return nil
}

// ListRecent returns the newest harvest cycles, most recent first.
func (s *HarvestStore) ListRecent(ctx context.Context, limit int) ([]domain.HarvestRecord, error) {
	query := `SELECT ` + harvestSelectCols + ` FROM harvests ORDER BY executed_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent harvests: %w", err)
	}
	defer rows.Close()
	return scanHarvestRows(rows)
}

// ListBefore returns harvests executed strictly before the given time, oldest
// first (for archiving).
func (s *HarvestStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.HarvestRecord, error) {
	query := `SELECT ` + harvestSelectCols + ` FROM harvests WHERE executed_at < $1 ORDER BY executed_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list harvests before: %w", err)
	}
	defer rows.Close()
	return scanHarvestRows(rows)
}

// DeleteBefore deletes harvests executed before the given time. Returns the
// number deleted.
func (s *HarvestStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM harvests WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete harvests before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanHarvestRows(rows pgx.Rows) ([]domain.HarvestRecord, error) {
	var recs []domain.HarvestRecord
	for rows.Next() {
		var (
			rec                           domain.HarvestRecord
			cycle                         string
			staked, liquidated, forwarded string
		)
		if err := rows.Scan(&rec.ID, &cycle, &staked, &liquidated, &forwarded, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan harvest: %w", err)
		}
		rec.Cycle = domain.HarvestCycle(cycle)

		var err error
		if rec.Staked, err = parseBig(staked); err != nil {
			return nil, err
		}
		if rec.Liquidated, err = parseBig(liquidated); err != nil {
			return nil, err
		}
		if rec.Forwarded, err = parseBig(forwarded); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

var _ domain.HarvestStore = (*HarvestStore)(nil)
