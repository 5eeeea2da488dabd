package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// RatioStore implements domain.RatioStore using PostgreSQL. Every save appends
// a new revision; Latest reads the most recent one.
type RatioStore struct {
	pool *pgxpool.Pool
}

// NewRatioStore creates a new RatioStore backed by the given connection pool.
func NewRatioStore(pool *pgxpool.Pool) *RatioStore {
	return &RatioStore{pool: pool}
}

// Save appends a ratio revision.
func (s *RatioStore) Save(ctx context.Context, ratios domain.SplitRatios) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO split_ratios (ratio_stake, ratio_reward, updated_at) VALUES ($1, $2, $3)`,
		ratios.StakeAsset.BigInt().String(),
		ratios.RewardAsset.BigInt().String(),
		ratios.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save ratios: %w", err)
	}
	return nil
}

// Latest returns the newest ratio revision, or domain.ErrNotFound when none
// has been saved.
func (s *RatioStore) Latest(ctx context.Context) (domain.SplitRatios, error) {
	var (
		out          domain.SplitRatios
		rStake, rRwd string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT ratio_stake::text, ratio_reward::text, updated_at
		 FROM split_ratios ORDER BY id DESC LIMIT 1`,
	).Scan(&rStake, &rRwd, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SplitRatios{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SplitRatios{}, fmt.Errorf("postgres: latest ratios: %w", err)
	}

	n, err := parseBig(rStake)
	if err != nil {
		return domain.SplitRatios{}, err
	}
	if out.StakeAsset, err = domain.NewFraction(n); err != nil {
		return domain.SplitRatios{}, fmt.Errorf("postgres: latest ratios: %w", err)
	}
	if n, err = parseBig(rRwd); err != nil {
		return domain.SplitRatios{}, err
	}
	if out.RewardAsset, err = domain.NewFraction(n); err != nil {
		return domain.SplitRatios{}, fmt.Errorf("postgres: latest ratios: %w", err)
	}
	return out, nil
}

var _ domain.RatioStore = (*RatioStore)(nil)
