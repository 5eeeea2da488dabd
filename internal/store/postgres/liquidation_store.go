package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// LiquidationStore implements domain.LiquidationStore using PostgreSQL.
type LiquidationStore struct {
	pool *pgxpool.Pool
}

// NewLiquidationStore creates a new LiquidationStore backed by the given
// connection pool.
func NewLiquidationStore(pool *pgxpool.Pool) *LiquidationStore {
	return &LiquidationStore{pool: pool}
}

const liquidationSelectCols = `id, caller, sell_asset, buy_asset,
	amount_in::text, quoted_out::text, min_out::text, amount_out::text, executed_at`

// Insert records one executed liquidation.
func (s *LiquidationStore) Insert(ctx context.Context, rec domain.LiquidationRecord) error {
	const query = `
		INSERT INTO liquidations (
			id, caller, sell_asset, buy_asset,
			amount_in, quoted_out, min_out, amount_out, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Caller.Hex(), rec.SellAsset.Hex(), rec.BuyAsset.Hex(),
		rec.AmountIn.String(), rec.QuotedOut.String(),
		rec.MinOut.String(), rec.AmountOut.String(), rec.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert liquidation: %w", err)
	}
	return nil
}

// ListRecent returns the newest liquidations, most recent first.
func (s *LiquidationStore) ListRecent(ctx context.Context, limit int) ([]domain.LiquidationRecord, error) {
	query := `SELECT ` + liquidationSelectCols + ` FROM liquidations ORDER BY executed_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent liquidations: %w", err)
	}
	defer rows.Close()
	return scanLiquidationRows(rows)
}

// ListBefore returns liquidations executed strictly before the given time,
// oldest first (for archiving).
func (s *LiquidationStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.LiquidationRecord, error) {
	query := `SELECT ` + liquidationSelectCols + ` FROM liquidations WHERE executed_at < $1 ORDER BY executed_at ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list liquidations before: %w", err)
	}
	defer rows.Close()
	return scanLiquidationRows(rows)
}

// DeleteBefore deletes liquidations executed before the given time. Returns
// the number deleted.
func (s *LiquidationStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM liquidations WHERE executed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete liquidations before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanLiquidationRows(rows pgx.Rows) ([]domain.LiquidationRecord, error) {
	var recs []domain.LiquidationRecord
	for rows.Next() {
		var (
			rec                                    domain.LiquidationRecord
			caller, sell, buy                      string
			amountIn, quotedOut, minOut, amountOut string
		)
		if err := rows.Scan(
			&rec.ID, &caller, &sell, &buy,
			&amountIn, &quotedOut, &minOut, &amountOut, &rec.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan liquidation: %w", err)
		}
		rec.Caller = common.HexToAddress(caller)
		rec.SellAsset = common.HexToAddress(sell)
		rec.BuyAsset = common.HexToAddress(buy)

		var err error
		if rec.AmountIn, err = parseBig(amountIn); err != nil {
			return nil, err
		}
		if rec.QuotedOut, err = parseBig(quotedOut); err != nil {
			return nil, err
		}
		if rec.MinOut, err = parseBig(minOut); err != nil {
			return nil, err
		}
		if rec.AmountOut, err = parseBig(amountOut); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

var _ domain.LiquidationStore = (*LiquidationStore)(nil)
