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

// RouteStore implements domain.RouteStore using PostgreSQL.
type RouteStore struct {
	pool *pgxpool.Pool
}

// NewRouteStore creates a new RouteStore backed by the given connection pool.
func NewRouteStore(pool *pgxpool.Pool) *RouteStore {
	return &RouteStore{pool: pool}
}

// UpsertRoute inserts or replaces the route for its (caller, sell_asset) key.
func (s *RouteStore) UpsertRoute(ctx context.Context, route domain.Route) error {
	const query = `
		INSERT INTO routes (
			caller, sell_asset, buy_asset, forward_path, reverse_path,
			slippage, last_triggered_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (caller, sell_asset) DO UPDATE SET
			buy_asset = EXCLUDED.buy_asset,
			forward_path = EXCLUDED.forward_path,
			reverse_path = EXCLUDED.reverse_path,
			slippage = EXCLUDED.slippage,
			last_triggered_at = EXCLUDED.last_triggered_at,
			created_at = EXCLUDED.created_at`

	var triggered *time.Time
	if !route.LastTriggeredAt.IsZero() {
		t := route.LastTriggeredAt
		triggered = &t
	}
	_, err := s.pool.Exec(ctx, query,
		route.Caller.Hex(), route.SellAsset.Hex(), route.BuyAsset.Hex(),
		route.ForwardPath, route.ReversePath,
		route.Slippage.BigInt().String(), triggered, route.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert route: %w", err)
	}
	return nil
}

// DeleteRoute removes the route for (caller, sellAsset).
func (s *RouteStore) DeleteRoute(ctx context.Context, caller, sellAsset common.Address) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM routes WHERE caller = $1 AND sell_asset = $2`,
		caller.Hex(), sellAsset.Hex(),
	)
	if err != nil {
		return fmt.Errorf("postgres: delete route: %w", err)
	}
	return nil
}

// ListRoutes returns every persisted route.
func (s *RouteStore) ListRoutes(ctx context.Context) ([]domain.Route, error) {
	const query = `
		SELECT caller, sell_asset, buy_asset, forward_path, reverse_path,
			slippage::text, last_triggered_at, created_at
		FROM routes ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list routes: %w", err)
	}
	defer rows.Close()

	routes, err := scanRouteRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan routes: %w", err)
	}
	return routes, nil
}

func scanRouteRows(rows pgx.Rows) ([]domain.Route, error) {
	var routes []domain.Route
	for rows.Next() {
		var (
			route                   domain.Route
			caller, sell, buy, frac string
			triggered               *time.Time
		)
		if err := rows.Scan(
			&caller, &sell, &buy, &route.ForwardPath, &route.ReversePath,
			&frac, &triggered, &route.CreatedAt,
		); err != nil {
			return nil, err
		}
		route.Caller = common.HexToAddress(caller)
		route.SellAsset = common.HexToAddress(sell)
		route.BuyAsset = common.HexToAddress(buy)

		n, err := parseBig(frac)
		if err != nil {
			return nil, err
		}
		route.Slippage, err = domain.NewFraction(n)
		if err != nil {
			return nil, err
		}
		if triggered != nil {
			route.LastTriggeredAt = *triggered
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

// UpdateTriggeredAt stamps the route's last execution time.
func (s *RouteStore) UpdateTriggeredAt(ctx context.Context, caller, sellAsset common.Address, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE routes SET last_triggered_at = $3 WHERE caller = $1 AND sell_asset = $2`,
		caller.Hex(), sellAsset.Hex(), at,
	)
	if err != nil {
		return fmt.Errorf("postgres: update triggered_at: %w", err)
	}
	return nil
}

// UpsertCaller inserts or replaces a caller activation record.
func (s *RouteStore) UpsertCaller(ctx context.Context, state domain.CallerState) error {
	const query = `
		INSERT INTO callers (caller, active, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (caller) DO UPDATE SET
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at`
	_, err := s.pool.Exec(ctx, query, state.Caller.Hex(), state.Active, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert caller: %w", err)
	}
	return nil
}

// ListCallers returns every persisted caller activation record.
func (s *RouteStore) ListCallers(ctx context.Context) ([]domain.CallerState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT caller, active, updated_at FROM callers ORDER BY caller`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list callers: %w", err)
	}
	defer rows.Close()

	var states []domain.CallerState
	for rows.Next() {
		var (
			state  domain.CallerState
			caller string
		)
		if err := rows.Scan(&caller, &state.Active, &state.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan caller: %w", err)
		}
		state.Caller = common.HexToAddress(caller)
		states = append(states, state)
	}
	return states, rows.Err()
}

var _ domain.RouteStore = (*RouteStore)(nil)
