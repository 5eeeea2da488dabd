package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RouteStore persists governance route state so a restarted daemon reloads it.
// The in-memory registry remains authoritative during a run.
type RouteStore interface {
	UpsertRoute(ctx context.Context, route Route) error
	DeleteRoute(ctx context.Context, caller, sellAsset common.Address) error
	ListRoutes(ctx context.Context) ([]Route, error)
	UpdateTriggeredAt(ctx context.Context, caller, sellAsset common.Address, at time.Time) error
	UpsertCaller(ctx context.Context, state CallerState) error
	ListCallers(ctx context.Context) ([]CallerState, error)
}

// RatioStore persists split ratio revisions.
type RatioStore interface {
	Save(ctx context.Context, ratios SplitRatios) error
	// Latest returns the most recently saved ratios, or ErrNotFound when
	// none have ever been saved.
	Latest(ctx context.Context) (SplitRatios, error)
}

// LiquidationStore persists executed liquidation history.
type LiquidationStore interface {
	Insert(ctx context.Context, rec LiquidationRecord) error
	ListRecent(ctx context.Context, limit int) ([]LiquidationRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]LiquidationRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// HarvestStore persists completed harvest cycle history.
type HarvestStore interface {
	Insert(ctx context.Context, rec HarvestRecord) error
	ListRecent(ctx context.Context, limit int) ([]HarvestRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]HarvestRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
