package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// PriceCache implements domain.PriceCache using a Redis hash. The gateway's
// spot price is stored at a single key with fields "price" (decimal string,
// 1e18-scaled) and "ts" (Unix nanosecond timestamp).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

const spotPriceKey = "price:spot"

// SetSpotPrice stores the latest gateway spot price and its observation time.
func (pc *PriceCache) SetSpotPrice(ctx context.Context, price *big.Int, ts time.Time) error {
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, spotPriceKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: set spot price: %w", err)
	}
	return nil
}

// GetSpotPrice retrieves the cached spot price and its observation time.
// It returns domain.ErrNotFound when no price has been cached.
func (pc *PriceCache) GetSpotPrice(ctx context.Context) (*big.Int, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, spotPriceKey).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get spot price: %w", err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("redis: malformed spot price %q", priceStr)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse spot price ts: %w", err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
