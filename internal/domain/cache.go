package domain

import (
	"context"
	"math/big"
	"time"
)

// PriceCache caches the gateway's spot price for the status endpoint so
// operator reads do not hammer the RPC node.
type PriceCache interface {
	SetSpotPrice(ctx context.Context, price *big.Int, ts time.Time) error
	GetSpotPrice(ctx context.Context) (*big.Int, time.Time, error)
}

// LockManager provides distributed locking. The scheduler takes the harvest
// lock before running a cycle so that only one replica mutates the treasury
// at a time.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter bounds request rates per key. The HTTP middleware uses it to
// throttle operator API clients.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub delivery and durable streams for engine events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
