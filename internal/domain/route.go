package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Route is a registered liquidation route from SellAsset to BuyAsset for one
// caller module. ForwardPath and ReversePath are packed multi-hop swap paths:
// 20-byte token address, 3-byte pool fee, 20-byte token address, and so on.
// The forward path must start at SellAsset and end at BuyAsset; the reverse
// path runs the other way.
type Route struct {
	Caller      common.Address
	SellAsset   common.Address
	BuyAsset    common.Address
	ForwardPath []byte
	ReversePath []byte

	// Slippage is the fraction of the quoted output accepted as the swap
	// floor, in (0, 1e18]. 1e18 means no slippage tolerance at all.
	Slippage Fraction

	// LastTriggeredAt is zero until the route has been executed once.
	LastTriggeredAt time.Time
	CreatedAt       time.Time
}

// Key identifies a route by its (caller, sell asset) pair.
func (r Route) Key() RouteKey {
	return RouteKey{Caller: r.Caller, SellAsset: r.SellAsset}
}

// RouteKey is the registry map key for routes.
type RouteKey struct {
	Caller    common.Address
	SellAsset common.Address
}

// CallerState records whether a caller module may trigger liquidations.
type CallerState struct {
	Caller    common.Address
	Active    bool
	UpdatedAt time.Time
}

// SplitRatios configures which fraction of each harvested asset is liquidated
// rather than restaked or forwarded. Both are in [0, 1e18].
type SplitRatios struct {
	StakeAsset  Fraction
	RewardAsset Fraction
	UpdatedAt   time.Time
}
