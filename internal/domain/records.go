package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// HarvestCycle names the two orchestrator cycles.
type HarvestCycle string

const (
	CycleStakeAsset  HarvestCycle = "stake_asset"
	CycleRewardAsset HarvestCycle = "reward_asset"
)

// LiquidationRecord is one executed route trigger.
type LiquidationRecord struct {
	ID         string
	Caller     common.Address
	SellAsset  common.Address
	BuyAsset   common.Address
	AmountIn   *big.Int
	QuotedOut  *big.Int
	MinOut     *big.Int
	AmountOut  *big.Int
	ExecutedAt time.Time
}

// HarvestRecord is one completed orchestrator cycle.
type HarvestRecord struct {
	ID         string
	Cycle      HarvestCycle
	Staked     *big.Int
	Liquidated *big.Int
	Forwarded  *big.Int
	ExecutedAt time.Time
}
