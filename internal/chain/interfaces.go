// Package chain defines the interfaces through which the treasury engines
// talk to external on-chain collaborators (the ERC-20 tokens, the external
// yield pool, the staking contract, and the swap router) together with live
// implementations bound to an Ethereum JSON-RPC endpoint. The engines only
// ever see these interfaces; tests substitute in-memory fakes.
package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the ERC-20 surface the engines need. Transfer and Approve act on
// behalf of the configured signing identity.
type Token interface {
	Address() common.Address
	Decimals(ctx context.Context) (uint8, error)
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, spender common.Address, amount *big.Int) error
}

// TokenSource resolves a Token client for an arbitrary asset address. The
// liquidation registry uses it because sell/buy assets vary per route.
type TokenSource interface {
	Token(asset common.Address) (Token, error)
}

// PoolGateway is the external yield-bearing pool the adapter deposits the
// base asset into. Balances inside the pool are denominated in the pool's
// internal share unit.
type PoolGateway interface {
	Deposit(ctx context.Context, amount *big.Int) error
	Withdraw(ctx context.Context, shares *big.Int) error
	TotalShares(ctx context.Context) (*big.Int, error)
	SharesOf(ctx context.Context, holder common.Address) (*big.Int, error)
	TotalUnderlying(ctx context.Context) (*big.Int, error)
	SpotPrice(ctx context.Context) (*big.Int, error)
}

// StakingPool is the external staking contract for the stake asset.
// Unstaking any amount, even a nominal single unit, triggers payout of
// accrued reward-asset gains; that is the protocol's claim mechanism.
type StakingPool interface {
	Stake(ctx context.Context, amount *big.Int) error
	Unstake(ctx context.Context, amount *big.Int) error
	StakedBalance(ctx context.Context, holder common.Address) (*big.Int, error)
	PendingRewardGain(ctx context.Context, holder common.Address) (*big.Int, error)
}

// SwapParams are the arguments for an exact-input multi-hop swap.
type SwapParams struct {
	Path      []byte
	Recipient common.Address
	Deadline  time.Time
	AmountIn  *big.Int
	MinOut    *big.Int
}

// SwapRouter executes swaps along packed multi-hop paths. QuoteExactInput is
// a read-only call; ExactInput reverts when the realized output would fall
// below MinOut.
type SwapRouter interface {
	QuoteExactInput(ctx context.Context, path []byte, amountIn *big.Int) (*big.Int, error)
	ExactInput(ctx context.Context, params SwapParams) (*big.Int, error)
}
