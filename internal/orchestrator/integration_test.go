package orchestrator

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cadencefi/treasuryd/internal/accounting"
	"github.com/cadencefi/treasuryd/internal/chain/chaintest"
	"github.com/cadencefi/treasuryd/internal/domain"
	"github.com/cadencefi/treasuryd/internal/liquidation"
)

// TestHarvestCyclesThroughRegistry wires the real accounting adapter and the
// real liquidation registry together and runs both harvest cycles against
// them: the pool's deposit stays on the ledger, harvested balances split per
// the ratios, and nothing is stranded on the orchestrator or the registry.
func TestHarvestCyclesThroughRegistry(t *testing.T) {
	ctx := context.Background()

	lpAddr := addr(0x31)
	poolAddr := addr(0x32)
	swapAddr := addr(0x33)

	stake := chaintest.NewAsset(stakeAddr, 18)
	reward := chaintest.NewAsset(rewardAddr, 18)
	assets := map[common.Address]*chaintest.Asset{stakeAddr: stake, rewardAddr: reward}

	pool := chaintest.NewPool(stake, poolAddr, adapterAddr)
	adapter, err := accounting.New(accounting.Config{
		Self:      adapterAddr,
		LP:        lpAddr,
		Spenders:  []common.Address{orchSelf},
		Gateway:   pool,
		BaseAsset: stake.Bind(adapterAddr),
	})
	require.NoError(t, err)
	require.NoError(t, adapter.Initialize(ctx))

	router := chaintest.NewRouter(swapAddr, liqAddr, assets)
	registry, err := liquidation.New(liquidation.Config{
		Self:     liqAddr,
		Governor: govAddr,
		Router:   router,
		Tokens:   chaintest.Source{Holder: liqAddr, Assets: assets},
	})
	require.NoError(t, err)

	fwd, err := liquidation.EncodePath([]common.Address{stakeAddr, rewardAddr}, []uint32{3000})
	require.NoError(t, err)
	rev, err := liquidation.EncodePath([]common.Address{rewardAddr, stakeAddr}, []uint32{3000})
	require.NoError(t, err)

	slippage := domain.MustFraction(990_000_000_000_000_000)
	require.NoError(t, registry.CreateRoute(ctx, govAddr, orchSelf, stakeAddr, rewardAddr, fwd, rev, slippage, false))
	require.NoError(t, registry.CreateRoute(ctx, govAddr, orchSelf, rewardAddr, stakeAddr, rev, fwd, slippage, false))

	staking := chaintest.NewStaking(stake, reward, stakingAddr, orchSelf)
	orch, err := New(Config{
		Self:           orchSelf,
		Adapter:        adapterAddr,
		Governor:       govAddr,
		StakeAsset:     stake.Bind(orchSelf),
		RewardAsset:    reward.Bind(orchSelf),
		Staking:        staking,
		StakingAddr:    stakingAddr,
		Liquidator:     registry,
		LiquidatorAddr: liqAddr,
		Modules:        StaticResolver{TreasuryModule: treasuryAddr},
		Ratios: domain.SplitRatios{
			StakeAsset:  domain.MustFraction(400_000_000_000_000_000),
			RewardAsset: domain.MustFraction(500_000_000_000_000_000),
		},
	})
	require.NoError(t, err)
	require.NoError(t, orch.Initialize(ctx))

	// The pool deposits 100,000 base asset through the adapter; the ledger
	// credits the full amount.
	stake.Mint(adapterAddr, big.NewInt(100_000))
	credited, err := adapter.Deposit(ctx, lpAddr, stakeAddr, big.NewInt(100_000), true)
	require.NoError(t, err)
	require.Equal(t, "100000", credited.String())

	tracked, err := adapter.CheckBalance(stakeAddr)
	require.NoError(t, err)
	require.Equal(t, "100000", tracked.String())

	// Stake cycle on a 10,000 harvested balance with 40% to liquidation:
	// 6,000 staked, 4,000 swapped 1:1 into the reward asset and forwarded.
	stake.Mint(adapterAddr, big.NewInt(10_000))
	require.NoError(t, orch.HandleStakeAsset(ctx))

	staked, err := staking.StakedBalance(ctx, orchSelf)
	require.NoError(t, err)
	require.Equal(t, "6000", staked.String())
	require.Equal(t, "4000", reward.BalanceOf(adapterAddr).String())
	require.Equal(t, 1, router.Calls)

	// Reward cycle on a 2,000 pending gain with an even split: 1,000 swapped
	// back into the stake asset and restaked along with the claim unit, the
	// remaining 1,000 forwarded to the adapter.
	staking.SetPending(big.NewInt(2_000))
	require.NoError(t, orch.HandleRewardAsset(ctx))

	staked, err = staking.StakedBalance(ctx, orchSelf)
	require.NoError(t, err)
	require.Equal(t, "7000", staked.String())
	require.Equal(t, "5000", reward.BalanceOf(adapterAddr).String())
	require.Equal(t, 2, router.Calls)

	// No residue on the orchestrator or the registry, and the harvest flows
	// never touched the deposit ledger.
	require.Equal(t, "0", stake.BalanceOf(orchSelf).String())
	require.Equal(t, "0", reward.BalanceOf(orchSelf).String())
	require.Equal(t, "0", stake.BalanceOf(liqAddr).String())
	require.Equal(t, "0", reward.BalanceOf(liqAddr).String())

	tracked, err = adapter.CheckBalance(stakeAddr)
	require.NoError(t, err)
	require.Equal(t, "100000", tracked.String())
}
