// Package orchestrator drives the two harvest cycles: the stake-asset cycle
// splits the adapter's harvested stake-asset balance between restaking and
// liquidation into the reward asset, and the reward-asset cycle claims the
// staking position's passive gains and splits them between liquidation back
// into the stake asset and forwarding to the adapter. Split ratios are set by
// governance; an emergency exit drains the staked position to the treasury.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/cadencefi/treasuryd/internal/chain"
	"github.com/cadencefi/treasuryd/internal/domain"
	"github.com/cadencefi/treasuryd/internal/guard"
)

// Liquidator converts one asset into another through a registered route.
// Implemented by the liquidation registry.
type Liquidator interface {
	Trigger(ctx context.Context, caller common.Address, sellAsset common.Address, amount *big.Int) (*big.Int, error)
}

// ModuleResolver resolves well-known module names to addresses. The exit path
// uses it to find the treasury.
type ModuleResolver interface {
	Resolve(name string) (common.Address, bool)
}

// StaticResolver is a config-backed ModuleResolver.
type StaticResolver map[string]common.Address

// Resolve looks the name up in the map; a zero address counts as unresolved.
func (s StaticResolver) Resolve(name string) (common.Address, bool) {
	addr, ok := s[name]
	if !ok || addr == (common.Address{}) {
		return common.Address{}, false
	}
	return addr, true
}

// TreasuryModule is the resolver key for the exit destination.
const TreasuryModule = "treasury"

// Config carries the immutable wiring for an Orchestrator.
type Config struct {
	// Self is the orchestrator's module address.
	Self common.Address
	// Adapter is the share-accounting adapter's address: harvested stake
	// asset is pulled from it and unliquidated flows are forwarded back.
	Adapter common.Address
	// Governor is the only principal allowed to update ratios or exit.
	Governor common.Address

	StakeAsset  chain.Token
	RewardAsset chain.Token
	Staking     chain.StakingPool
	StakingAddr common.Address
	Liquidator  Liquidator
	// LiquidatorAddr receives sell-asset allowances during Initialize.
	LiquidatorAddr common.Address

	Modules ModuleResolver

	// Ratios seeds the split ratios; load the persisted revision before
	// constructing when one exists.
	Ratios domain.SplitRatios

	RatioStore domain.RatioStore
	History    domain.HarvestStore

	Events domain.EventSink
	Logger *slog.Logger
	Clock  func() time.Time
}

// Orchestrator holds no balance state between calls; every cycle re-derives
// the amounts it routes from live balances.
type Orchestrator struct {
	guard guard.Guard

	self     common.Address
	adapter  common.Address
	governor common.Address

	stakeAsset     chain.Token
	rewardAsset    chain.Token
	staking        chain.StakingPool
	stakingAddr    common.Address
	liquidator     Liquidator
	liquidatorAddr common.Address
	modules        ModuleResolver

	ratios     domain.SplitRatios
	ratioStore domain.RatioStore
	history    domain.HarvestStore
	events     domain.EventSink
	logger     *slog.Logger
	clock      func() time.Time

	initialized bool
}

// New validates cfg and returns an uninitialized Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Self == (common.Address{}) || cfg.Adapter == (common.Address{}) || cfg.Governor == (common.Address{}) {
		return nil, fmt.Errorf("orchestrator: %w", domain.ErrZeroAddress)
	}
	if cfg.StakeAsset == nil || cfg.RewardAsset == nil || cfg.Staking == nil || cfg.Liquidator == nil {
		return nil, fmt.Errorf("orchestrator: assets, staking, and liquidator are required")
	}
	events := cfg.Events
	if events == nil {
		events = domain.NopSink
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	modules := cfg.Modules
	if modules == nil {
		modules = StaticResolver{}
	}
	return &Orchestrator{
		self:           cfg.Self,
		adapter:        cfg.Adapter,
		governor:       cfg.Governor,
		stakeAsset:     cfg.StakeAsset,
		rewardAsset:    cfg.RewardAsset,
		staking:        cfg.Staking,
		stakingAddr:    cfg.StakingAddr,
		liquidator:     cfg.Liquidator,
		liquidatorAddr: cfg.LiquidatorAddr,
		modules:        modules,
		ratios:         cfg.Ratios,
		ratioStore:     cfg.RatioStore,
		history:        cfg.History,
		events:         events,
		logger:         logger.With(slog.String("component", "orchestrator")),
		clock:          clock,
	}, nil
}

// Initialize grants the staking contract allowance over the stake asset and
// the liquidation registry allowance over both assets, exactly once.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	release, err := o.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if o.initialized {
		return fmt.Errorf("orchestrator: %w", domain.ErrAlreadyInitialized)
	}
	if err := o.approveAll(ctx); err != nil {
		return err
	}
	o.initialized = true
	o.logger.Info("orchestrator initialized")
	return nil
}

// ReapproveContracts re-grants the allowances set up at initialization.
func (o *Orchestrator) ReapproveContracts(ctx context.Context, by common.Address) error {
	release, err := o.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if by != o.governor {
		return fmt.Errorf("orchestrator: reapprove by %s: %w", by, domain.ErrUnauthorized)
	}
	return o.approveAll(ctx)
}

// HandleStakeAsset pulls the adapter's whole stake-asset balance, stakes
// balance*(1-ratioStake), and liquidates the exact remainder into the reward
// asset, forwarding the proceeds back to the adapter. Fails with
// domain.ErrNothingToHarvest when the adapter holds none.
func (o *Orchestrator) HandleStakeAsset(ctx context.Context) error {
	release, err := o.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	balance, err := o.stakeAsset.BalanceOf(ctx, o.adapter)
	if err != nil {
		return fmt.Errorf("orchestrator: adapter stake balance: %w", err)
	}
	if balance.Sign() == 0 {
		return fmt.Errorf("orchestrator: stake cycle: %w", domain.ErrNothingToHarvest)
	}
	if err := o.stakeAsset.TransferFrom(ctx, o.adapter, o.self, balance); err != nil {
		return fmt.Errorf("orchestrator: pull stake asset: %w", err)
	}

	// stakeAmount = balance*(1-r); the liquidated part is the exact
	// remainder so no unit is lost to double rounding.
	stakeAmount := o.ratios.StakeAsset.Complement().Mul(balance)
	toLiquidate := new(big.Int).Sub(balance, stakeAmount)

	if stakeAmount.Sign() > 0 {
		if err := o.staking.Stake(ctx, stakeAmount); err != nil {
			return fmt.Errorf("orchestrator: stake: %w", err)
		}
	}

	forwarded := new(big.Int)
	if toLiquidate.Sign() > 0 {
		if _, err := o.liquidator.Trigger(ctx, o.self, o.stakeAsset.Address(), toLiquidate); err != nil {
			return fmt.Errorf("orchestrator: liquidate stake asset: %w", err)
		}
		proceeds, err := o.rewardAsset.BalanceOf(ctx, o.self)
		if err != nil {
			return fmt.Errorf("orchestrator: proceeds balance: %w", err)
		}
		if proceeds.Sign() > 0 {
			if err := o.rewardAsset.Transfer(ctx, o.adapter, proceeds); err != nil {
				return fmt.Errorf("orchestrator: forward proceeds: %w", err)
			}
			forwarded = proceeds
		}
	}

	o.record(ctx, domain.CycleStakeAsset, stakeAmount, toLiquidate, forwarded)
	o.emit(domain.EventStakeProcessed, map[string]string{
		"pulled":     balance.String(),
		"staked":     stakeAmount.String(),
		"liquidated": toLiquidate.String(),
		"forwarded":  forwarded.String(),
	})
	return nil
}

// HandleRewardAsset claims the staking position's pending reward gain by
// unstaking a nominal unit, liquidates balance*ratioReward back into the
// stake asset, restakes any resulting stake-asset balance, and forwards the
// remaining reward asset to the adapter. Fails with
// domain.ErrNoPendingRewards when no gain has accrued.
func (o *Orchestrator) HandleRewardAsset(ctx context.Context) error {
	release, err := o.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	pending, err := o.staking.PendingRewardGain(ctx, o.self)
	if err != nil {
		return fmt.Errorf("orchestrator: pending gain: %w", err)
	}
	if pending.Sign() == 0 {
		return fmt.Errorf("orchestrator: reward cycle: %w", domain.ErrNoPendingRewards)
	}

	// Unstaking any amount pays out accrued gains; one unit is the
	// protocol's de facto claim call.
	if err := o.staking.Unstake(ctx, big.NewInt(1)); err != nil {
		return fmt.Errorf("orchestrator: claim via unstake: %w", err)
	}

	balance, err := o.rewardAsset.BalanceOf(ctx, o.self)
	if err != nil {
		return fmt.Errorf("orchestrator: reward balance: %w", err)
	}
	toLiquidate := o.ratios.RewardAsset.Mul(balance)

	if toLiquidate.Sign() > 0 {
		if _, err := o.liquidator.Trigger(ctx, o.self, o.rewardAsset.Address(), toLiquidate); err != nil {
			return fmt.Errorf("orchestrator: liquidate reward asset: %w", err)
		}
	}

	staked := new(big.Int)
	stakeBalance, err := o.stakeAsset.BalanceOf(ctx, o.self)
	if err != nil {
		return fmt.Errorf("orchestrator: stake balance: %w", err)
	}
	if stakeBalance.Sign() > 0 {
		if err := o.staking.Stake(ctx, stakeBalance); err != nil {
			return fmt.Errorf("orchestrator: restake: %w", err)
		}
		staked = stakeBalance
	}

	forwarded := new(big.Int)
	remaining, err := o.rewardAsset.BalanceOf(ctx, o.self)
	if err != nil {
		return fmt.Errorf("orchestrator: remaining reward balance: %w", err)
	}
	if remaining.Sign() > 0 {
		if err := o.rewardAsset.Transfer(ctx, o.adapter, remaining); err != nil {
			return fmt.Errorf("orchestrator: forward reward asset: %w", err)
		}
		forwarded = remaining
	}

	o.record(ctx, domain.CycleRewardAsset, staked, toLiquidate, forwarded)
	o.emit(domain.EventRewardProcessed, map[string]string{
		"claimed":    balance.String(),
		"liquidated": toLiquidate.String(),
		"staked":     staked.String(),
		"forwarded":  forwarded.String(),
	})
	return nil
}

// UpdateSplitRatios atomically replaces both split ratios. Both must lie in
// [0, 1e18]; validation happened when the Fractions were constructed, so this
// only gates the caller and persists the revision.
func (o *Orchestrator) UpdateSplitRatios(ctx context.Context, by common.Address, ratioStake, ratioReward domain.Fraction) error {
	release, err := o.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if by != o.governor {
		return fmt.Errorf("orchestrator: updateSplitRatios by %s: %w", by, domain.ErrUnauthorized)
	}
	next := domain.SplitRatios{
		StakeAsset:  ratioStake,
		RewardAsset: ratioReward,
		UpdatedAt:   o.clock().UTC(),
	}
	if o.ratioStore != nil {
		if err := o.ratioStore.Save(ctx, next); err != nil {
			return fmt.Errorf("orchestrator: persist ratios: %w", err)
		}
	}
	o.ratios = next
	o.emit(domain.EventRatiosUpdated, map[string]string{
		"ratio_stake":  ratioStake.String(),
		"ratio_reward": ratioReward.String(),
	})
	return nil
}

// Ratios returns the current split ratios.
func (o *Orchestrator) Ratios() domain.SplitRatios {
	release, err := o.guard.Enter()
	if err != nil {
		return domain.SplitRatios{}
	}
	defer release()
	return o.ratios
}

// ExitToTreasury fully unstakes and forwards the stake asset, plus any idle
// reward-asset balance, to the treasury address from the module resolver.
// Fails with domain.ErrNothingToExit when there is nothing to drain. Split
// ratios and module activation are left untouched.
func (o *Orchestrator) ExitToTreasury(ctx context.Context, by common.Address) error {
	release, err := o.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if by != o.governor {
		return fmt.Errorf("orchestrator: exit by %s: %w", by, domain.ErrUnauthorized)
	}

	staked, err := o.staking.StakedBalance(ctx, o.self)
	if err != nil {
		return fmt.Errorf("orchestrator: staked balance: %w", err)
	}
	idle, err := o.rewardAsset.BalanceOf(ctx, o.self)
	if err != nil {
		return fmt.Errorf("orchestrator: idle reward balance: %w", err)
	}
	if staked.Sign() == 0 && idle.Sign() == 0 {
		return fmt.Errorf("orchestrator: exit: %w", domain.ErrNothingToExit)
	}

	treasury, ok := o.modules.Resolve(TreasuryModule)
	if !ok {
		return fmt.Errorf("orchestrator: exit: %w", domain.ErrTreasuryUnset)
	}

	movedStake := new(big.Int)
	if staked.Sign() > 0 {
		if err := o.staking.Unstake(ctx, staked); err != nil {
			return fmt.Errorf("orchestrator: exit unstake: %w", err)
		}
		balance, err := o.stakeAsset.BalanceOf(ctx, o.self)
		if err != nil {
			return fmt.Errorf("orchestrator: exit stake balance: %w", err)
		}
		if balance.Sign() > 0 {
			if err := o.stakeAsset.Transfer(ctx, treasury, balance); err != nil {
				return fmt.Errorf("orchestrator: exit forward stake asset: %w", err)
			}
			movedStake = balance
		}
	}
	if idle.Sign() > 0 {
		if err := o.rewardAsset.Transfer(ctx, treasury, idle); err != nil {
			return fmt.Errorf("orchestrator: exit forward reward asset: %w", err)
		}
	}

	o.logger.Warn("treasury exit executed",
		slog.String("treasury", treasury.Hex()),
		slog.String("stake_asset", movedStake.String()),
		slog.String("reward_asset", idle.String()),
	)
	o.emit(domain.EventTreasuryExit, map[string]string{
		"treasury":     treasury.Hex(),
		"stake_asset":  movedStake.String(),
		"reward_asset": idle.String(),
	})
	return nil
}

func (o *Orchestrator) approveAll(ctx context.Context) error {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	max.Sub(max, big.NewInt(1))
	if o.stakingAddr != (common.Address{}) {
		if err := o.stakeAsset.Approve(ctx, o.stakingAddr, max); err != nil {
			return fmt.Errorf("orchestrator: approve staking: %w", err)
		}
	}
	if o.liquidatorAddr != (common.Address{}) {
		if err := o.stakeAsset.Approve(ctx, o.liquidatorAddr, max); err != nil {
			return fmt.Errorf("orchestrator: approve liquidator for stake asset: %w", err)
		}
		if err := o.rewardAsset.Approve(ctx, o.liquidatorAddr, max); err != nil {
			return fmt.Errorf("orchestrator: approve liquidator for reward asset: %w", err)
		}
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, cycle domain.HarvestCycle, staked, liquidated, forwarded *big.Int) {
	if o.history == nil {
		return
	}
	rec := domain.HarvestRecord{
		ID:         uuid.New().String(),
		Cycle:      cycle,
		Staked:     new(big.Int).Set(staked),
		Liquidated: new(big.Int).Set(liquidated),
		Forwarded:  new(big.Int).Set(forwarded),
		ExecutedAt: o.clock().UTC(),
	}
	if err := o.history.Insert(ctx, rec); err != nil {
		o.logger.Error("persist harvest record failed", slog.String("error", err.Error()))
	}
}

func (o *Orchestrator) emit(kind domain.EventKind, fields map[string]string) {
	o.events.Emit(domain.Event{
		ID:     uuid.New().String(),
		Kind:   kind,
		At:     o.clock().UTC(),
		Fields: fields,
	})
}
