// Package accounting implements the share-accounting adapter: it lets one
// authorized principal (the liquidity pool) deposit and withdraw a single
// base asset against the external yield pool while presenting a plain
// balance-of-base-asset view. Share mechanics, external withdrawal fees, and
// rounding behavior of the pool stay hidden behind the adapter.
//
// Balance strategy: the adapter keeps an explicit running ledger
// (cumulative reconciled deposits minus amounts actually transferred out).
// CheckBalance reads that ledger and is therefore immune to share-price
// rounding drift in the external pool. The live share price is consulted only
// where it has to be: converting a withdrawal amount into shares to burn, and
// measuring the position delta when a deposit fee hint is supplied.
package accounting

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

// Config carries the immutable wiring for an Adapter. Approvals happen later
// in Initialize, never in New.
type Config struct {
	// Self is the adapter's module address; token balances and pool shares
	// are held under it.
	Self common.Address
	// LP is the only principal allowed to move funds through the adapter.
	LP common.Address
	// Spenders are granted unlimited base/stake asset allowance during
	// Initialize so the orchestrator can pull harvested balances.
	Spenders []common.Address

	Gateway    chain.PoolGateway
	BaseAsset  chain.Token
	StakeAsset chain.Token

	Events domain.EventSink
	Logger *slog.Logger
	Clock  func() time.Time
}

// Adapter tracks the LP's claim on the external pool.
type Adapter struct {
	guard guard.Guard

	self     common.Address
	lp       common.Address
	spenders []common.Address

	gateway    chain.PoolGateway
	base       chain.Token
	stakeAsset chain.Token

	tracked *big.Int
	events  domain.EventSink
	logger  *slog.Logger
	clock   func() time.Time

	initialized bool
}

// New validates cfg and returns an uninitialized Adapter with a zero ledger.
func New(cfg Config) (*Adapter, error) {
	if cfg.Self == (common.Address{}) || cfg.LP == (common.Address{}) {
		return nil, fmt.Errorf("accounting: %w", domain.ErrZeroAddress)
	}
	if cfg.Gateway == nil || cfg.BaseAsset == nil {
		return nil, fmt.Errorf("accounting: gateway and base asset are required")
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
	return &Adapter{
		self:       cfg.Self,
		lp:         cfg.LP,
		spenders:   cfg.Spenders,
		gateway:    cfg.Gateway,
		base:       cfg.BaseAsset,
		stakeAsset: cfg.StakeAsset,
		tracked:    new(big.Int),
		events:     events,
		logger:     logger.With(slog.String("component", "accounting")),
		clock:      clock,
	}, nil
}

// Initialize performs the one-time approvals: every configured spender gets
// unlimited allowance over the base asset and, when wired, the stake asset.
// A second call fails with domain.ErrAlreadyInitialized.
func (a *Adapter) Initialize(ctx context.Context) error {
	release, err := a.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if a.initialized {
		return fmt.Errorf("accounting: %w", domain.ErrAlreadyInitialized)
	}
	for _, spender := range a.spenders {
		if err := a.base.Approve(ctx, spender, maxAllowance()); err != nil {
			return fmt.Errorf("accounting: approve base asset for %s: %w", spender, err)
		}
		if a.stakeAsset != nil {
			if err := a.stakeAsset.Approve(ctx, spender, maxAllowance()); err != nil {
				return fmt.Errorf("accounting: approve stake asset for %s: %w", spender, err)
			}
		}
	}
	a.initialized = true
	a.logger.Info("adapter initialized", slog.Int("spenders", len(a.spenders)))
	return nil
}

// Deposit forwards amount of the base asset into the external pool and
// credits the ledger with the amount that verifiably landed. With
// feeChargedHint set, the adapter measures its pool position before and after
// the call and credits min(amount, observed delta), protecting the ledger
// against a gateway that silently takes a cut. It returns the credited
// amount.
func (a *Adapter) Deposit(ctx context.Context, caller common.Address, asset common.Address, amount *big.Int, feeChargedHint bool) (*big.Int, error) {
	release, err := a.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if caller != a.lp {
		return nil, fmt.Errorf("accounting: deposit by %s: %w", caller, domain.ErrUnauthorized)
	}
	if asset != a.base.Address() {
		return nil, fmt.Errorf("accounting: deposit %s: %w", asset, domain.ErrAssetMismatch)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("accounting: deposit: %w", domain.ErrZeroAmount)
	}

	var before *big.Int
	if feeChargedHint {
		if before, err = a.positionValue(ctx); err != nil {
			return nil, err
		}
	}

	if err := a.gateway.Deposit(ctx, amount); err != nil {
		return nil, fmt.Errorf("accounting: gateway deposit: %w", err)
	}

	credited := new(big.Int).Set(amount)
	if feeChargedHint {
		after, err := a.positionValue(ctx)
		if err != nil {
			return nil, err
		}
		delta := new(big.Int).Sub(after, before)
		if delta.Sign() < 0 {
			delta.SetInt64(0)
		}
		if delta.Cmp(credited) < 0 {
			credited = delta
		}
	}

	a.tracked.Add(a.tracked, credited)
	a.emit(domain.EventDeposit, map[string]string{
		"asset":     asset.Hex(),
		"requested": amount.String(),
		"credited":  credited.String(),
		"tracked":   a.tracked.String(),
	})
	return credited, nil
}

// WithdrawTo is the user-facing withdrawal: the full pulled amount goes to
// the receiver.
func (a *Adapter) WithdrawTo(ctx context.Context, caller, receiver common.Address, asset common.Address, amount *big.Int, feeChargedHint bool) (*big.Int, error) {
	return a.Withdraw(ctx, caller, receiver, asset, amount, amount, feeChargedHint)
}

// Withdraw burns enough external shares to release totalAmount of the base
// asset, then transfers up to amount to the receiver. totalAmount may exceed
// amount when the caller pulls extra for its own fee accounting; the surplus
// stays resident in the adapter as idle buffer. The shares to burn are
// computed against the live share price, rounded up so the adapter never
// understates the burn; the payout is capped at what actually arrived when
// feeChargedHint is set. Returns the amount transferred to the receiver.
func (a *Adapter) Withdraw(ctx context.Context, caller, receiver common.Address, asset common.Address, amount, totalAmount *big.Int, feeChargedHint bool) (*big.Int, error) {
	release, err := a.guard.Enter()
	if err != nil {
		return nil, err
	}
	defer release()

	if caller != a.lp {
		return nil, fmt.Errorf("accounting: withdraw by %s: %w", caller, domain.ErrUnauthorized)
	}
	if receiver == (common.Address{}) {
		return nil, fmt.Errorf("accounting: withdraw receiver: %w", domain.ErrZeroAddress)
	}
	if asset != a.base.Address() {
		return nil, fmt.Errorf("accounting: withdraw %s: %w", asset, domain.ErrAssetMismatch)
	}
	if totalAmount == nil || totalAmount.Sign() <= 0 {
		return nil, fmt.Errorf("accounting: withdraw: %w", domain.ErrZeroAmount)
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("accounting: withdraw: %w", domain.ErrZeroAmount)
	}
	if amount.Cmp(totalAmount) > 0 {
		return nil, fmt.Errorf("accounting: withdraw: amount %s exceeds total %s", amount, totalAmount)
	}

	shares, err := a.sharesForAmount(ctx, totalAmount)
	if err != nil {
		return nil, err
	}

	before, err := a.base.BalanceOf(ctx, a.self)
	if err != nil {
		return nil, fmt.Errorf("accounting: balance before withdraw: %w", err)
	}
	if shares.Sign() > 0 {
		if err := a.gateway.Withdraw(ctx, shares); err != nil {
			return nil, fmt.Errorf("accounting: gateway withdraw: %w", err)
		}
	}
	after, err := a.base.BalanceOf(ctx, a.self)
	if err != nil {
		return nil, fmt.Errorf("accounting: balance after withdraw: %w", err)
	}
	received := new(big.Int).Sub(after, before)
	if received.Sign() < 0 {
		received.SetInt64(0)
	}

	pay := new(big.Int).Set(amount)
	if feeChargedHint && received.Cmp(pay) < 0 {
		// The gateway charged a withdrawal fee; pass the shortfall on
		// instead of dipping into the idle buffer.
		pay.Set(received)
	}

	if pay.Sign() > 0 {
		if err := a.base.Transfer(ctx, receiver, pay); err != nil {
			return nil, fmt.Errorf("accounting: transfer to %s: %w", receiver, err)
		}
	}

	a.tracked.Sub(a.tracked, pay)
	if a.tracked.Sign() < 0 {
		a.logger.Warn("tracked balance underflow clamped",
			slog.String("paid", pay.String()),
		)
		a.tracked.SetInt64(0)
	}

	a.emit(domain.EventWithdraw, map[string]string{
		"asset":    asset.Hex(),
		"receiver": receiver.Hex(),
		"amount":   amount.String(),
		"total":    totalAmount.String(),
		"shares":   shares.String(),
		"paid":     pay.String(),
		"tracked":  a.tracked.String(),
	})
	return pay, nil
}

// WithdrawRaw transfers base asset already resident in the adapter (the idle
// buffer) without touching the external pool or the ledger.
func (a *Adapter) WithdrawRaw(ctx context.Context, caller, receiver common.Address, asset common.Address, amount *big.Int) error {
	release, err := a.guard.Enter()
	if err != nil {
		return err
	}
	defer release()

	if caller != a.lp {
		return fmt.Errorf("accounting: withdrawRaw by %s: %w", caller, domain.ErrUnauthorized)
	}
	if receiver == (common.Address{}) {
		return fmt.Errorf("accounting: withdrawRaw receiver: %w", domain.ErrZeroAddress)
	}
	if asset != a.base.Address() {
		return fmt.Errorf("accounting: withdrawRaw %s: %w", asset, domain.ErrAssetMismatch)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("accounting: withdrawRaw: %w", domain.ErrZeroAmount)
	}
	if err := a.base.Transfer(ctx, receiver, amount); err != nil {
		return fmt.Errorf("accounting: withdrawRaw transfer: %w", err)
	}
	a.emit(domain.EventWithdrawRaw, map[string]string{
		"asset":    asset.Hex(),
		"receiver": receiver.Hex(),
		"amount":   amount.String(),
	})
	return nil
}

// CheckBalance returns the tracked ledger balance for the base asset.
func (a *Adapter) CheckBalance(asset common.Address) (*big.Int, error) {
	if asset != a.base.Address() {
		return nil, fmt.Errorf("accounting: checkBalance %s: %w", asset, domain.ErrAssetMismatch)
	}
	return new(big.Int).Set(a.tracked), nil
}

// Address returns the adapter's module address.
func (a *Adapter) Address() common.Address { return a.self }

// ReceiveNative records native-currency residue arriving from gateway
// withdrawals. It is deliberately not accounted into any balance; a
// privileged exit path sweeps it.
func (a *Adapter) ReceiveNative(from common.Address, amount *big.Int) {
	a.logger.Info("native residue received",
		slog.String("from", from.Hex()),
		slog.String("amount", amount.String()),
	)
}

// positionValue recomputes the adapter's claim on the pool from shares,
// rounded down: sharesOf(self) * totalUnderlying / totalShares.
func (a *Adapter) positionValue(ctx context.Context) (*big.Int, error) {
	totalShares, err := a.gateway.TotalShares(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounting: total shares: %w", err)
	}
	if totalShares.Sign() == 0 {
		return new(big.Int), nil
	}
	shares, err := a.gateway.SharesOf(ctx, a.self)
	if err != nil {
		return nil, fmt.Errorf("accounting: shares of adapter: %w", err)
	}
	totalUnderlying, err := a.gateway.TotalUnderlying(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounting: total underlying: %w", err)
	}
	value := new(big.Int).Mul(shares, totalUnderlying)
	return value.Quo(value, totalShares), nil
}

// sharesForAmount converts a base-asset amount into external shares at the
// live share price, rounded up, capped at the adapter's share balance.
func (a *Adapter) sharesForAmount(ctx context.Context, amount *big.Int) (*big.Int, error) {
	totalShares, err := a.gateway.TotalShares(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounting: total shares: %w", err)
	}
	totalUnderlying, err := a.gateway.TotalUnderlying(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounting: total underlying: %w", err)
	}
	if totalShares.Sign() == 0 || totalUnderlying.Sign() == 0 {
		return new(big.Int), nil
	}
	shares := domain.CeilDiv(new(big.Int).Mul(amount, totalShares), totalUnderlying)

	held, err := a.gateway.SharesOf(ctx, a.self)
	if err != nil {
		return nil, fmt.Errorf("accounting: shares of adapter: %w", err)
	}
	if shares.Cmp(held) > 0 {
		shares = new(big.Int).Set(held)
	}
	return shares, nil
}

func (a *Adapter) emit(kind domain.EventKind, fields map[string]string) {
	a.events.Emit(domain.Event{
		ID:     uuid.New().String(),
		Kind:   kind,
		At:     a.clock().UTC(),
		Fields: fields,
	})
}

func maxAllowance() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return max.Sub(max, big.NewInt(1))
}
