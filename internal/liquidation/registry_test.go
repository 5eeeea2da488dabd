package liquidation

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cadencefi/treasuryd/internal/chain/chaintest"
	"github.com/cadencefi/treasuryd/internal/domain"
)

var (
	regSelf    = addr(0x10)
	governor   = addr(0x11)
	moduleAddr = addr(0x12)
	routerAddr = addr(0x13)
	sellAddr   = addr(0xA1)
	buyAddr    = addr(0xA2)
	slippage99 = domain.MustFraction(990_000_000_000_000_000)
	baseMoment = time.Unix(1_700_000_000, 0).UTC()
)

type regFixture struct {
	registry *Registry
	sell     *chaintest.Asset
	buy      *chaintest.Asset
	router   *chaintest.Router
	clock    *chaintest.Clock
	fwd      []byte
	rev      []byte
	events   []domain.Event
}

func newRegFixture(t *testing.T) *regFixture {
	t.Helper()
	f := &regFixture{
		sell:  chaintest.NewAsset(sellAddr, 18),
		buy:   chaintest.NewAsset(buyAddr, 18),
		clock: chaintest.NewClock(baseMoment),
	}
	assets := map[common.Address]*chaintest.Asset{sellAddr: f.sell, buyAddr: f.buy}
	f.router = chaintest.NewRouter(routerAddr, regSelf, assets)

	var err error
	f.fwd, err = EncodePath([]common.Address{sellAddr, buyAddr}, []uint32{3000})
	require.NoError(t, err)
	f.rev, err = EncodePath([]common.Address{buyAddr, sellAddr}, []uint32{3000})
	require.NoError(t, err)

	f.registry, err = New(Config{
		Self:     regSelf,
		Governor: governor,
		Router:   f.router,
		Tokens:   chaintest.Source{Holder: regSelf, Assets: assets},
		Events:   domain.EventSinkFunc(func(e domain.Event) { f.events = append(f.events, e) }),
		Clock:    f.clock.Now,
	})
	require.NoError(t, err)
	return f
}

func (f *regFixture) createRoute(t *testing.T, override bool) {
	t.Helper()
	err := f.registry.CreateRoute(context.Background(), governor, moduleAddr, sellAddr, buyAddr, f.fwd, f.rev, slippage99, override)
	require.NoError(t, err)
}

func TestCreateRouteRegistersAndActivates(t *testing.T) {
	f := newRegFixture(t)
	f.createRoute(t, false)

	routes := f.registry.Routes()
	require.Len(t, routes, 1)
	require.Equal(t, moduleAddr, routes[0].Caller)
	require.Equal(t, sellAddr, routes[0].SellAsset)
	require.Equal(t, buyAddr, routes[0].BuyAsset)
	require.True(t, routes[0].LastTriggeredAt.IsZero())

	callers := f.registry.Callers()
	require.Len(t, callers, 1)
	require.True(t, callers[0].Active)

	require.Len(t, f.events, 1)
	require.Equal(t, domain.EventRouteCreated, f.events[0].Kind)
}

func TestCreateRouteValidation(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	err := f.registry.CreateRoute(ctx, addr(0x66), moduleAddr, sellAddr, buyAddr, f.fwd, f.rev, slippage99, false)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	err = f.registry.CreateRoute(ctx, governor, common.Address{}, sellAddr, buyAddr, f.fwd, f.rev, slippage99, false)
	require.ErrorIs(t, err, domain.ErrZeroAddress)

	err = f.registry.CreateRoute(ctx, governor, moduleAddr, sellAddr, buyAddr, f.fwd, f.rev, domain.Fraction{}, false)
	require.ErrorIs(t, err, domain.ErrInvalidFraction)

	// Swapped paths fail endpoint validation in both directions.
	err = f.registry.CreateRoute(ctx, governor, moduleAddr, sellAddr, buyAddr, f.rev, f.fwd, slippage99, false)
	require.ErrorIs(t, err, domain.ErrInvalidPath)
}

func TestCreateRouteReactivatesDisabledCaller(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()
	f.createRoute(t, false)

	require.NoError(t, f.registry.Deactivate(ctx, governor, moduleAddr))

	f.createRoute(t, true)

	callers := f.registry.Callers()
	require.Len(t, callers, 1)
	require.True(t, callers[0].Active)

	f.sell.Mint(moduleAddr, big.NewInt(100))
	_, err := f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(100))
	require.NoError(t, err)
}

func TestCreateRouteOverride(t *testing.T) {
	f := newRegFixture(t)
	f.createRoute(t, false)

	err := f.registry.CreateRoute(context.Background(), governor, moduleAddr, sellAddr, buyAddr, f.fwd, f.rev, slippage99, false)
	require.ErrorIs(t, err, domain.ErrRouteExists)

	tighter := domain.MustFraction(995_000_000_000_000_000)
	err = f.registry.CreateRoute(context.Background(), governor, moduleAddr, sellAddr, buyAddr, f.fwd, f.rev, tighter, true)
	require.NoError(t, err)

	routes := f.registry.Routes()
	require.Len(t, routes, 1)
	require.Equal(t, tighter.String(), routes[0].Slippage.String())
}

func TestDeleteRoute(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	err := f.registry.DeleteRoute(ctx, governor, moduleAddr, sellAddr)
	require.ErrorIs(t, err, domain.ErrRouteNotFound)

	f.createRoute(t, false)
	require.NoError(t, f.registry.DeleteRoute(ctx, governor, moduleAddr, sellAddr))
	require.Empty(t, f.registry.Routes())
}

func TestActivationToggles(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()
	f.createRoute(t, false)

	require.ErrorIs(t, f.registry.Activate(ctx, governor, moduleAddr), domain.ErrAlreadyActive)
	require.NoError(t, f.registry.Deactivate(ctx, governor, moduleAddr))
	require.ErrorIs(t, f.registry.Deactivate(ctx, governor, moduleAddr), domain.ErrAlreadyInactive)
	require.NoError(t, f.registry.Activate(ctx, governor, moduleAddr))

	require.ErrorIs(t, f.registry.Activate(ctx, addr(0x66), moduleAddr), domain.ErrUnauthorized)
}

func TestTriggerGates(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	_, err := f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrCallerInactive)

	f.createRoute(t, false)

	_, err = f.registry.Trigger(ctx, moduleAddr, buyAddr, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrRouteNotFound)

	_, err = f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(0))
	require.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrInsufficient)

	require.NoError(t, f.registry.Deactivate(ctx, governor, moduleAddr))
	_, err = f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrCallerInactive)
}

func TestTriggerSwapsAndReturnsProceeds(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()
	f.createRoute(t, false)
	f.router.RateNum = big.NewInt(2)

	f.sell.Mint(moduleAddr, big.NewInt(1000))
	out, err := f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, "2000", out.String())

	require.Equal(t, "0", f.sell.BalanceOf(moduleAddr).String())
	require.Equal(t, "2000", f.buy.BalanceOf(moduleAddr).String())
	require.Equal(t, "0", f.sell.BalanceOf(regSelf).String())
	require.Equal(t, "0", f.buy.BalanceOf(regSelf).String())
	require.Equal(t, 1, f.router.Calls)

	routes := f.registry.Routes()
	require.Len(t, routes, 1)
	require.Equal(t, f.clock.Now().UTC(), routes[0].LastTriggeredAt)
}

func TestTriggerCooldown(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()
	f.createRoute(t, false)

	f.sell.Mint(moduleAddr, big.NewInt(200))
	_, err := f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(100))
	require.NoError(t, err)

	_, err = f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrCooldownActive)

	f.clock.Advance(DefaultCooldown)
	_, err = f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(100))
	require.ErrorIs(t, err, domain.ErrCooldownActive)

	f.clock.Advance(time.Second)
	_, err = f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(100))
	require.NoError(t, err)
}

func TestTriggerAbortsBelowSlippageFloor(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()
	f.createRoute(t, false)

	// Quote promises 2x but execution only delivers 1x, well under the 99%
	// floor of the quote.
	f.router.QuoteNum = big.NewInt(2)
	f.router.QuoteDen = big.NewInt(1)

	f.sell.Mint(moduleAddr, big.NewInt(1000))
	_, err := f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(1000))
	require.Error(t, err)
	require.Equal(t, "0", f.buy.BalanceOf(moduleAddr).String())
}

func TestTriggerFoldsResidueIntoNextSwap(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()
	f.createRoute(t, false)

	// First attempt pulls the sell asset, then aborts at the slippage floor,
	// stranding the pulled amount in the registry.
	f.router.QuoteNum = big.NewInt(2)
	f.router.QuoteDen = big.NewInt(1)
	f.sell.Mint(moduleAddr, big.NewInt(1000))
	_, err := f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(1000))
	require.Error(t, err)
	require.Equal(t, "1000", f.sell.BalanceOf(regSelf).String())

	f.router.QuoteNum = nil
	f.router.QuoteDen = nil
	f.sell.Mint(moduleAddr, big.NewInt(500))
	out, err := f.registry.Trigger(ctx, moduleAddr, sellAddr, big.NewInt(500))
	require.NoError(t, err)
	require.Equal(t, "1500", out.String())
	require.Equal(t, "0", f.sell.BalanceOf(regSelf).String())
}

func TestReapproveRouteRequiresRoute(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	err := f.registry.ReapproveRoute(ctx, governor, moduleAddr, sellAddr)
	require.ErrorIs(t, err, domain.ErrRouteNotFound)

	f.createRoute(t, false)
	require.NoError(t, f.registry.ReapproveRoute(ctx, governor, moduleAddr, sellAddr))
	require.ErrorIs(t, f.registry.ReapproveRoute(ctx, addr(0x66), moduleAddr, sellAddr), domain.ErrUnauthorized)
}
