package accounting

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/cadencefi/treasuryd/internal/chain/chaintest"
	"github.com/cadencefi/treasuryd/internal/domain"
)

func addr(b byte) common.Address {
	var a common.Address
	a[common.AddressLength-1] = b
	return a
}

var (
	selfAddr     = addr(0x01)
	lpAddr       = addr(0x02)
	poolAddr     = addr(0x03)
	receiverAddr = addr(0x04)
	baseAddr     = addr(0xA1)
)

type fixture struct {
	adapter *Adapter
	base    *chaintest.Asset
	pool    *chaintest.Pool
	events  []domain.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.base = chaintest.NewAsset(baseAddr, 18)
	f.pool = chaintest.NewPool(f.base, poolAddr, selfAddr)

	adapter, err := New(Config{
		Self:      selfAddr,
		LP:        lpAddr,
		Spenders:  []common.Address{addr(0x05)},
		Gateway:   f.pool,
		BaseAsset: f.base.Bind(selfAddr),
		Events:    domain.EventSinkFunc(func(e domain.Event) { f.events = append(f.events, e) }),
	})
	require.NoError(t, err)
	f.adapter = adapter
	return f
}

func (f *fixture) deposit(t *testing.T, amount int64, feeHint bool) *big.Int {
	t.Helper()
	f.base.Mint(selfAddr, big.NewInt(amount))
	credited, err := f.adapter.Deposit(context.Background(), lpAddr, baseAddr, big.NewInt(amount), feeHint)
	require.NoError(t, err)
	return credited
}

func TestDepositCreditsLedger(t *testing.T) {
	f := newFixture(t)

	credited := f.deposit(t, 1000, false)
	require.Equal(t, "1000", credited.String())

	balance, err := f.adapter.CheckBalance(baseAddr)
	require.NoError(t, err)
	require.Equal(t, "1000", balance.String())

	underlying, err := f.pool.TotalUnderlying(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1000", underlying.String())
	require.Equal(t, "0", f.base.BalanceOf(selfAddr).String())

	require.Len(t, f.events, 1)
	require.Equal(t, domain.EventDeposit, f.events[0].Kind)
}

func TestDepositFeeHintCreditsObservedDelta(t *testing.T) {
	f := newFixture(t)
	f.pool.DepositFeeBps = 100 // 1%

	credited := f.deposit(t, 1000, true)
	require.Equal(t, "990", credited.String())

	balance, err := f.adapter.CheckBalance(baseAddr)
	require.NoError(t, err)
	require.Equal(t, "990", balance.String())
}

func TestDepositWithoutHintIgnoresFee(t *testing.T) {
	// Without the hint the full requested amount is credited even when the
	// pool quietly takes a cut; the hint is the caller's promise to care.
	f := newFixture(t)
	f.pool.DepositFeeBps = 100

	credited := f.deposit(t, 1000, false)
	require.Equal(t, "1000", credited.String())
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.base.Mint(selfAddr, big.NewInt(10))

	_, err := f.adapter.Deposit(ctx, addr(0x66), baseAddr, big.NewInt(10), false)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.adapter.Deposit(ctx, lpAddr, addr(0x77), big.NewInt(10), false)
	require.ErrorIs(t, err, domain.ErrAssetMismatch)

	_, err = f.adapter.Deposit(ctx, lpAddr, baseAddr, big.NewInt(0), false)
	require.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = f.adapter.Deposit(ctx, lpAddr, baseAddr, nil, false)
	require.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, 1000, false)

	paid, err := f.adapter.WithdrawTo(ctx, lpAddr, receiverAddr, baseAddr, big.NewInt(400), false)
	require.NoError(t, err)
	require.Equal(t, "400", paid.String())
	require.Equal(t, "400", f.base.BalanceOf(receiverAddr).String())

	balance, err := f.adapter.CheckBalance(baseAddr)
	require.NoError(t, err)
	require.Equal(t, "600", balance.String())
}

func TestWithdrawRoundsSharesUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, 1000, false)
	f.pool.Accrue(big.NewInt(333)) // share price now 1.333

	paid, err := f.adapter.WithdrawTo(ctx, lpAddr, receiverAddr, baseAddr, big.NewInt(100), false)
	require.NoError(t, err)

	// ceil(100*1000/1333) = 76 shares release 101 underlying: the receiver
	// gets exactly 100 and the residue stays idle in the adapter.
	require.Equal(t, "100", paid.String())
	require.Equal(t, "100", f.base.BalanceOf(receiverAddr).String())
	require.Equal(t, "1", f.base.BalanceOf(selfAddr).String())

	shares, err := f.pool.SharesOf(ctx, selfAddr)
	require.NoError(t, err)
	require.Equal(t, "924", shares.String())
}

func TestWithdrawFeeHintPassesShortfallOn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.pool.WithdrawFeeBps = 5000 // 50%
	f.deposit(t, 1000, false)

	paid, err := f.adapter.WithdrawTo(ctx, lpAddr, receiverAddr, baseAddr, big.NewInt(100), true)
	require.NoError(t, err)
	require.Equal(t, "50", paid.String())
	require.Equal(t, "50", f.base.BalanceOf(receiverAddr).String())

	balance, err := f.adapter.CheckBalance(baseAddr)
	require.NoError(t, err)
	require.Equal(t, "950", balance.String())
}

func TestWithdrawWithoutHintPaysFullFromIdleBuffer(t *testing.T) {
	// Without the hint the payout is never capped at what the pool released:
	// the caller asserted there is no fee, so any shortfall is covered by the
	// adapter's idle buffer instead of being passed to the receiver.
	f := newFixture(t)
	ctx := context.Background()
	f.pool.WithdrawFeeBps = 1000 // 10%
	f.deposit(t, 1000, false)

	// Pull 200, pay out 100: the 180 released leaves an 80 idle buffer.
	paid, err := f.adapter.Withdraw(ctx, lpAddr, receiverAddr, baseAddr, big.NewInt(100), big.NewInt(200), false)
	require.NoError(t, err)
	require.Equal(t, "100", paid.String())
	require.Equal(t, "80", f.base.BalanceOf(selfAddr).String())

	// The next withdrawal releases only 90 net; the buffer makes up the rest
	// and the receiver still gets the full amount.
	paid, err = f.adapter.WithdrawTo(ctx, lpAddr, receiverAddr, baseAddr, big.NewInt(100), false)
	require.NoError(t, err)
	require.Equal(t, "100", paid.String())
	require.Equal(t, "200", f.base.BalanceOf(receiverAddr).String())
	require.Equal(t, "70", f.base.BalanceOf(selfAddr).String())

	balance, err := f.adapter.CheckBalance(baseAddr)
	require.NoError(t, err)
	require.Equal(t, "800", balance.String())
}

func TestWithdrawSurplusStaysIdle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, 1000, false)

	paid, err := f.adapter.Withdraw(ctx, lpAddr, receiverAddr, baseAddr, big.NewInt(400), big.NewInt(1000), false)
	require.NoError(t, err)
	require.Equal(t, "400", paid.String())
	require.Equal(t, "600", f.base.BalanceOf(selfAddr).String())

	balance, err := f.adapter.CheckBalance(baseAddr)
	require.NoError(t, err)
	require.Equal(t, "600", balance.String())

	// The idle buffer moves through the raw path without touching the ledger.
	require.NoError(t, f.adapter.WithdrawRaw(ctx, lpAddr, receiverAddr, baseAddr, big.NewInt(600)))
	require.Equal(t, "1000", f.base.BalanceOf(receiverAddr).String())

	balance, err = f.adapter.CheckBalance(baseAddr)
	require.NoError(t, err)
	require.Equal(t, "600", balance.String())
}

func TestWithdrawValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deposit(t, 1000, false)

	_, err := f.adapter.WithdrawTo(ctx, addr(0x66), receiverAddr, baseAddr, big.NewInt(10), false)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.adapter.WithdrawTo(ctx, lpAddr, common.Address{}, baseAddr, big.NewInt(10), false)
	require.ErrorIs(t, err, domain.ErrZeroAddress)

	_, err = f.adapter.WithdrawTo(ctx, lpAddr, receiverAddr, addr(0x77), big.NewInt(10), false)
	require.ErrorIs(t, err, domain.ErrAssetMismatch)

	_, err = f.adapter.WithdrawTo(ctx, lpAddr, receiverAddr, baseAddr, big.NewInt(0), false)
	require.ErrorIs(t, err, domain.ErrZeroAmount)

	_, err = f.adapter.Withdraw(ctx, lpAddr, receiverAddr, baseAddr, big.NewInt(20), big.NewInt(10), false)
	require.Error(t, err)
}

func TestLedgerConservationAcrossCycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expected := new(big.Int)
	for i := 0; i < 5; i++ {
		f.deposit(t, 700, false)
		expected.Add(expected, big.NewInt(700))

		_, err := f.adapter.WithdrawTo(ctx, lpAddr, receiverAddr, baseAddr, big.NewInt(300), false)
		require.NoError(t, err)
		expected.Sub(expected, big.NewInt(300))

		balance, err := f.adapter.CheckBalance(baseAddr)
		require.NoError(t, err)
		require.Equal(t, expected.String(), balance.String())
	}
}

func TestInitializeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.adapter.Initialize(ctx))
	require.ErrorIs(t, f.adapter.Initialize(ctx), domain.ErrAlreadyInitialized)
}

func TestCheckBalanceRejectsOtherAssets(t *testing.T) {
	f := newFixture(t)
	_, err := f.adapter.CheckBalance(addr(0x77))
	require.ErrorIs(t, err, domain.ErrAssetMismatch)
}
