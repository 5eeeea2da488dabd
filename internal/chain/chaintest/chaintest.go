// Package chaintest provides in-memory fakes for the chain interfaces. The
// fakes keep real balance ledgers so engine tests exercise actual value
// movement, fee-on-transfer behavior, and share-price drift instead of
// canned return values.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cadencefi/treasuryd/internal/chain"
)

// Asset is an in-memory token ledger. Bind it to a holder to obtain a
// chain.Token whose Transfer/Approve act for that holder.
type Asset struct {
	mu       sync.Mutex
	addr     common.Address
	decimals uint8
	balances map[common.Address]*big.Int
}

// NewAsset creates an empty ledger for a token at addr.
func NewAsset(addr common.Address, decimals uint8) *Asset {
	return &Asset{addr: addr, decimals: decimals, balances: make(map[common.Address]*big.Int)}
}

// Address returns the token address.
func (a *Asset) Address() common.Address { return a.addr }

// Mint credits amount to holder out of thin air.
func (a *Asset) Mint(holder common.Address, amount *big.Int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.credit(holder, amount)
}

// BalanceOf reads holder's balance.
func (a *Asset) BalanceOf(holder common.Address) *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.balance(holder))
}

// Move transfers amount between holders, failing on insufficient balance.
func (a *Asset) Move(from, to common.Address, amount *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.move(from, to, amount)
}

func (a *Asset) balance(holder common.Address) *big.Int {
	b, ok := a.balances[holder]
	if !ok {
		b = new(big.Int)
		a.balances[holder] = b
	}
	return b
}

func (a *Asset) credit(holder common.Address, amount *big.Int) {
	a.balance(holder).Add(a.balance(holder), amount)
}

func (a *Asset) move(from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("chaintest: negative transfer")
	}
	if a.balance(from).Cmp(amount) < 0 {
		return fmt.Errorf("chaintest: %s has %s of %s, needs %s", from, a.balance(from), a.addr, amount)
	}
	a.balance(from).Sub(a.balance(from), amount)
	a.credit(to, amount)
	return nil
}

// Bind returns a chain.Token acting on behalf of holder.
func (a *Asset) Bind(holder common.Address) chain.Token {
	return &boundToken{asset: a, holder: holder}
}

type boundToken struct {
	asset  *Asset
	holder common.Address
}

func (t *boundToken) Address() common.Address { return t.asset.addr }

func (t *boundToken) Decimals(context.Context) (uint8, error) { return t.asset.decimals, nil }

func (t *boundToken) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	return t.asset.BalanceOf(holder), nil
}

func (t *boundToken) Allowance(context.Context, common.Address, common.Address) (*big.Int, error) {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return max.Sub(max, big.NewInt(1)), nil
}

func (t *boundToken) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	return t.asset.Move(t.holder, to, amount)
}

func (t *boundToken) TransferFrom(_ context.Context, from, to common.Address, amount *big.Int) error {
	return t.asset.Move(from, to, amount)
}

func (t *boundToken) Approve(context.Context, common.Address, *big.Int) error { return nil }

// Source resolves bound tokens for the liquidation registry.
type Source struct {
	Holder common.Address
	Assets map[common.Address]*Asset
}

// Token returns the asset's ledger bound to the source holder.
func (s Source) Token(asset common.Address) (chain.Token, error) {
	a, ok := s.Assets[asset]
	if !ok {
		return nil, fmt.Errorf("chaintest: unknown asset %s", asset)
	}
	return a.Bind(s.Holder), nil
}

// Pool is a fake external yield pool with proportional share accounting and
// optional deposit/withdraw fees in basis points.
type Pool struct {
	mu sync.Mutex

	asset     *Asset
	addr      common.Address
	depositor common.Address

	shares          map[common.Address]*big.Int
	totalShares     *big.Int
	totalUnderlying *big.Int

	DepositFeeBps  int64
	WithdrawFeeBps int64
}

// NewPool creates a pool holding asset, with depositor as the account whose
// deposits and withdrawals move value.
func NewPool(asset *Asset, addr, depositor common.Address) *Pool {
	return &Pool{
		asset:           asset,
		addr:            addr,
		depositor:       depositor,
		shares:          make(map[common.Address]*big.Int),
		totalShares:     new(big.Int),
		totalUnderlying: new(big.Int),
	}
}

func (p *Pool) share(holder common.Address) *big.Int {
	s, ok := p.shares[holder]
	if !ok {
		s = new(big.Int)
		p.shares[holder] = s
	}
	return s
}

// Deposit pulls amount from the depositor, applies the deposit fee, and mints
// shares at the current share price.
func (p *Pool) Deposit(_ context.Context, amount *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.asset.Move(p.depositor, p.addr, amount); err != nil {
		return err
	}
	net := new(big.Int).Set(amount)
	if p.DepositFeeBps > 0 {
		fee := new(big.Int).Mul(amount, big.NewInt(p.DepositFeeBps))
		fee.Quo(fee, big.NewInt(10_000))
		net.Sub(net, fee)
	}
	var minted *big.Int
	if p.totalShares.Sign() == 0 {
		minted = new(big.Int).Set(net)
	} else {
		minted = new(big.Int).Mul(net, p.totalShares)
		minted.Quo(minted, p.totalUnderlying)
	}
	p.share(p.depositor).Add(p.share(p.depositor), minted)
	p.totalShares.Add(p.totalShares, minted)
	p.totalUnderlying.Add(p.totalUnderlying, net)
	return nil
}

// Withdraw burns shares and pays the depositor the proportional underlying,
// minus the withdraw fee.
func (p *Pool) Withdraw(_ context.Context, shares *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.share(p.depositor)
	if held.Cmp(shares) < 0 {
		return fmt.Errorf("chaintest: pool: %s shares held, %s requested", held, shares)
	}
	value := new(big.Int).Mul(shares, p.totalUnderlying)
	value.Quo(value, p.totalShares)

	held.Sub(held, shares)
	p.totalShares.Sub(p.totalShares, shares)
	p.totalUnderlying.Sub(p.totalUnderlying, value)

	net := new(big.Int).Set(value)
	if p.WithdrawFeeBps > 0 {
		fee := new(big.Int).Mul(value, big.NewInt(p.WithdrawFeeBps))
		fee.Quo(fee, big.NewInt(10_000))
		net.Sub(net, fee)
	}
	return p.asset.Move(p.addr, p.depositor, net)
}

func (p *Pool) TotalShares(context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.totalShares), nil
}

func (p *Pool) SharesOf(_ context.Context, holder common.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.share(holder)), nil
}

func (p *Pool) TotalUnderlying(context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.totalUnderlying), nil
}

func (p *Pool) SpotPrice(context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.totalShares.Sign() == 0 {
		return new(big.Int), nil
	}
	price := new(big.Int).Mul(p.totalUnderlying, big.NewInt(1_000_000_000_000_000_000))
	return price.Quo(price, p.totalShares), nil
}

// Accrue simulates external yield: underlying grows without new shares.
func (p *Pool) Accrue(amount *big.Int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asset.Mint(p.addr, amount)
	p.totalUnderlying.Add(p.totalUnderlying, amount)
}

// Staking is a fake staking contract paying reward-asset gains on unstake.
type Staking struct {
	mu sync.Mutex

	stakeAsset  *Asset
	rewardAsset *Asset
	addr        common.Address
	staker      common.Address

	staked  *big.Int
	pending *big.Int
}

// NewStaking creates a staking fake for a single staker account.
func NewStaking(stakeAsset, rewardAsset *Asset, addr, staker common.Address) *Staking {
	return &Staking{
		stakeAsset:  stakeAsset,
		rewardAsset: rewardAsset,
		addr:        addr,
		staker:      staker,
		staked:      new(big.Int),
		pending:     new(big.Int),
	}
}

func (s *Staking) Stake(_ context.Context, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.stakeAsset.Move(s.staker, s.addr, amount); err != nil {
		return err
	}
	s.staked.Add(s.staked, amount)
	return nil
}

// Unstake releases amount of the stake asset and pays out any pending reward
// gain, mirroring the external protocol's claim-on-unstake behavior.
func (s *Staking) Unstake(_ context.Context, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staked.Cmp(amount) < 0 {
		return fmt.Errorf("chaintest: staking: %s staked, %s requested", s.staked, amount)
	}
	if err := s.stakeAsset.Move(s.addr, s.staker, amount); err != nil {
		return err
	}
	s.staked.Sub(s.staked, amount)
	if s.pending.Sign() > 0 {
		s.rewardAsset.Mint(s.staker, s.pending)
		s.pending.SetInt64(0)
	}
	return nil
}

func (s *Staking) StakedBalance(_ context.Context, holder common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder != s.staker {
		return new(big.Int), nil
	}
	return new(big.Int).Set(s.staked), nil
}

func (s *Staking) PendingRewardGain(_ context.Context, holder common.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder != s.staker {
		return new(big.Int), nil
	}
	return new(big.Int).Set(s.pending), nil
}

// SetPending accrues a pending reward gain for the staker.
func (s *Staking) SetPending(amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Set(amount)
}

// Router is a fake swap router converting at a fixed rate expressed as
// RateNum/RateDen, enforcing the MinOut floor.
type Router struct {
	mu sync.Mutex

	addr   common.Address
	payer  common.Address
	assets map[common.Address]*Asset

	RateNum *big.Int
	RateDen *big.Int

	// QuoteNum/QuoteDen, when set, make quotes diverge from the execution
	// rate so slippage floors can be exercised.
	QuoteNum *big.Int
	QuoteDen *big.Int

	Calls      int
	QuoteCalls int
}

// NewRouter creates a router that pulls input from payer. The default rate
// is 1:1.
func NewRouter(addr, payer common.Address, assets map[common.Address]*Asset) *Router {
	return &Router{
		addr:    addr,
		payer:   payer,
		assets:  assets,
		RateNum: big.NewInt(1),
		RateDen: big.NewInt(1),
	}
}

// Address returns the router's contract address.
func (r *Router) Address() common.Address { return r.addr }

func (r *Router) convert(amountIn *big.Int) *big.Int {
	out := new(big.Int).Mul(amountIn, r.RateNum)
	return out.Quo(out, r.RateDen)
}

func (r *Router) QuoteExactInput(_ context.Context, path []byte, amountIn *big.Int) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.QuoteCalls++
	if r.QuoteNum != nil && r.QuoteDen != nil {
		out := new(big.Int).Mul(amountIn, r.QuoteNum)
		return out.Quo(out, r.QuoteDen), nil
	}
	return r.convert(amountIn), nil
}

func (r *Router) ExactInput(_ context.Context, params chain.SwapParams) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++

	sell := common.BytesToAddress(params.Path[:common.AddressLength])
	buy := common.BytesToAddress(params.Path[len(params.Path)-common.AddressLength:])
	sellAsset, ok := r.assets[sell]
	if !ok {
		return nil, fmt.Errorf("chaintest: router: unknown sell asset %s", sell)
	}
	buyAsset, ok := r.assets[buy]
	if !ok {
		return nil, fmt.Errorf("chaintest: router: unknown buy asset %s", buy)
	}

	out := r.convert(params.AmountIn)
	if params.MinOut != nil && out.Cmp(params.MinOut) < 0 {
		return nil, fmt.Errorf("chaintest: router: too little received: %s < %s", out, params.MinOut)
	}
	if err := sellAsset.Move(r.payer, r.addr, params.AmountIn); err != nil {
		return nil, err
	}
	buyAsset.Mint(params.Recipient, out)
	return out, nil
}

// Clock is a settable clock for deterministic cooldown tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at now.
func NewClock(now time.Time) *Clock { return &Clock{now: now} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	_ chain.PoolGateway = (*Pool)(nil)
	_ chain.StakingPool = (*Staking)(nil)
	_ chain.SwapRouter  = (*Router)(nil)
	_ chain.TokenSource = Source{}
)
