package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const poolABIJSON = `[
	{"name":"deposit","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"shares","type":"uint256"}],"outputs":[]},
	{"name":"totalSupply","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"totalAssets","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"pricePerShare","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var poolABI = mustABI(poolABIJSON)

// Pool is a live PoolGateway bound to the external yield pool contract.
type Pool struct {
	client   *Client
	addr     common.Address
	contract *bind.BoundContract
}

// NewPool binds the yield pool at addr.
func NewPool(client *Client, addr common.Address) *Pool {
	return &Pool{
		client:   client,
		addr:     addr,
		contract: client.bound(addr, poolABI),
	}
}

// Address returns the pool's contract address.
func (p *Pool) Address() common.Address { return p.addr }

func (p *Pool) Deposit(ctx context.Context, amount *big.Int) error {
	return p.client.transact(ctx, p.contract, "deposit", amount)
}

func (p *Pool) Withdraw(ctx context.Context, shares *big.Int) error {
	return p.client.transact(ctx, p.contract, "withdraw", shares)
}

func (p *Pool) TotalShares(ctx context.Context) (*big.Int, error) {
	return p.client.callBig(ctx, p.contract, "totalSupply")
}

func (p *Pool) SharesOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return p.client.callBig(ctx, p.contract, "balanceOf", holder)
}

func (p *Pool) TotalUnderlying(ctx context.Context) (*big.Int, error) {
	return p.client.callBig(ctx, p.contract, "totalAssets")
}

func (p *Pool) SpotPrice(ctx context.Context) (*big.Int, error) {
	return p.client.callBig(ctx, p.contract, "pricePerShare")
}

var _ PoolGateway = (*Pool)(nil)
