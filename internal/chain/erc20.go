package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
	{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

var erc20ABI = mustABI(erc20ABIJSON)

// ERC20 is a live Token bound to one contract address. State-changing calls
// are signed by the client's operator key.
type ERC20 struct {
	client   *Client
	addr     common.Address
	contract *bind.BoundContract
}

// NewERC20 binds an ERC-20 token at addr.
func NewERC20(client *Client, addr common.Address) *ERC20 {
	return &ERC20{
		client:   client,
		addr:     addr,
		contract: client.bound(addr, erc20ABI),
	}
}

func (t *ERC20) Address() common.Address { return t.addr }

func (t *ERC20) Decimals(ctx context.Context) (uint8, error) {
	var out []any
	if err := t.contract.Call(&bind.CallOpts{Context: ctx}, &out, "decimals"); err != nil {
		return 0, fmt.Errorf("chain: decimals: %w", err)
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chain: decimals: unexpected return type %T", out[0])
	}
	return d, nil
}

func (t *ERC20) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	return t.client.callBig(ctx, t.contract, "balanceOf", holder)
}

func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.client.callBig(ctx, t.contract, "allowance", owner, spender)
}

func (t *ERC20) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return t.client.transact(ctx, t.contract, "transfer", to, amount)
}

func (t *ERC20) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return t.client.transact(ctx, t.contract, "transferFrom", from, to, amount)
}

func (t *ERC20) Approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	return t.client.transact(ctx, t.contract, "approve", spender, amount)
}

// ERC20Source resolves live ERC20 bindings on demand, caching one per asset.
type ERC20Source struct {
	client *Client
	tokens map[common.Address]*ERC20
}

// NewERC20Source creates a TokenSource backed by client.
func NewERC20Source(client *Client) *ERC20Source {
	return &ERC20Source{client: client, tokens: make(map[common.Address]*ERC20)}
}

// Token returns the binding for asset, creating it on first use. Callers
// resolve tokens under their own engine guard, so no extra locking here.
func (s *ERC20Source) Token(asset common.Address) (Token, error) {
	if asset == (common.Address{}) {
		return nil, fmt.Errorf("chain: token: zero asset address")
	}
	if t, ok := s.tokens[asset]; ok {
		return t, nil
	}
	t := NewERC20(s.client, asset)
	s.tokens[asset] = t
	return t, nil
}

var (
	_ Token       = (*ERC20)(nil)
	_ TokenSource = (*ERC20Source)(nil)
)
