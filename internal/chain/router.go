package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const routerABIJSON = `[
	{"name":"exactInput","type":"function","stateMutability":"payable","inputs":[
		{"name":"params","type":"tuple","components":[
			{"name":"path","type":"bytes"},
			{"name":"recipient","type":"address"},
			{"name":"deadline","type":"uint256"},
			{"name":"amountIn","type":"uint256"},
			{"name":"amountOutMinimum","type":"uint256"}
		]}
	],"outputs":[{"name":"amountOut","type":"uint256"}]}
]`

const quoterABIJSON = `[
	{"name":"quoteExactInput","type":"function","stateMutability":"view","inputs":[
		{"name":"path","type":"bytes"},
		{"name":"amountIn","type":"uint256"}
	],"outputs":[{"name":"amountOut","type":"uint256"}]}
]`

var (
	routerABI = mustABI(routerABIJSON)
	quoterABI = mustABI(quoterABIJSON)
)

// exactInputParams mirrors the router's tuple argument for abi packing.
type exactInputParams struct {
	Path             []byte
	Recipient        common.Address
	Deadline         *big.Int
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// Router is a live SwapRouter bound to a V3-style swap router and its quoter.
// When no quoter address is configured, quotes fall back to the router
// address, which works against routers exposing the quote method themselves.
type Router struct {
	client *Client
	addr   common.Address
	router *bind.BoundContract
	quoter *bind.BoundContract
}

// NewRouter binds the swap router at addr and the quoter at quoterAddr.
func NewRouter(client *Client, addr, quoterAddr common.Address) *Router {
	if quoterAddr == (common.Address{}) {
		quoterAddr = addr
	}
	return &Router{
		client: client,
		addr:   addr,
		router: client.bound(addr, routerABI),
		quoter: client.bound(quoterAddr, quoterABI),
	}
}

// Address returns the router's contract address, the spender for route
// allowances.
func (r *Router) Address() common.Address { return r.addr }

func (r *Router) QuoteExactInput(ctx context.Context, path []byte, amountIn *big.Int) (*big.Int, error) {
	return r.client.callBig(ctx, r.quoter, "quoteExactInput", path, amountIn)
}

// ExactInput executes the swap and reports the realized output as the change
// in the recipient's buy-asset balance across the transaction.
func (r *Router) ExactInput(ctx context.Context, params SwapParams) (*big.Int, error) {
	if len(params.Path) < common.AddressLength {
		return nil, fmt.Errorf("chain: exactInput: path too short")
	}
	buyAsset := common.BytesToAddress(params.Path[len(params.Path)-common.AddressLength:])
	buyToken := NewERC20(r.client, buyAsset)

	before, err := buyToken.BalanceOf(ctx, params.Recipient)
	if err != nil {
		return nil, err
	}

	err = r.client.transact(ctx, r.router, "exactInput", exactInputParams{
		Path:             params.Path,
		Recipient:        params.Recipient,
		Deadline:         big.NewInt(params.Deadline.Unix()),
		AmountIn:         params.AmountIn,
		AmountOutMinimum: params.MinOut,
	})
	if err != nil {
		return nil, err
	}

	after, err := buyToken.BalanceOf(ctx, params.Recipient)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Sub(after, before)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out, nil
}

var _ SwapRouter = (*Router)(nil)
