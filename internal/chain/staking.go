package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

const stakingABIJSON = `[
	{"name":"stake","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"unstake","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"pendingGain","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var stakingABI = mustABI(stakingABIJSON)

// Staking is a live StakingPool bound to the staking contract.
type Staking struct {
	client   *Client
	addr     common.Address
	contract *bind.BoundContract
}

// NewStaking binds the staking contract at addr.
func NewStaking(client *Client, addr common.Address) *Staking {
	return &Staking{
		client:   client,
		addr:     addr,
		contract: client.bound(addr, stakingABI),
	}
}

// Address returns the staking contract address.
func (s *Staking) Address() common.Address { return s.addr }

func (s *Staking) Stake(ctx context.Context, amount *big.Int) error {
	return s.client.transact(ctx, s.contract, "stake", amount)
}

func (s *Staking) Unstake(ctx context.Context, amount *big.Int) error {
	return s.client.transact(ctx, s.contract, "unstake", amount)
}

func (s *Staking) StakedBalance(ctx context.Context, holder common.Address) (*big.Int, error) {
	return s.client.callBig(ctx, s.contract, "balanceOf", holder)
}

func (s *Staking) PendingRewardGain(ctx context.Context, holder common.Address) (*big.Int, error) {
	return s.client.callBig(ctx, s.contract, "pendingGain", holder)
}

var _ StakingPool = (*Staking)(nil)
