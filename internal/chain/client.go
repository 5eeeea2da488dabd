package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cadencefi/treasuryd/internal/crypto"
)

// ClientConfig carries the connection parameters for a Client.
type ClientConfig struct {
	RPCURL string
	Signer *crypto.Signer
	// ConfirmTimeout bounds the wait for a transaction receipt. Defaults to
	// two minutes.
	ConfirmTimeout time.Duration
	// GasLimit overrides gas estimation when non-zero.
	GasLimit uint64
	Logger   *slog.Logger
}

// Client wraps an Ethereum JSON-RPC connection and the operator signer. All
// contract bindings in this package transact and call through it.
type Client struct {
	eth            *ethclient.Client
	signer         *crypto.Signer
	confirmTimeout time.Duration
	gasLimit       uint64
	logger         *slog.Logger
}

// Dial connects to the RPC endpoint and verifies the chain ID matches the
// signer's.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Signer == nil {
		return nil, fmt.Errorf("chain: signer is required")
	}
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	if chainID.Cmp(cfg.Signer.ChainID()) != 0 {
		eth.Close()
		return nil, fmt.Errorf("chain: endpoint chain id %s does not match signer chain id %s", chainID, cfg.Signer.ChainID())
	}

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		eth:            eth,
		signer:         cfg.Signer,
		confirmTimeout: timeout,
		gasLimit:       cfg.GasLimit,
		logger:         logger.With(slog.String("component", "chain")),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Operator returns the signing account's address.
func (c *Client) Operator() common.Address {
	return c.signer.Address()
}

// bound creates a contract binding backed by this client.
func (c *Client) bound(addr common.Address, parsed abi.ABI) *bind.BoundContract {
	return bind.NewBoundContract(addr, parsed, c.eth, c.eth, c.eth)
}

// transact sends a state-changing call and waits for its receipt, failing on
// a reverted transaction.
func (c *Client) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...any) error {
	opts, err := c.signer.TransactOpts()
	if err != nil {
		return err
	}
	opts.Context = ctx
	opts.GasLimit = c.gasLimit

	tx, err := contract.Transact(opts, method, args...)
	if err != nil {
		return fmt.Errorf("chain: %s: %w", method, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.confirmTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		return fmt.Errorf("chain: waiting for %s (%s): %w", method, tx.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("chain: %s reverted (%s)", method, tx.Hash())
	}
	c.logger.Debug("transaction mined",
		slog.String("method", method),
		slog.String("tx", tx.Hash().Hex()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return nil
}

// callBig performs a read-only call returning a single uint256.
func (c *Client) callBig(ctx context.Context, contract *bind.BoundContract, method string, args ...any) (*big.Int, error) {
	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("chain: %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s: unexpected return type %T", method, out[0])
	}
	return v, nil
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
