// Package liquidation implements the route registry and executor: governance
// registers a bounded swap route per (caller module, sell asset) pair, and an
// active caller may trigger execution of its route at most once per cooldown
// window. Execution pulls the sell asset from the caller, quotes the route,
// floors the output by the route's slippage tolerance, swaps, and returns the
// full proceeds to the caller.
package liquidation

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// Packed path layout: 20-byte token address, 3-byte pool fee, 20-byte token
// address, repeating for multi-hop routes.
const (
	pathAddrLen = common.AddressLength
	pathFeeLen  = 3
	pathHopLen  = pathAddrLen + pathFeeLen

	// MinPathLen is a single-hop path: tokenIn, fee, tokenOut.
	MinPathLen = pathAddrLen + pathFeeLen + pathAddrLen
)

// EncodePath packs tokens and pool fees into a path. len(fees) must be
// len(tokens)-1 and tokens must name at least two hops.
func EncodePath(tokens []common.Address, fees []uint32) ([]byte, error) {
	if len(tokens) < 2 || len(fees) != len(tokens)-1 {
		return nil, fmt.Errorf("liquidation: encode path: %w", domain.ErrInvalidPath)
	}
	path := make([]byte, 0, len(tokens)*pathAddrLen+len(fees)*pathFeeLen)
	for i, token := range tokens {
		path = append(path, token.Bytes()...)
		if i < len(fees) {
			fee := fees[i]
			if fee > 0xFFFFFF {
				return nil, fmt.Errorf("liquidation: encode path: fee %d overflows 3 bytes: %w", fee, domain.ErrInvalidPath)
			}
			path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return path, nil
}

// ValidatePath checks the structural layout of a packed path and that its
// endpoints are exactly from and to.
func ValidatePath(path []byte, from, to common.Address) error {
	if len(path) < MinPathLen {
		return fmt.Errorf("liquidation: path of %d bytes below minimum %d: %w", len(path), MinPathLen, domain.ErrInvalidPath)
	}
	if (len(path)-pathAddrLen)%pathHopLen != 0 {
		return fmt.Errorf("liquidation: path of %d bytes is not hop-aligned: %w", len(path), domain.ErrInvalidPath)
	}
	if !bytes.Equal(path[:pathAddrLen], from.Bytes()) {
		return fmt.Errorf("liquidation: path does not start at %s: %w", from, domain.ErrInvalidPath)
	}
	if !bytes.Equal(path[len(path)-pathAddrLen:], to.Bytes()) {
		return fmt.Errorf("liquidation: path does not end at %s: %w", to, domain.ErrInvalidPath)
	}
	return nil
}
