package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Router quotes swaps through a Uniswap V2 style router's getAmountsOut.
type Router struct {
	Address common.Address
	caller  ContractCaller
}

func NewRouter(address common.Address, caller ContractCaller) *Router {
	return &Router{Address: address, caller: caller}
}

// Quote returns the final output amount for amountIn along path, evaluated at
// block (nil means latest).
func (r *Router) Quote(ctx context.Context, amountIn *big.Int, path []common.Address, block *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("amount in must be positive")
	}
	if len(path) < 2 {
		return nil, fmt.Errorf("path needs at least two tokens, got %d", len(path))
	}

	routerABI, err := RouterABI()
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}

	values, err := callMethod(ctx, r.caller, r.Address, routerABI, "getAmountsOut", block, amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("router %s: %w", r.Address.Hex(), err)
	}

	amounts, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("router %s: unexpected amounts type %T", r.Address.Hex(), values[0])
	}
	if len(amounts) != len(path) {
		return nil, fmt.Errorf("router %s: got %d amounts for %d hop path", r.Address.Hex(), len(amounts), len(path))
	}

	out := amounts[len(amounts)-1]
	if out == nil || out.Sign() < 0 {
		return nil, fmt.Errorf("router %s: unusable output amount", r.Address.Hex())
	}
	return new(big.Int).Set(out), nil
}
