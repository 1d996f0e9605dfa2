package dex

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ToDecimal scales a raw on-chain integer amount by 10^-decimals.
func ToDecimal(value *big.Int, decimals uint8) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(decimals))
}

// FromDecimal converts a human amount into a raw on-chain integer with the
// given decimals. Amounts with more fractional digits than the token supports
// are rejected rather than truncated.
func FromDecimal(amount decimal.Decimal, decimals uint8) (*big.Int, error) {
	scaled := amount.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d fractional digits", amount, decimals)
	}
	return scaled.BigInt(), nil
}
