package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceQuote is the output amount one venue reports for a fixed input.
type PriceQuote struct {
	VenueID      string          `json:"venue_id"`
	TokenIn      string          `json:"token_in"`
	TokenOut     string          `json:"token_out"`
	AmountIn     decimal.Decimal `json:"amount_in"`
	AmountOut    decimal.Decimal `json:"amount_out"`
	RawAmountOut string          `json:"raw_amount_out,omitempty"`
	BlockNumber  uint64          `json:"block_number,omitempty"`
}

// Validate checks amount_in > 0 and amount_out >= 0.
func (q PriceQuote) Validate() error {
	if !q.AmountIn.IsPositive() {
		return fmt.Errorf("quote %s: amount in must be positive, got %s", q.VenueID, q.AmountIn)
	}
	if q.AmountOut.IsNegative() {
		return fmt.Errorf("quote %s: amount out must not be negative, got %s", q.VenueID, q.AmountOut)
	}
	return nil
}
