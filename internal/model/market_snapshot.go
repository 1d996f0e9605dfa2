package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountPlaces is the number of fractional digits kept for stored prices,
// amounts, and profits.
const AmountPlaces = 8

// MarketSnapshot is one recorded evaluation, qualifying or not.
// ID and SnapshotAt are assigned by the store.
type MarketSnapshot struct {
	ID                     int64               `json:"id"`
	DexA                   string              `json:"dex_a"`
	DexB                   string              `json:"dex_b"`
	TokenA                 string              `json:"token_a"`
	TokenB                 string              `json:"token_b"`
	DexAPrice              decimal.Decimal     `json:"dex_a_price"`
	DexBPrice              decimal.Decimal     `json:"dex_b_price"`
	PriceDifference        decimal.Decimal     `json:"price_difference"`
	PriceDifferencePercent decimal.Decimal     `json:"price_difference_percent"`
	TradeAmount            decimal.Decimal     `json:"trade_amount"`
	GasCost                decimal.Decimal     `json:"gas_cost"`
	PotentialProfit        decimal.NullDecimal `json:"potential_profit"`
	IsArbitrage            bool                `json:"is_arbitrage"`
	SnapshotAt             time.Time           `json:"snapshot_at"`
}
