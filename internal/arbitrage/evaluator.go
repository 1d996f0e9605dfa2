// Package arbitrage decides whether a two-venue price spread is profitable.
package arbitrage

import "github.com/shopspring/decimal"

// Params are the trade inputs shared by both quotes of one evaluation.
type Params struct {
	TradeAmount decimal.Decimal
	GasCost     decimal.Decimal
	MinProfit   decimal.Decimal
	Direction   Direction
	// Places rounds the profit to this many fractional digits before the
	// threshold check, so the compared value is the one a store keeps.
	// Zero keeps full precision.
	Places int32
}

// Profit returns (sell - buy) * TradeAmount - GasCost regardless of the
// threshold. With the default direction buy is priceA and sell is priceB.
func Profit(priceA, priceB decimal.Decimal, p Params) decimal.Decimal {
	buy, sell := priceA, priceB
	if p.Direction == DirectionBToA {
		buy, sell = priceB, priceA
	}
	profit := sell.Sub(buy).Mul(p.TradeAmount).Sub(p.GasCost)
	if p.Places > 0 {
		profit = profit.Round(p.Places)
	}
	return profit
}

// Evaluate returns the profit and true when it is strictly greater than
// MinProfit. Otherwise it returns zero and false.
func Evaluate(priceA, priceB decimal.Decimal, p Params) (decimal.Decimal, bool) {
	profit := Profit(priceA, priceB, p)
	if profit.GreaterThan(p.MinProfit) {
		return profit, true
	}
	return decimal.Zero, false
}
