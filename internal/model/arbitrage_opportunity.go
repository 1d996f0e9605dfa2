package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArbitrageOpportunity is an evaluation whose profit cleared the threshold.
// It is stored independently of the snapshot of the same run.
type ArbitrageOpportunity struct {
	ID         int64           `json:"id"`
	DexA       string          `json:"dex_a"`
	DexB       string          `json:"dex_b"`
	TokenA     string          `json:"token_a"`
	TokenB     string          `json:"token_b"`
	PriceA     decimal.Decimal `json:"price_a"`
	PriceB     decimal.Decimal `json:"price_b"`
	Profit     decimal.Decimal `json:"profit"`
	DetectedAt time.Time       `json:"detected_at"`
}
