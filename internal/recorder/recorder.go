// Package recorder persists every evaluation as a market snapshot and every
// qualifying evaluation as an arbitrage opportunity.
package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"spreadScope/internal/model"
	"spreadScope/internal/storage"
)

// PercentPlaces is the number of fractional digits kept for
// price_difference_percent.
const PercentPlaces = 4

var hundred = decimal.NewFromInt(100)

// Observation is one evaluation run: both venues' prices for the same trade
// amount, the raw profit, and the verdict.
type Observation struct {
	VenueA      string
	VenueB      string
	TokenIn     string
	TokenOut    string
	PriceA      decimal.Decimal
	PriceB      decimal.Decimal
	TradeAmount decimal.Decimal
	GasCost     decimal.Decimal
	// Profit is computed regardless of the threshold. Invalid only when no
	// evaluation could be computed.
	Profit      decimal.NullDecimal
	IsArbitrage bool
}

// Opportunity is a qualifying evaluation together with the threshold it cleared.
type Opportunity struct {
	VenueA    string
	VenueB    string
	TokenIn   string
	TokenOut  string
	PriceA    decimal.Decimal
	PriceB    decimal.Decimal
	Profit    decimal.Decimal
	MinProfit decimal.Decimal
}

// ErrorKind classifies a failed write.
type ErrorKind string

const (
	StoreUnavailable   ErrorKind = "store_unavailable"
	StoreWriteRejected ErrorKind = "store_write_rejected"
)

// StoreError is returned by the Record methods when a write fails.
type StoreError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Recorder writes observations to an ObservationStore. It holds no state
// between calls and is safe for concurrent use.
type Recorder struct {
	store  storage.ObservationStore
	logger *zap.Logger
}

// New builds a Recorder. A nil store is a programming error.
func New(store storage.ObservationStore, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger}
}

// Spread returns |priceA - priceB| and that difference as a percentage of
// priceA rounded to PercentPlaces. The percentage is zero when priceA is not
// positive.
func Spread(priceA, priceB decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	diff := priceA.Sub(priceB).Abs()
	if !priceA.IsPositive() {
		return diff, decimal.Zero
	}
	pct := diff.Mul(hundred).DivRound(priceA, PercentPlaces)
	return diff, pct
}

// RecordSnapshot writes one market snapshot for obs.
func (r *Recorder) RecordSnapshot(ctx context.Context, obs Observation) error {
	diff, pct := Spread(obs.PriceA, obs.PriceB)
	snap := &model.MarketSnapshot{
		DexA:                   obs.VenueA,
		DexB:                   obs.VenueB,
		TokenA:                 obs.TokenIn,
		TokenB:                 obs.TokenOut,
		DexAPrice:              obs.PriceA,
		DexBPrice:              obs.PriceB,
		PriceDifference:        diff,
		PriceDifferencePercent: pct,
		TradeAmount:            obs.TradeAmount,
		GasCost:                obs.GasCost,
		PotentialProfit:        obs.Profit,
		IsArbitrage:            obs.IsArbitrage,
	}

	if err := r.store.InsertSnapshot(ctx, snap); err != nil {
		return wrap("record snapshot", err)
	}

	r.logger.Debug("market snapshot recorded",
		zap.Int64("id", snap.ID),
		zap.String("price_difference", diff.String()),
		zap.String("price_difference_percent", pct.String()),
		zap.Bool("is_arbitrage", obs.IsArbitrage),
	)
	return nil
}

// RecordOpportunity writes one arbitrage opportunity. It refuses profits that,
// at the stored scale, do not strictly exceed opp.MinProfit.
func (r *Recorder) RecordOpportunity(ctx context.Context, opp Opportunity) error {
	if !opp.Profit.Round(model.AmountPlaces).GreaterThan(opp.MinProfit) {
		return &StoreError{
			Op:   "record opportunity",
			Kind: StoreWriteRejected,
			Err:  fmt.Errorf("%w: profit %s does not exceed minimum %s", storage.ErrInvalidInput, opp.Profit, opp.MinProfit),
		}
	}

	row := &model.ArbitrageOpportunity{
		DexA:   opp.VenueA,
		DexB:   opp.VenueB,
		TokenA: opp.TokenIn,
		TokenB: opp.TokenOut,
		PriceA: opp.PriceA,
		PriceB: opp.PriceB,
		Profit: opp.Profit,
	}
	if err := r.store.InsertOpportunity(ctx, row); err != nil {
		return wrap("record opportunity", err)
	}

	r.logger.Debug("arbitrage opportunity recorded", zap.Int64("id", row.ID), zap.String("profit", opp.Profit.String()))
	return nil
}

func wrap(op string, err error) error {
	kind := StoreUnavailable
	if errors.Is(err, storage.ErrWriteRejected) || errors.Is(err, storage.ErrInvalidInput) {
		kind = StoreWriteRejected
	}
	return &StoreError{Op: op, Kind: kind, Err: err}
}
