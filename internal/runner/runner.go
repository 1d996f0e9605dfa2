package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spreadScope/internal/arbitrage"
	"spreadScope/internal/dex"
	"spreadScope/internal/metrics"
	"spreadScope/internal/model"
	"spreadScope/internal/recorder"
)

// ErrQuoteFailure means at least one venue quote was unavailable, so no
// evaluation was performed.
var ErrQuoteFailure = errors.New("prices unavailable")

// PricesUnavailableMessage is printed whenever a run ends without evaluation.
const PricesUnavailableMessage = "Prices unavailable, no evaluation performed."

// Terminal run states.
const (
	StatusSuccess        = "success"
	StatusPartialFailure = "partial_failure"
	StatusTotalFailure   = "total_failure"
	StatusNoEvaluation   = "no_evaluation"
)

const (
	tableSnapshots     = "market_snapshots"
	tableOpportunities = "arbitrage_opportunities"
)

// Quoter returns the output amount for amountIn along path at block (nil
// means latest). *dex.Router satisfies it.
type Quoter interface {
	Quote(ctx context.Context, amountIn *big.Int, path []common.Address, block *big.Int) (*big.Int, error)
}

// BlockSource pins both quotes to one block height. *chain.Client satisfies it.
type BlockSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Recorder persists observations. *recorder.Recorder satisfies it.
type Recorder interface {
	RecordSnapshot(ctx context.Context, obs recorder.Observation) error
	RecordOpportunity(ctx context.Context, opp recorder.Opportunity) error
}

// Venue is one named price source.
type Venue struct {
	Name   string
	Quoter Quoter
}

// RunConfig holds the inputs of one evaluation.
type RunConfig struct {
	VenueA           Venue
	VenueB           Venue
	TokenIn          common.Address
	TokenOut         common.Address
	TokenInDecimals  uint8
	TokenOutDecimals uint8
	TradeAmount      decimal.Decimal
	GasCost          decimal.Decimal
	MinProfit        decimal.Decimal
	Direction        arbitrage.Direction
	Retry            RetryPolicy
}

// Result describes how a run ended.
type Result struct {
	RunID          string
	Status         string
	QuoteA         model.PriceQuote
	QuoteB         model.PriceQuote
	Profit         decimal.Decimal
	IsArbitrage    bool
	SnapshotErr    error
	OpportunityErr error
}

// Runner sequences fetch, evaluate, and record for one run.
type Runner struct {
	cfg      RunConfig
	blocks   BlockSource
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *zap.Logger
	out      io.Writer
}

// NewRunner builds a Runner. blocks, rec, and m may be nil: without a block
// source quotes use the latest state, without a recorder nothing is persisted.
func NewRunner(cfg RunConfig, blocks BlockSource, rec Recorder, m *metrics.Metrics, logger *zap.Logger, out io.Writer) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{
		cfg:      cfg,
		blocks:   blocks,
		recorder: rec,
		metrics:  m,
		logger:   logger,
		out:      out,
	}
}

// Run performs one evaluation. It returns an error wrapping ErrQuoteFailure
// when either price is unavailable; store failures are reported in Result
// and never returned.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}
	logger := r.logger.With(zap.String("run_id", res.RunID))

	if r.cfg.VenueA.Quoter == nil || r.cfg.VenueB.Quoter == nil {
		res.Status = StatusNoEvaluation
		r.finish(res.Status)
		return res, fmt.Errorf("%w: venue quoter is nil", ErrQuoteFailure)
	}

	quoteA, quoteB, err := r.fetchQuotes(ctx, logger)
	if err != nil {
		res.Status = StatusNoEvaluation
		r.finish(res.Status)
		logger.Warn("prices unavailable, no evaluation performed", zap.Error(err))
		fmt.Fprintln(r.out, PricesUnavailableMessage)
		return res, err
	}
	res.QuoteA, res.QuoteB = quoteA, quoteB

	params := arbitrage.Params{
		TradeAmount: r.cfg.TradeAmount,
		GasCost:     r.cfg.GasCost,
		MinProfit:   r.cfg.MinProfit,
		Direction:   r.cfg.Direction,
		Places:      model.AmountPlaces,
	}
	priceA, priceB := quoteA.AmountOut, quoteB.AmountOut
	res.Profit = arbitrage.Profit(priceA, priceB, params)
	_, res.IsArbitrage = arbitrage.Evaluate(priceA, priceB, params)

	_, pct := recorder.Spread(priceA, priceB)
	if r.metrics != nil {
		r.metrics.Observed(pct, res.Profit, res.IsArbitrage)
	}

	logger.Info("evaluation complete",
		zap.String("venue_a", r.cfg.VenueA.Name),
		zap.String("venue_b", r.cfg.VenueB.Name),
		zap.String("price_a", priceA.String()),
		zap.String("price_b", priceB.String()),
		zap.String("price_difference_percent", pct.String()),
		zap.String("profit", res.Profit.String()),
		zap.String("direction", string(r.cfg.Direction)),
		zap.Bool("is_arbitrage", res.IsArbitrage),
	)
	r.report(res)

	res.Status = r.record(ctx, logger, &res)
	r.finish(res.Status)
	return res, nil
}

func (r *Runner) fetchQuotes(ctx context.Context, logger *zap.Logger) (model.PriceQuote, model.PriceQuote, error) {
	amountIn, err := dex.FromDecimal(r.cfg.TradeAmount, r.cfg.TokenInDecimals)
	if err != nil {
		return model.PriceQuote{}, model.PriceQuote{}, fmt.Errorf("%w: %w", ErrQuoteFailure, err)
	}

	var block *big.Int
	if r.blocks != nil {
		height, err := withRetry(ctx, r.cfg.Retry, r.blocks.LatestBlockNumber)
		if err != nil {
			logger.Warn("block number unavailable, quoting latest state", zap.Error(err))
		} else {
			block = new(big.Int).SetUint64(height)
		}
	}

	path := []common.Address{r.cfg.TokenIn, r.cfg.TokenOut}
	var outA, outB *big.Int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := r.quote(gctx, logger, r.cfg.VenueA, amountIn, path, block)
		outA = out
		return err
	})
	g.Go(func() error {
		out, err := r.quote(gctx, logger, r.cfg.VenueB, amountIn, path, block)
		outB = out
		return err
	})
	if err := g.Wait(); err != nil {
		return model.PriceQuote{}, model.PriceQuote{}, fmt.Errorf("%w: %w", ErrQuoteFailure, err)
	}

	quoteA := r.buildQuote(r.cfg.VenueA.Name, outA, block)
	quoteB := r.buildQuote(r.cfg.VenueB.Name, outB, block)
	for _, q := range []model.PriceQuote{quoteA, quoteB} {
		if err := q.Validate(); err != nil {
			return model.PriceQuote{}, model.PriceQuote{}, fmt.Errorf("%w: %w", ErrQuoteFailure, err)
		}
	}
	return quoteA, quoteB, nil
}

func (r *Runner) quote(ctx context.Context, logger *zap.Logger, venue Venue, amountIn *big.Int, path []common.Address, block *big.Int) (*big.Int, error) {
	out, err := withRetry(ctx, r.cfg.Retry, func(ctx context.Context) (*big.Int, error) {
		out, err := venue.Quoter.Quote(ctx, amountIn, path, block)
		if err != nil && ctx.Err() == nil {
			logger.Warn("quote failed", zap.String("venue", venue.Name), zap.Error(err))
		}
		return out, err
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) && r.metrics != nil {
			r.metrics.QuoteFailed(venue.Name)
		}
		return nil, fmt.Errorf("%s: %w", venue.Name, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%s: empty quote", venue.Name)
	}
	return out, nil
}

// buildQuote scales out to token units at the stored scale. RawAmountOut keeps
// the exact router value.
func (r *Runner) buildQuote(venue string, out *big.Int, block *big.Int) model.PriceQuote {
	q := model.PriceQuote{
		VenueID:      venue,
		TokenIn:      r.cfg.TokenIn.Hex(),
		TokenOut:     r.cfg.TokenOut.Hex(),
		AmountIn:     r.cfg.TradeAmount,
		AmountOut:    dex.ToDecimal(out, r.cfg.TokenOutDecimals).Round(model.AmountPlaces),
		RawAmountOut: out.String(),
	}
	if block != nil {
		q.BlockNumber = block.Uint64()
	}
	return q
}

// record writes the snapshot and, when qualifying, the opportunity. Both
// writes use the same quote pair and run concurrently; neither failure stops
// the other.
func (r *Runner) record(ctx context.Context, logger *zap.Logger, res *Result) string {
	if r.recorder == nil {
		logger.Debug("no store configured, skipping recording")
		return StatusSuccess
	}

	obs := recorder.Observation{
		VenueA:      r.cfg.VenueA.Name,
		VenueB:      r.cfg.VenueB.Name,
		TokenIn:     res.QuoteA.TokenIn,
		TokenOut:    res.QuoteA.TokenOut,
		PriceA:      res.QuoteA.AmountOut,
		PriceB:      res.QuoteB.AmountOut,
		TradeAmount: r.cfg.TradeAmount,
		GasCost:     r.cfg.GasCost,
		Profit:      decimal.NewNullDecimal(res.Profit),
		IsArbitrage: res.IsArbitrage,
	}

	var g errgroup.Group
	g.Go(func() error {
		res.SnapshotErr = r.recorder.RecordSnapshot(ctx, obs)
		return nil
	})
	if res.IsArbitrage {
		g.Go(func() error {
			res.OpportunityErr = r.recorder.RecordOpportunity(ctx, recorder.Opportunity{
				VenueA:    obs.VenueA,
				VenueB:    obs.VenueB,
				TokenIn:   obs.TokenIn,
				TokenOut:  obs.TokenOut,
				PriceA:    obs.PriceA,
				PriceB:    obs.PriceB,
				Profit:    res.Profit,
				MinProfit: r.cfg.MinProfit,
			})
			return nil
		})
	}
	_ = g.Wait()

	attempted, failed := 1, 0
	if res.SnapshotErr != nil {
		failed++
		logger.Warn("failed to record market snapshot", zap.Error(res.SnapshotErr))
	}
	if r.metrics != nil {
		r.metrics.StoreWrite(tableSnapshots, res.SnapshotErr)
	}
	if res.IsArbitrage {
		attempted++
		if res.OpportunityErr != nil {
			failed++
			logger.Warn("failed to record arbitrage opportunity", zap.Error(res.OpportunityErr))
		}
		if r.metrics != nil {
			r.metrics.StoreWrite(tableOpportunities, res.OpportunityErr)
		}
	}

	switch {
	case failed == 0:
		return StatusSuccess
	case failed == attempted:
		return StatusTotalFailure
	default:
		return StatusPartialFailure
	}
}

func (r *Runner) report(res Result) {
	fmt.Fprintf(r.out, "%s: %s, %s: %s\n",
		r.cfg.VenueA.Name, res.QuoteA.AmountOut, r.cfg.VenueB.Name, res.QuoteB.AmountOut)
	if !res.IsArbitrage {
		fmt.Fprintln(r.out, "No opportunity.")
		return
	}
	fmt.Fprintf(r.out, "Arbitrage opportunity (%s): %s -> %s, %s -> %s, profit %s\n",
		r.cfg.Direction, r.cfg.VenueA.Name, r.cfg.VenueB.Name,
		res.QuoteA.TokenIn, res.QuoteA.TokenOut, res.Profit.StringFixed(8))
}

func (r *Runner) finish(status string) {
	if r.metrics != nil {
		r.metrics.RunFinished(status)
	}
}
