package runner

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spreadScope/internal/arbitrage"
	"spreadScope/internal/metrics"
	"spreadScope/internal/model"
	"spreadScope/internal/recorder"
	"spreadScope/internal/storage"
	"spreadScope/internal/storage/memory"
)

type fakeQuoter struct {
	out      *big.Int
	err      error
	failures int32
	calls    atomic.Int32
	blocks   []*big.Int
}

func (f *fakeQuoter) Quote(_ context.Context, amountIn *big.Int, path []common.Address, block *big.Int) (*big.Int, error) {
	n := f.calls.Add(1)
	if amountIn.Sign() <= 0 || len(path) != 2 {
		return nil, errors.New("bad request")
	}
	f.blocks = append(f.blocks, block)
	if n <= f.failures {
		return nil, errors.New("transient")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fixedBlock uint64

func (b fixedBlock) LatestBlockNumber(context.Context) (uint64, error) {
	return uint64(b), nil
}

type failingStore struct {
	snapshotErr    error
	opportunityErr error
}

func (s failingStore) InsertSnapshot(context.Context, *model.MarketSnapshot) error {
	return s.snapshotErr
}

func (s failingStore) InsertOpportunity(context.Context, *model.ArbitrageOpportunity) error {
	return s.opportunityErr
}

// usdc converts a whole-unit price into a 6-decimal raw amount.
func usdc(price string) *big.Int {
	return units(price, 6)
}

func units(price string, decimals int32) *big.Int {
	return decimal.RequireFromString(price).Shift(decimals).BigInt()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testConfig(a, b Quoter) RunConfig {
	return RunConfig{
		VenueA:           Venue{Name: "DEX_A", Quoter: a},
		VenueB:           Venue{Name: "DEX_B", Quoter: b},
		TokenIn:          common.HexToAddress("0x1"),
		TokenOut:         common.HexToAddress("0x2"),
		TokenInDecimals:  18,
		TokenOutDecimals: 6,
		TradeAmount:      dec("1"),
		GasCost:          dec("5"),
		MinProfit:        dec("1"),
		Direction:        arbitrage.DirectionAToB,
		Retry:            RetryPolicy{MaxRetries: 2, Backoff: time.Millisecond},
	}
}

func TestRunRecordsOpportunity(t *testing.T) {
	store := memory.NewStore()
	m := metrics.New()
	var out bytes.Buffer
	a := &fakeQuoter{out: usdc("2000")}
	b := &fakeQuoter{out: usdc("2010")}

	r := NewRunner(testConfig(a, b), fixedBlock(42), recorder.New(store, nil), m, nil, &out)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.True(t, res.IsArbitrage)
	assert.True(t, dec("5").Equal(res.Profit), res.Profit.String())
	assert.Equal(t, uint64(42), res.QuoteA.BlockNumber)
	assert.Equal(t, uint64(42), res.QuoteB.BlockNumber)
	assert.NotEmpty(t, res.RunID)

	snaps := store.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, "DEX_A", snaps[0].DexA)
	assert.True(t, dec("2000").Equal(snaps[0].DexAPrice))
	assert.True(t, dec("10").Equal(snaps[0].PriceDifference))
	assert.True(t, dec("0.5").Equal(snaps[0].PriceDifferencePercent))
	assert.True(t, snaps[0].IsArbitrage)

	opps := store.Opportunities()
	require.Len(t, opps, 1)
	assert.True(t, dec("5").Equal(opps[0].Profit))

	assert.Contains(t, out.String(), "Arbitrage opportunity")
	expected := `
# HELP spreadscope_runs_total Evaluation runs by terminal status
# TYPE spreadscope_runs_total counter
spreadscope_runs_total{status="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "spreadscope_runs_total"))
}

func TestRunNoOpportunity(t *testing.T) {
	store := memory.NewStore()
	var out bytes.Buffer
	a := &fakeQuoter{out: usdc("2000")}
	b := &fakeQuoter{out: usdc("2005")}

	r := NewRunner(testConfig(a, b), nil, recorder.New(store, nil), nil, nil, &out)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.False(t, res.IsArbitrage)
	assert.True(t, res.Profit.IsZero(), res.Profit.String())
	require.Len(t, store.Snapshots(), 1)
	assert.False(t, store.Snapshots()[0].IsArbitrage)
	assert.Empty(t, store.Opportunities())
	assert.Contains(t, out.String(), "No opportunity.")
	assert.Nil(t, a.blocks[0])
}

func TestRunQuoteFailureSkipsEvaluation(t *testing.T) {
	store := memory.NewStore()
	m := metrics.New()
	var out bytes.Buffer
	a := &fakeQuoter{out: usdc("2000")}
	b := &fakeQuoter{err: errors.New("execution reverted")}

	r := NewRunner(testConfig(a, b), fixedBlock(1), recorder.New(store, nil), m, nil, &out)
	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrQuoteFailure)

	assert.Equal(t, StatusNoEvaluation, res.Status)
	assert.Empty(t, store.Snapshots())
	assert.Empty(t, store.Opportunities())
	assert.Contains(t, out.String(), "Prices unavailable, no evaluation performed.")
	assert.Equal(t, int32(3), b.calls.Load())

	count, err := testutil.GatherAndCount(m.Registry(), "spreadscope_quote_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRunRetriesTransientQuoteErrors(t *testing.T) {
	a := &fakeQuoter{out: usdc("2000"), failures: 2}
	b := &fakeQuoter{out: usdc("2000")}

	r := NewRunner(testConfig(a, b), nil, nil, nil, nil, nil)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), a.calls.Load())
	assert.Equal(t, StatusSuccess, res.Status)
}

func TestRunPartialFailure(t *testing.T) {
	store := failingStore{opportunityErr: storage.ErrUnavailable}
	a := &fakeQuoter{out: usdc("2000")}
	b := &fakeQuoter{out: usdc("2010")}

	r := NewRunner(testConfig(a, b), nil, recorder.New(store, nil), nil, nil, nil)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartialFailure, res.Status)
	assert.NoError(t, res.SnapshotErr)

	var storeErr *recorder.StoreError
	require.ErrorAs(t, res.OpportunityErr, &storeErr)
	assert.Equal(t, recorder.StoreUnavailable, storeErr.Kind)
}

func TestRunSnapshotFailureDoesNotBlockOpportunity(t *testing.T) {
	store := failingStore{snapshotErr: storage.ErrWriteRejected}
	a := &fakeQuoter{out: usdc("2000")}
	b := &fakeQuoter{out: usdc("2010")}

	r := NewRunner(testConfig(a, b), nil, recorder.New(store, nil), nil, nil, nil)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPartialFailure, res.Status)
	assert.Error(t, res.SnapshotErr)
	assert.NoError(t, res.OpportunityErr)
}

func TestRunTotalFailure(t *testing.T) {
	store := failingStore{snapshotErr: storage.ErrUnavailable, opportunityErr: storage.ErrUnavailable}
	a := &fakeQuoter{out: usdc("2000")}
	b := &fakeQuoter{out: usdc("2010")}

	r := NewRunner(testConfig(a, b), nil, recorder.New(store, nil), nil, nil, nil)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusTotalFailure, res.Status)
}

func TestRunDirectionBToA(t *testing.T) {
	store := memory.NewStore()
	cfg := testConfig(&fakeQuoter{out: usdc("2010")}, &fakeQuoter{out: usdc("2000")})
	cfg.Direction = arbitrage.DirectionBToA

	r := NewRunner(cfg, nil, recorder.New(store, nil), nil, nil, nil)
	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.IsArbitrage)
	assert.True(t, dec("5").Equal(res.Profit), res.Profit.String())
	require.Len(t, store.Opportunities(), 1)
}

func TestRunEvaluatesAtStoredScale(t *testing.T) {
	cases := []struct {
		name     string
		priceB   string
		wantArb  bool
		wantB    string
		wantProf string
	}{
		{name: "sub-scale excess", priceB: "2015.000000001", wantArb: false, wantB: "2015", wantProf: "10"},
		{name: "one unit at scale", priceB: "2015.00000001", wantArb: true, wantB: "2015.00000001", wantProf: "10.00000001"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore()
			cfg := testConfig(&fakeQuoter{out: units("2000", 18)}, &fakeQuoter{out: units(tc.priceB, 18)})
			cfg.TokenOutDecimals = 18
			cfg.MinProfit = dec("10")

			r := NewRunner(cfg, nil, recorder.New(store, nil), nil, nil, nil)
			res, err := r.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tc.wantArb, res.IsArbitrage)
			assert.True(t, dec(tc.wantProf).Equal(res.Profit), res.Profit.String())
			assert.True(t, dec(tc.wantB).Equal(res.QuoteB.AmountOut), res.QuoteB.AmountOut.String())
			assert.Equal(t, units(tc.priceB, 18).String(), res.QuoteB.RawAmountOut)

			snaps := store.Snapshots()
			require.Len(t, snaps, 1)
			assert.True(t, dec(tc.wantB).Equal(snaps[0].DexBPrice))

			opps := store.Opportunities()
			if !tc.wantArb {
				assert.Empty(t, opps)
				return
			}
			require.Len(t, opps, 1)
			assert.True(t, opps[0].Profit.GreaterThan(cfg.MinProfit))
			assert.True(t, opps[0].Profit.Equal(opps[0].Profit.Round(model.AmountPlaces)))
		})
	}
}

func TestRunNilQuoterCountsAsNoEvaluation(t *testing.T) {
	m := metrics.New()
	r := NewRunner(testConfig(&fakeQuoter{out: usdc("2000")}, nil), nil, nil, m, nil, nil)

	res, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrQuoteFailure)
	assert.Equal(t, StatusNoEvaluation, res.Status)

	expected := `
# HELP spreadscope_runs_total Evaluation runs by terminal status
# TYPE spreadscope_runs_total counter
spreadscope_runs_total{status="no_evaluation"} 1
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "spreadscope_runs_total"))
}

func TestWithRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := withRetry(ctx, RetryPolicy{MaxRetries: 5, Backoff: time.Hour}, func(context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("boom")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithRetryReturnsLastError(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), RetryPolicy{MaxRetries: 1, Backoff: time.Millisecond}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	assert.Equal(t, 2, calls)
}
