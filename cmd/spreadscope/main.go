package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"spreadScope/internal/arbitrage"
	"spreadScope/internal/chain"
	"spreadScope/internal/config"
	"spreadScope/internal/dex"
	"spreadScope/internal/metrics"
	"spreadScope/internal/recorder"
	"spreadScope/internal/runner"
	"spreadScope/internal/storage"
	"spreadScope/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "spreadscope",
		Short:        "Two-venue DEX price spread evaluator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Quote both venues once and record the spread",
		RunE:  runEvaluate,
	}

	runCmd.Flags().String("rpc", "", "EVM RPC URL")
	runCmd.Flags().String("dex-a-router", "", "venue A router address")
	runCmd.Flags().String("dex-b-router", "", "venue B router address")
	runCmd.Flags().String("dex-a-name", "DEX_A", "venue A label")
	runCmd.Flags().String("dex-b-name", "DEX_B", "venue B label")
	runCmd.Flags().String("token-a", "", "input token address")
	runCmd.Flags().String("token-b", "", "output (quote) token address")
	runCmd.Flags().Int("token-a-decimals", config.AutoDecimals, "input token decimals, -1 reads them on-chain")
	runCmd.Flags().Int("token-b-decimals", config.AutoDecimals, "output token decimals, -1 reads them on-chain")
	runCmd.Flags().String("min-profit", "", "minimum profit in quote token units")
	runCmd.Flags().String("trade-amount", "", "trade amount in input token units")
	runCmd.Flags().String("gas-cost", "", "gas cost in quote token units")
	runCmd.Flags().String("direction", "a-to-b", "trade direction (a-to-b, b-to-a)")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN (defaults to DATABASE_URL)")
	runCmd.Flags().String("store", config.StoreAuto, "store backend (auto, postgres, jsonl, none)")
	runCmd.Flags().String("out-dir", "./data", "output directory for the jsonl store")
	runCmd.Flags().String("metrics-file", "", "optional prometheus textfile path")
	runCmd.Flags().Int("max-retries", 3, "maximum retry attempts per RPC call")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Duration("timeout", 30*time.Second, "overall run timeout")

	root.AddCommand(runCmd)

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the snapshot and opportunity tables",
		RunE:  runMigrate,
	}

	migrateCmd.Flags().String("pg-dsn", "", "Postgres DSN (defaults to DATABASE_URL)")

	root.AddCommand(migrateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	direction, err := arbitrage.ParseDirection(cfg.Direction)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	routerA, _ := config.ParseAddress(cfg.DexARouter)
	routerB, _ := config.ParseAddress(cfg.DexBRouter)
	tokenA, _ := config.ParseAddress(cfg.TokenA)
	tokenB, _ := config.ParseAddress(cfg.TokenB)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	if chainID, err := chainClient.ChainID(ctx); err != nil {
		logger.Warn("chain id unavailable", zap.Error(err))
	} else {
		logger = logger.With(zap.String("chain_id", chainID.String()))
	}

	decimalsA, decimalsB, err := resolveDecimals(ctx, cmd.OutOrStdout(), chainClient, cfg, tokenA, tokenB, logger)
	if err != nil {
		return err
	}

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	var rec runner.Recorder
	if store != nil {
		rec = recorder.New(store, logger)
	}

	m := metrics.New()
	r := runner.NewRunner(runner.RunConfig{
		VenueA:           runner.Venue{Name: cfg.DexAName, Quoter: dex.NewRouter(routerA, chainClient)},
		VenueB:           runner.Venue{Name: cfg.DexBName, Quoter: dex.NewRouter(routerB, chainClient)},
		TokenIn:          tokenA,
		TokenOut:         tokenB,
		TokenInDecimals:  decimalsA,
		TokenOutDecimals: decimalsB,
		TradeAmount:      cfg.TradeAmount,
		GasCost:          cfg.GasCost,
		MinProfit:        cfg.MinProfit,
		Direction:        direction,
		Retry:            runner.RetryPolicy{MaxRetries: cfg.MaxRetries, Backoff: cfg.RetryBackoff},
	}, chainClient, rec, m, logger, cmd.OutOrStdout())

	logger.Info("spreadscope start",
		zap.String("rpc", redactURL(cfg.RPCURL)),
		zap.String("dex_a", cfg.DexAName),
		zap.String("dex_a_router", routerA.Hex()),
		zap.String("dex_b", cfg.DexBName),
		zap.String("dex_b_router", routerB.Hex()),
		zap.String("token_a", tokenA.Hex()),
		zap.String("token_b", tokenB.Hex()),
		zap.String("trade_amount", cfg.TradeAmount.String()),
		zap.String("gas_cost", cfg.GasCost.String()),
		zap.String("min_profit", cfg.MinProfit.String()),
		zap.String("direction", direction.String()),
		zap.String("store", cfg.ResolvedStore()),
	)

	res, runErr := r.Run(ctx)
	logger.Info("spreadscope done", zap.String("run_id", res.RunID), zap.String("status", res.Status))

	if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Warn("write metrics textfile failed", zap.String("path", cfg.MetricsFile), zap.Error(err))
	}
	return runErr
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("%w: pg-dsn (or DATABASE_URL) is required", config.ErrInvalid)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Info("schema ready", zap.String("dsn", redactURL(cfg.PGDSN)))
	fmt.Fprintln(cmd.OutOrStdout(), "Tables created or already present.")
	return nil
}

// resolveDecimals returns the input and output token decimals. Failing to read
// them leaves no price to evaluate, so it reports like a quote failure.
func resolveDecimals(ctx context.Context, out io.Writer, caller dex.ContractCaller, cfg config.Config, tokenA, tokenB common.Address, logger *zap.Logger) (uint8, uint8, error) {
	tokens := dex.NewTokenMetaCache()
	decimalsA, err := tokenDecimals(ctx, tokens, caller, tokenA, cfg.TokenADecimals, logger)
	if err != nil {
		return 0, 0, pricesUnavailable(out, logger, err)
	}
	decimalsB, err := tokenDecimals(ctx, tokens, caller, tokenB, cfg.TokenBDecimals, logger)
	if err != nil {
		return 0, 0, pricesUnavailable(out, logger, err)
	}
	return decimalsA, decimalsB, nil
}

func pricesUnavailable(out io.Writer, logger *zap.Logger, err error) error {
	logger.Warn("prices unavailable, no evaluation performed", zap.Error(err))
	fmt.Fprintln(out, runner.PricesUnavailableMessage)
	return fmt.Errorf("%w: %w", runner.ErrQuoteFailure, err)
}

func tokenDecimals(ctx context.Context, cache *dex.TokenMetaCache, caller dex.ContractCaller, token common.Address, configured int, logger *zap.Logger) (uint8, error) {
	if configured != config.AutoDecimals {
		return uint8(configured), nil
	}
	meta, err := cache.Resolve(ctx, caller, token, logger)
	if err != nil {
		return 0, fmt.Errorf("token %s decimals: %w", token.Hex(), err)
	}
	return meta.Decimals, nil
}

// openStore returns nil when persistence is disabled or the store cannot be
// reached; evaluation proceeds either way.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.ObservationStore, func()) {
	noop := func() {}

	switch cfg.ResolvedStore() {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			logger.Warn("postgres unavailable, continuing without persistence",
				zap.String("dsn", redactURL(cfg.PGDSN)), zap.Error(err))
			return nil, noop
		}
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Warn("ensure schema failed", zap.Error(err))
		}
		return store, store.Close
	case config.StoreJsonl:
		return storage.NewJsonlStore(cfg.OutDir), noop
	default:
		logger.Info("no store configured, observations are not persisted")
		return nil, noop
	}
}

// redactURL drops credentials from DSNs and RPC URLs before logging.
func redactURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<redacted>"
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	u.RawQuery = ""
	return u.String()
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
