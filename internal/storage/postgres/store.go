package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"spreadScope/internal/model"
	"spreadScope/internal/storage"
)

// Store provides Postgres persistence for market snapshots and opportunities.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ storage.ObservationStore = (*Store)(nil)

// NewStore connects to Postgres and verifies the connection.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertSnapshot writes one market_snapshots row. snapshot_at comes from the
// server clock.
func (s *Store) InsertSnapshot(ctx context.Context, snap *model.MarketSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO market_snapshots (
			dex_a, dex_b, token_a, token_b,
			dex_a_price, dex_b_price, price_difference, price_difference_percent,
			trade_amount, gas_cost, potential_profit, is_arbitrage, snapshot_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		RETURNING id, snapshot_at
	`,
		snap.DexA,
		snap.DexB,
		snap.TokenA,
		snap.TokenB,
		snap.DexAPrice,
		snap.DexBPrice,
		snap.PriceDifference,
		snap.PriceDifferencePercent,
		snap.TradeAmount,
		snap.GasCost,
		snap.PotentialProfit,
		snap.IsArbitrage,
	)
	if err := row.Scan(&snap.ID, &snap.SnapshotAt); err != nil {
		return fmt.Errorf("insert market snapshot: %w", classify(err))
	}
	return nil
}

// InsertOpportunity writes one arbitrage_opportunities row. detected_at comes
// from the server clock.
func (s *Store) InsertOpportunity(ctx context.Context, opp *model.ArbitrageOpportunity) error {
	if opp == nil {
		return storage.ErrInvalidInput
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO arbitrage_opportunities (
			dex_a, dex_b, token_a, token_b, price_a, price_b, profit, detected_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id, detected_at
	`,
		opp.DexA,
		opp.DexB,
		opp.TokenA,
		opp.TokenB,
		opp.PriceA,
		opp.PriceB,
		opp.Profit,
	)
	if err := row.Scan(&opp.ID, &opp.DetectedAt); err != nil {
		return fmt.Errorf("insert arbitrage opportunity: %w", classify(err))
	}
	return nil
}

// classify maps server-side rejections to storage.ErrWriteRejected and
// everything else (dial, timeout, closed pool) to storage.ErrUnavailable.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s (%s)", storage.ErrWriteRejected, pgErr.Message, pgErr.Code)
	}
	return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
}
