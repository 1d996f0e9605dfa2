package storage

import (
	"context"
	"errors"

	"spreadScope/internal/model"
)

var (
	// ErrUnavailable is returned when the store cannot be reached.
	ErrUnavailable = errors.New("store unavailable")

	// ErrWriteRejected is returned when the store refuses a write.
	ErrWriteRejected = errors.New("store write rejected")

	// ErrInvalidInput is returned when a record fails validation before the write.
	ErrInvalidInput = errors.New("invalid input")
)

// ObservationStore persists market snapshots and arbitrage opportunities.
// Implementations assign the ID and timestamp and write them back into the
// record. Each call is a single self-contained write and must be safe for
// concurrent use.
type ObservationStore interface {
	InsertSnapshot(ctx context.Context, snap *model.MarketSnapshot) error
	InsertOpportunity(ctx context.Context, opp *model.ArbitrageOpportunity) error
}
