package memory

import (
	"context"
	"sync"
	"time"

	"spreadScope/internal/model"
	"spreadScope/internal/storage"
)

// Store is an in-memory implementation of storage.ObservationStore.
type Store struct {
	mu            sync.RWMutex
	snapshots     []model.MarketSnapshot
	opportunities []model.ArbitrageOpportunity
	now           func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Compile-time interface check.
var _ storage.ObservationStore = (*Store)(nil)

// InsertSnapshot stores a copy of snap and assigns its ID and SnapshotAt.
func (s *Store) InsertSnapshot(_ context.Context, snap *model.MarketSnapshot) error {
	if snap == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap.ID = int64(len(s.snapshots)) + 1
	snap.SnapshotAt = s.now().UTC()
	s.snapshots = append(s.snapshots, *snap)
	return nil
}

// InsertOpportunity stores a copy of opp and assigns its ID and DetectedAt.
func (s *Store) InsertOpportunity(_ context.Context, opp *model.ArbitrageOpportunity) error {
	if opp == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	opp.ID = int64(len(s.opportunities)) + 1
	opp.DetectedAt = s.now().UTC()
	s.opportunities = append(s.opportunities, *opp)
	return nil
}

// Snapshots returns a copy of all stored snapshots in insertion order.
func (s *Store) Snapshots() []model.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MarketSnapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// Opportunities returns a copy of all stored opportunities in insertion order.
func (s *Store) Opportunities() []model.ArbitrageOpportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ArbitrageOpportunity, len(s.opportunities))
	copy(out, s.opportunities)
	return out
}
