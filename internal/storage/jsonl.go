package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"spreadScope/internal/model"
)

const (
	SnapshotsFile     = "market_snapshots.jsonl"
	OpportunitiesFile = "arbitrage_opportunities.jsonl"
)

// JsonlStore appends snapshots and opportunities to two JSONL files in a
// directory. IDs continue from the number of lines already present.
type JsonlStore struct {
	dir string
	now func() time.Time

	mu      sync.Mutex
	lastIDs map[string]int64
}

// Compile-time interface check.
var _ ObservationStore = (*JsonlStore)(nil)

func NewJsonlStore(dir string) *JsonlStore {
	return &JsonlStore{
		dir:     dir,
		now:     time.Now,
		lastIDs: make(map[string]int64),
	}
}

// InsertSnapshot appends a snapshot line.
func (s *JsonlStore) InsertSnapshot(_ context.Context, snap *model.MarketSnapshot) error {
	if snap == nil {
		return ErrInvalidInput
	}
	return s.append(SnapshotsFile, func(id int64, at time.Time) interface{} {
		snap.ID = id
		snap.SnapshotAt = at
		return snap
	})
}

// InsertOpportunity appends an opportunity line.
func (s *JsonlStore) InsertOpportunity(_ context.Context, opp *model.ArbitrageOpportunity) error {
	if opp == nil {
		return ErrInvalidInput
	}
	return s.append(OpportunitiesFile, func(id int64, at time.Time) interface{} {
		opp.ID = id
		opp.DetectedAt = at
		return opp
	})
}

func (s *JsonlStore) append(name string, stamp func(id int64, at time.Time) interface{}) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w: %w", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, name)
	last, ok := s.lastIDs[name]
	if !ok {
		count, err := countLines(path)
		if err != nil {
			return fmt.Errorf("count %s: %w: %w", name, ErrUnavailable, err)
		}
		last = count
	}

	record := stamp(last+1, s.now().UTC())
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w: %w", name, ErrWriteRejected, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w: %w", name, ErrUnavailable, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write %s record: %w: %w", name, ErrUnavailable, err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w: %w", ErrUnavailable, err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w: %w", name, ErrUnavailable, err)
	}

	s.lastIDs[name] = last + 1
	return nil
}

func countLines(path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	var n int64
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) > 0 {
			n++
		}
	}
	return n, scanner.Err()
}
