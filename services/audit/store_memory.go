package audit

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MemoryStore keeps records in process memory. Records are kept in ID order.
type MemoryStore struct {
	clock clockwork.Clock

	mu      sync.RWMutex
	nextID  int64
	records []Record
}

// NewMemoryStore returns an empty store. A nil clock uses the real clock.
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{clock: clock, nextID: 1}
}

func (s *MemoryStore) Insert(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.nextID
	rec.Timestamp = stamp(s.clock.Now())
	s.nextID++
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *MemoryStore) List(_ context.Context, limit, offset int) ([]Record, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.records)
	out := []Record{}
	if offset >= total || limit <= 0 {
		return out, int64(total), nil
	}

	// newest first: walk backwards from total-1-offset
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out, int64(total), nil
}

func (s *MemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]Record, 0, len(s.records))
	var deleted int64
	for _, rec := range s.records {
		if rec.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return deleted, nil
}

func (s *MemoryStore) CountByAction(_ context.Context) (map[Action]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Action]int64)
	for _, rec := range s.records {
		counts[rec.Action]++
	}
	return counts, nil
}

// Stream iterates over a snapshot taken when the call starts.
func (s *MemoryStore) Stream(ctx context.Context, fn func(Record) error) error {
	s.mu.RLock()
	snapshot := append([]Record(nil), s.records...)
	s.mu.RUnlock()

	for _, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
