package state

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sentinel/internal/domain"
)

// MemoryStore keeps state history in process memory for single-instance mode.
// Params: per-check ordered entry slices behind one RW mutex.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]domain.StateEntry
}

// NewMemoryStore creates an in-memory history store.
// Params: none.
// Returns: initialized store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]domain.StateEntry)}
}

// Append adds one entry to a check's history in timestamp order.
// Params: check ID and immutable entry.
// Returns: domain.ErrConflict when the entry is older than the last one.
func (s *MemoryStore) Append(_ context.Context, checkID string, entry domain.StateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.entries[checkID]
	if n := len(log); n > 0 && entry.Timestamp < log[n-1].Timestamp {
		return fmt.Errorf("append %s at %d behind %d: %w",
			checkID, entry.Timestamp, log[n-1].Timestamp, domain.ErrConflict)
	}
	s.entries[checkID] = append(log, entry)
	return nil
}

// Range returns entries with from <= timestamp <= to in ascending order.
// Params: check ID and optional unix-second bounds (nil = unbounded).
// Returns: matching entries; empty slice when none match.
func (s *MemoryStore) Range(_ context.Context, checkID string, from, to *int64) ([]domain.StateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.entries[checkID]

	lo := 0
	if from != nil {
		lo = sort.Search(len(log), func(i int) bool { return log[i].Timestamp >= *from })
	}
	hi := len(log)
	if to != nil {
		hi = sort.Search(len(log), func(i int) bool { return log[i].Timestamp > *to })
	}
	if lo >= hi {
		return nil, nil
	}
	out := make([]domain.StateEntry, hi-lo)
	copy(out, log[lo:hi])
	return out, nil
}

// Latest returns the last recorded entry for a check.
// Params: check ID.
// Returns: entry or domain.ErrNotFound when the history is empty.
func (s *MemoryStore) Latest(_ context.Context, checkID string) (domain.StateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.entries[checkID]
	if len(log) == 0 {
		return domain.StateEntry{}, domain.ErrNotFound
	}
	return log[len(log)-1], nil
}

// EntryBefore returns the last entry strictly before t.
// Params: check ID and unix-second instant.
// Returns: entry or domain.ErrNotFound when no earlier entry exists.
func (s *MemoryStore) EntryBefore(_ context.Context, checkID string, t int64) (domain.StateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.entries[checkID]
	idx := sort.Search(len(log), func(i int) bool { return log[i].Timestamp >= t })
	if idx == 0 {
		return domain.StateEntry{}, domain.ErrNotFound
	}
	return log[idx-1], nil
}

// EntryAfter returns the first entry strictly after t.
// Params: check ID and unix-second instant.
// Returns: entry or domain.ErrNotFound when no later entry exists.
func (s *MemoryStore) EntryAfter(_ context.Context, checkID string, t int64) (domain.StateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.entries[checkID]
	idx := sort.Search(len(log), func(i int) bool { return log[i].Timestamp > t })
	if idx >= len(log) {
		return domain.StateEntry{}, domain.ErrNotFound
	}
	return log[idx], nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
