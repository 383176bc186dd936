package maintenance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"sentinel/internal/domain"
)

// Store persists per-check maintenance windows in two collections.
// Params: CRUD operations keyed by check ID, collection, and window ID.
// Returns: backend persistence behavior for the tracker.
type Store interface {
	Put(ctx context.Context, checkID string, col domain.Collection, window domain.MaintenanceWindow) error
	Get(ctx context.Context, checkID string, col domain.Collection, windowID string) (domain.MaintenanceWindow, error)
	Delete(ctx context.Context, checkID string, col domain.Collection, windowID string) error
	List(ctx context.Context, checkID string, col domain.Collection) ([]domain.MaintenanceWindow, error)
	Close() error
}

// MemoryStore keeps maintenance windows in process memory.
// Params: nested maps behind one RW mutex.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu      sync.RWMutex
	windows map[string]map[domain.Collection]map[string]domain.MaintenanceWindow
}

// NewMemoryStore creates an in-memory window store.
// Params: none.
// Returns: initialized store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]map[domain.Collection]map[string]domain.MaintenanceWindow)}
}

// Put inserts or replaces one window.
// Params: check ID, collection, and window with a non-empty ID.
// Returns: error when the window carries no ID.
func (s *MemoryStore) Put(_ context.Context, checkID string, col domain.Collection, window domain.MaintenanceWindow) error {
	if window.ID == "" {
		return fmt.Errorf("put window for %s: missing id", checkID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byCol, ok := s.windows[checkID]
	if !ok {
		byCol = make(map[domain.Collection]map[string]domain.MaintenanceWindow)
		s.windows[checkID] = byCol
	}
	byID, ok := byCol[col]
	if !ok {
		byID = make(map[string]domain.MaintenanceWindow)
		byCol[col] = byID
	}
	byID[window.ID] = window
	return nil
}

// Get returns one window by ID.
// Params: check ID, collection, and window ID.
// Returns: window or domain.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, checkID string, col domain.Collection, windowID string) (domain.MaintenanceWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	window, ok := s.windows[checkID][col][windowID]
	if !ok {
		return domain.MaintenanceWindow{}, domain.ErrNotFound
	}
	return window, nil
}

// Delete removes one window by ID.
// Params: check ID, collection, and window ID.
// Returns: domain.ErrNotFound when absent.
func (s *MemoryStore) Delete(_ context.Context, checkID string, col domain.Collection, windowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.windows[checkID][col]
	if !ok {
		return domain.ErrNotFound
	}
	if _, ok := byID[windowID]; !ok {
		return domain.ErrNotFound
	}
	delete(byID, windowID)
	return nil
}

// List returns all windows of one collection ordered by start time.
// Params: check ID and collection.
// Returns: ascending-start window slice; empty when none exist.
func (s *MemoryStore) List(_ context.Context, checkID string, col domain.Collection) ([]domain.MaintenanceWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := s.windows[checkID][col]
	out := make([]domain.MaintenanceWindow, 0, len(byID))
	for _, window := range byID {
		out = append(out, window)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start == out[j].Start {
			return out[i].End < out[j].End
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}
