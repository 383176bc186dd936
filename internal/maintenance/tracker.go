package maintenance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sentinel/internal/domain"
	"sentinel/internal/locks"
)

// Tracker manages the two maintenance window collections of each check.
// Params: window store, lock table, and window lock set.
// Returns: lifecycle operations with the source system's truncation rules.
type Tracker struct {
	store Store
	locks *locks.Table
}

// NewTracker creates a tracker over the given store.
// Params: window store and shared lock table.
// Returns: initialized tracker.
func NewTracker(store Store, table *locks.Table) *Tracker {
	return &Tracker{store: store, locks: table}
}

// AddScheduled inserts one pre-planned window; overlap is not validated.
// Params: check ID and window (ID assigned when empty).
// Returns: stored window or validation/store error.
func (t *Tracker) AddScheduled(ctx context.Context, checkID string, window domain.MaintenanceWindow) (domain.MaintenanceWindow, error) {
	if err := window.Validate(); err != nil {
		return domain.MaintenanceWindow{}, err
	}
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	err := t.locks.Do(func() error {
		return t.store.Put(ctx, checkID, domain.CollectionScheduled, window)
	}, locks.KindWindow)
	if err != nil {
		return domain.MaintenanceWindow{}, err
	}
	return window, nil
}

// SetUnscheduled inserts one reactive window, truncating any open one first.
// Every unscheduled window still open at the new window's start is cut to
// end exactly at that start; a replay of a partially applied call is a no-op.
// Params: check ID and window (ID assigned when empty).
// Returns: stored window or validation/store error.
func (t *Tracker) SetUnscheduled(ctx context.Context, checkID string, window domain.MaintenanceWindow) (domain.MaintenanceWindow, error) {
	if err := window.Validate(); err != nil {
		return domain.MaintenanceWindow{}, err
	}
	if window.ID == "" {
		window.ID = uuid.NewString()
	}
	err := t.locks.Do(func() error {
		existing, err := t.store.List(ctx, checkID, domain.CollectionUnscheduled)
		if err != nil {
			return err
		}
		for _, open := range existing {
			if open.End <= window.Start {
				continue
			}
			if open.Start >= window.Start {
				// Never took effect before the new incident; drop it.
				if err := t.store.Delete(ctx, checkID, domain.CollectionUnscheduled, open.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
					return err
				}
				continue
			}
			open.End = window.Start
			if err := t.store.Put(ctx, checkID, domain.CollectionUnscheduled, open); err != nil {
				return err
			}
		}
		return t.store.Put(ctx, checkID, domain.CollectionUnscheduled, window)
	}, locks.KindWindow, locks.KindCheck)
	if err != nil {
		return domain.MaintenanceWindow{}, err
	}
	return window, nil
}

// EndWindow terminates one window at the given instant.
// The window is deleted when it never took effect (at <= start), shortened
// when at falls inside it, and left untouched when it already finished.
// Params: check ID, collection, window ID, and unix-second instant.
// Returns: domain.ErrConflict when the window does not exist.
func (t *Tracker) EndWindow(ctx context.Context, checkID string, col domain.Collection, windowID string, at int64) error {
	if !col.Valid() {
		return domain.NewValidationError("collection", fmt.Errorf("unsupported collection %q", col))
	}
	return t.locks.Do(func() error {
		window, err := t.store.Get(ctx, checkID, col, windowID)
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("end window %s for %s: %w", windowID, checkID, domain.ErrConflict)
		}
		if err != nil {
			return err
		}

		switch {
		case at <= window.Start:
			return t.store.Delete(ctx, checkID, col, windowID)
		case at < window.End:
			window.End = at
			return t.store.Put(ctx, checkID, col, window)
		default:
			// Already finished; past windows are immutable.
			return nil
		}
	}, locks.KindWindow)
}

// ClearUnscheduled ends the currently open unscheduled window.
// Params: check ID, current instant for the open-window lookup, and end instant.
// Returns: domain.ErrConflict when no unscheduled window is open.
func (t *Tracker) ClearUnscheduled(ctx context.Context, checkID string, now, at int64) error {
	current, err := t.CurrentWindow(ctx, checkID, domain.CollectionUnscheduled, now)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("clear unscheduled for %s: %w", checkID, domain.ErrConflict)
	}
	if err != nil {
		return err
	}
	return t.EndWindow(ctx, checkID, domain.CollectionUnscheduled, current.ID, at)
}

// InWindow reports whether any window of the collection covers t.
// Params: check ID, collection, and unix-second instant.
// Returns: true when start <= t < end for some window.
func (t *Tracker) InWindow(ctx context.Context, checkID string, col domain.Collection, at int64) (bool, error) {
	_, err := t.CurrentWindow(ctx, checkID, col, at)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CurrentWindow returns the window in effect at t.
// Params: check ID, collection, and unix-second instant.
// Returns: the covering window with the latest end when several overlap
// (possible for scheduled windows only), or domain.ErrNotFound.
func (t *Tracker) CurrentWindow(ctx context.Context, checkID string, col domain.Collection, at int64) (domain.MaintenanceWindow, error) {
	windows, err := t.store.List(ctx, checkID, col)
	if err != nil {
		return domain.MaintenanceWindow{}, err
	}
	var (
		best  domain.MaintenanceWindow
		found bool
	)
	for _, window := range windows {
		if !window.Covers(at) {
			continue
		}
		if !found || window.End > best.End {
			best = window
			found = true
		}
	}
	if !found {
		return domain.MaintenanceWindow{}, domain.ErrNotFound
	}
	return best, nil
}

// WindowsIntersecting returns windows overlapping the query range, including
// windows that started before from but still reach into it.
// Params: check ID, collection, and optional unix-second bounds.
// Returns: ascending-start window slice.
func (t *Tracker) WindowsIntersecting(ctx context.Context, checkID string, col domain.Collection, from, to *int64) ([]domain.MaintenanceWindow, error) {
	windows, err := t.store.List(ctx, checkID, col)
	if err != nil {
		return nil, err
	}
	out := make([]domain.MaintenanceWindow, 0, len(windows))
	for _, window := range windows {
		if from != nil && window.End < *from {
			continue
		}
		if to != nil && window.Start > *to {
			continue
		}
		out = append(out, window)
	}
	return out, nil
}
