package state

import (
	"context"

	"sentinel/internal/domain"
)

// Store provides the per-check ordered state history.
// Params: append and timestamp-range query operations keyed by check ID.
// Returns: backend persistence behavior for the report engine and manager.
//
// Append enforces non-decreasing timestamps per check: an entry strictly
// older than the last recorded one is rejected with domain.ErrConflict;
// equal timestamps are accepted (the report layer coalesces duplicates).
type Store interface {
	Append(ctx context.Context, checkID string, entry domain.StateEntry) error
	Range(ctx context.Context, checkID string, from, to *int64) ([]domain.StateEntry, error)
	Latest(ctx context.Context, checkID string) (domain.StateEntry, error)
	EntryBefore(ctx context.Context, checkID string, t int64) (domain.StateEntry, error)
	EntryAfter(ctx context.Context, checkID string, t int64) (domain.StateEntry, error)
	Close() error
}
