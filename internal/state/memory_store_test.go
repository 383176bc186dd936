package state

import (
	"context"
	"errors"
	"testing"

	"sentinel/internal/domain"
)

func entryAt(ts int64, cond domain.Condition) domain.StateEntry {
	return domain.StateEntry{Condition: cond, Timestamp: ts, Summary: string(cond)}
}

func TestMemoryAppendRejectsOlderTimestamp(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Append(ctx, "web:ping", entryAt(100, domain.ConditionOK)); err != nil {
		t.Fatalf("append: %v", err)
	}
	err := store.Append(ctx, "web:ping", entryAt(99, domain.ConditionCritical))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestMemoryAppendAcceptsEqualTimestamp(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Append(ctx, "web:ping", entryAt(100, domain.ConditionOK)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "web:ping", entryAt(100, domain.ConditionOK)); err != nil {
		t.Fatalf("equal timestamp append: %v", err)
	}
	entries, err := store.Range(ctx, "web:ping", nil, nil)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestMemoryRangeBounds(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	for _, ts := range []int64{10, 20, 30, 40} {
		if err := store.Append(ctx, "web:ping", entryAt(ts, domain.ConditionOK)); err != nil {
			t.Fatalf("append %d: %v", ts, err)
		}
	}

	from, to := int64(20), int64(30)
	entries, err := store.Range(ctx, "web:ping", &from, &to)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 2 || entries[0].Timestamp != 20 || entries[1].Timestamp != 30 {
		t.Fatalf("unexpected bounded range: %+v", entries)
	}

	entries, err = store.Range(ctx, "web:ping", nil, &from)
	if err != nil {
		t.Fatalf("open-from range: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries up to 20, got %d", len(entries))
	}

	entries, err = store.Range(ctx, "web:ping", &to, nil)
	if err != nil {
		t.Fatalf("open-to range: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries from 30, got %d", len(entries))
	}
}

func TestMemoryLatestAndNeighbours(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.Latest(ctx, "web:ping"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for empty history, got %v", err)
	}

	for _, ts := range []int64{10, 20, 30} {
		if err := store.Append(ctx, "web:ping", entryAt(ts, domain.ConditionCritical)); err != nil {
			t.Fatalf("append %d: %v", ts, err)
		}
	}

	latest, err := store.Latest(ctx, "web:ping")
	if err != nil || latest.Timestamp != 30 {
		t.Fatalf("latest = %+v, err %v", latest, err)
	}

	before, err := store.EntryBefore(ctx, "web:ping", 20)
	if err != nil || before.Timestamp != 10 {
		t.Fatalf("entry before 20 = %+v, err %v", before, err)
	}
	if _, err := store.EntryBefore(ctx, "web:ping", 10); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found before first entry, got %v", err)
	}

	after, err := store.EntryAfter(ctx, "web:ping", 20)
	if err != nil || after.Timestamp != 30 {
		t.Fatalf("entry after 20 = %+v, err %v", after, err)
	}
	if _, err := store.EntryAfter(ctx, "web:ping", 30); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after last entry, got %v", err)
	}
}

func TestMemoryChecksAreIndependent(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Append(ctx, "web:ping", entryAt(100, domain.ConditionOK)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "db:ping", entryAt(50, domain.ConditionOK)); err != nil {
		t.Fatalf("older timestamp on another check must not conflict: %v", err)
	}
}
