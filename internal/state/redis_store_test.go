package state

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"sentinel/internal/domain"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "sentinel:")
}

func TestRedisAppendAndRange(t *testing.T) {
	t.Parallel()

	store := newRedisStore(t)
	ctx := context.Background()
	for _, ts := range []int64{10, 20, 30} {
		if err := store.Append(ctx, "web:ping", entryAt(ts, domain.ConditionCritical)); err != nil {
			t.Fatalf("append %d: %v", ts, err)
		}
	}

	from := int64(15)
	entries, err := store.Range(ctx, "web:ping", &from, nil)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 2 || entries[0].Timestamp != 20 || entries[1].Timestamp != 30 {
		t.Fatalf("unexpected range result: %+v", entries)
	}
}

func TestRedisAppendRejectsOlderTimestamp(t *testing.T) {
	t.Parallel()

	store := newRedisStore(t)
	ctx := context.Background()
	if err := store.Append(ctx, "web:ping", entryAt(100, domain.ConditionOK)); err != nil {
		t.Fatalf("append: %v", err)
	}
	err := store.Append(ctx, "web:ping", entryAt(90, domain.ConditionCritical))
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRedisDuplicateEntriesDoNotCollapse(t *testing.T) {
	t.Parallel()

	store := newRedisStore(t)
	ctx := context.Background()
	entry := entryAt(100, domain.ConditionOK)
	if err := store.Append(ctx, "web:ping", entry); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "web:ping", entry); err != nil {
		t.Fatalf("duplicate append: %v", err)
	}
	entries, err := store.Range(ctx, "web:ping", nil, nil)
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestRedisNeighbourLookups(t *testing.T) {
	t.Parallel()

	store := newRedisStore(t)
	ctx := context.Background()
	for _, ts := range []int64{10, 20, 30} {
		if err := store.Append(ctx, "web:ping", entryAt(ts, domain.ConditionWarning)); err != nil {
			t.Fatalf("append %d: %v", ts, err)
		}
	}

	latest, err := store.Latest(ctx, "web:ping")
	if err != nil || latest.Timestamp != 30 {
		t.Fatalf("latest = %+v, err %v", latest, err)
	}

	before, err := store.EntryBefore(ctx, "web:ping", 30)
	if err != nil || before.Timestamp != 20 {
		t.Fatalf("entry before 30 = %+v, err %v", before, err)
	}

	after, err := store.EntryAfter(ctx, "web:ping", 10)
	if err != nil || after.Timestamp != 20 {
		t.Fatalf("entry after 10 = %+v, err %v", after, err)
	}

	if _, err := store.Latest(ctx, "db:ping"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown check, got %v", err)
	}
}
