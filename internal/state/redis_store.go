package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sentinel/internal/domain"
)

// RedisStore keeps state history in Redis sorted sets scored by timestamp.
// Params: shared client and key prefix.
// Returns: store implementation for multi-instance deployments.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// redisEntry wraps one stored entry with a unique member suffix so that
// identical consecutive reports do not collapse into one sorted-set member.
type redisEntry struct {
	Seq   string            `json:"seq"`
	Entry domain.StateEntry `json:"entry"`
}

// NewRedisStore creates a Redis-backed history store.
// Params: connected client and key prefix (may be empty).
// Returns: initialized store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// historyKey builds the sorted-set key for one check.
// Params: check ID.
// Returns: namespaced key.
func (s *RedisStore) historyKey(checkID string) string {
	return s.prefix + "history:" + checkID
}

// Append adds one entry to a check's history sorted set.
// Params: check ID and immutable entry; callers are serialized per check
// by the manager's lock scope.
// Returns: domain.ErrConflict on out-of-order timestamps, wrapped
// domain.ErrStoreUnavailable on transport failures.
func (s *RedisStore) Append(ctx context.Context, checkID string, entry domain.StateEntry) error {
	key := s.historyKey(checkID)
	last, err := s.client.ZRevRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return domain.MarkStoreUnavailable(fmt.Errorf("read last score for %s: %s", checkID, err))
	}
	if len(last) > 0 && entry.Timestamp < int64(last[0].Score) {
		return fmt.Errorf("append %s at %d behind %d: %w",
			checkID, entry.Timestamp, int64(last[0].Score), domain.ErrConflict)
	}

	member, err := json.Marshal(redisEntry{Seq: uuid.NewString(), Entry: entry})
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	if err := s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(entry.Timestamp),
		Member: string(member),
	}).Err(); err != nil {
		return domain.MarkStoreUnavailable(fmt.Errorf("append history for %s: %s", checkID, err))
	}
	return nil
}

// Range returns entries with from <= timestamp <= to in ascending order.
// Params: check ID and optional unix-second bounds (nil = unbounded).
// Returns: matching entries; empty slice when none match.
func (s *RedisStore) Range(ctx context.Context, checkID string, from, to *int64) ([]domain.StateEntry, error) {
	min := "-inf"
	if from != nil {
		min = strconv.FormatInt(*from, 10)
	}
	max := "+inf"
	if to != nil {
		max = strconv.FormatInt(*to, 10)
	}
	return s.rangeByScore(ctx, checkID, min, max, false, 0)
}

// Latest returns the last recorded entry for a check.
// Params: check ID.
// Returns: entry or domain.ErrNotFound when the history is empty.
func (s *RedisStore) Latest(ctx context.Context, checkID string) (domain.StateEntry, error) {
	entries, err := s.rangeByScore(ctx, checkID, "-inf", "+inf", true, 1)
	if err != nil {
		return domain.StateEntry{}, err
	}
	if len(entries) == 0 {
		return domain.StateEntry{}, domain.ErrNotFound
	}
	return entries[0], nil
}

// EntryBefore returns the last entry strictly before t.
// Params: check ID and unix-second instant.
// Returns: entry or domain.ErrNotFound when no earlier entry exists.
func (s *RedisStore) EntryBefore(ctx context.Context, checkID string, t int64) (domain.StateEntry, error) {
	entries, err := s.rangeByScore(ctx, checkID, "-inf", "("+strconv.FormatInt(t, 10), true, 1)
	if err != nil {
		return domain.StateEntry{}, err
	}
	if len(entries) == 0 {
		return domain.StateEntry{}, domain.ErrNotFound
	}
	return entries[0], nil
}

// EntryAfter returns the first entry strictly after t.
// Params: check ID and unix-second instant.
// Returns: entry or domain.ErrNotFound when no later entry exists.
func (s *RedisStore) EntryAfter(ctx context.Context, checkID string, t int64) (domain.StateEntry, error) {
	entries, err := s.rangeByScore(ctx, checkID, "("+strconv.FormatInt(t, 10), "+inf", false, 1)
	if err != nil {
		return domain.StateEntry{}, err
	}
	if len(entries) == 0 {
		return domain.StateEntry{}, domain.ErrNotFound
	}
	return entries[0], nil
}

// rangeByScore reads and decodes one score range in the requested order.
// Params: check ID, score bounds, reverse flag, and optional result limit.
// Returns: decoded entries in the requested order.
func (s *RedisStore) rangeByScore(ctx context.Context, checkID, min, max string, reverse bool, count int64) ([]domain.StateEntry, error) {
	by := &redis.ZRangeBy{Min: min, Max: max}
	if count > 0 {
		by.Count = count
	}

	var (
		raw []string
		err error
	)
	if reverse {
		raw, err = s.client.ZRevRangeByScore(ctx, s.historyKey(checkID), by).Result()
	} else {
		raw, err = s.client.ZRangeByScore(ctx, s.historyKey(checkID), by).Result()
	}
	if err != nil {
		return nil, domain.MarkStoreUnavailable(fmt.Errorf("range history for %s: %s", checkID, err))
	}

	entries := make([]domain.StateEntry, 0, len(raw))
	for _, member := range raw {
		var stored redisEntry
		if err := json.Unmarshal([]byte(member), &stored); err != nil {
			return nil, fmt.Errorf("decode history entry for %s: %w", checkID, err)
		}
		entries = append(entries, stored.Entry)
	}
	return entries, nil
}

// Close is a no-op; the shared client is owned by the service.
// Params: none.
// Returns: nil.
func (s *RedisStore) Close() error {
	return nil
}
