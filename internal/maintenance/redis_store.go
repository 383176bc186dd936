package maintenance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"sentinel/internal/domain"
)

// RedisStore keeps maintenance windows in per-check Redis hashes.
// Params: shared client and key prefix.
// Returns: store implementation for multi-instance deployments.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed window store.
// Params: connected client and key prefix (may be empty).
// Returns: initialized store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// key builds the hash key for one check and collection.
// Params: check ID and collection.
// Returns: namespaced key.
func (s *RedisStore) key(checkID string, col domain.Collection) string {
	return s.prefix + "maint:" + string(col) + ":" + checkID
}

// Put inserts or replaces one window hash field.
// Params: check ID, collection, and window with a non-empty ID.
// Returns: wrapped domain.ErrStoreUnavailable on transport failures.
func (s *RedisStore) Put(ctx context.Context, checkID string, col domain.Collection, window domain.MaintenanceWindow) error {
	if window.ID == "" {
		return fmt.Errorf("put window for %s: missing id", checkID)
	}
	body, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("marshal window %s: %w", window.ID, err)
	}
	if err := s.client.HSet(ctx, s.key(checkID, col), window.ID, string(body)).Err(); err != nil {
		return domain.MarkStoreUnavailable(fmt.Errorf("put window %s for %s: %s", window.ID, checkID, err))
	}
	return nil
}

// Get returns one window hash field.
// Params: check ID, collection, and window ID.
// Returns: window, domain.ErrNotFound, or wrapped store error.
func (s *RedisStore) Get(ctx context.Context, checkID string, col domain.Collection, windowID string) (domain.MaintenanceWindow, error) {
	raw, err := s.client.HGet(ctx, s.key(checkID, col), windowID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.MaintenanceWindow{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.MaintenanceWindow{}, domain.MarkStoreUnavailable(fmt.Errorf("get window %s for %s: %s", windowID, checkID, err))
	}
	var window domain.MaintenanceWindow
	if err := json.Unmarshal([]byte(raw), &window); err != nil {
		return domain.MaintenanceWindow{}, fmt.Errorf("decode window %s for %s: %w", windowID, checkID, err)
	}
	return window, nil
}

// Delete removes one window hash field.
// Params: check ID, collection, and window ID.
// Returns: domain.ErrNotFound when absent, or wrapped store error.
func (s *RedisStore) Delete(ctx context.Context, checkID string, col domain.Collection, windowID string) error {
	removed, err := s.client.HDel(ctx, s.key(checkID, col), windowID).Result()
	if err != nil {
		return domain.MarkStoreUnavailable(fmt.Errorf("delete window %s for %s: %s", windowID, checkID, err))
	}
	if removed == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns all windows of one collection ordered by start time.
// Params: check ID and collection.
// Returns: ascending-start window slice; empty when none exist.
func (s *RedisStore) List(ctx context.Context, checkID string, col domain.Collection) ([]domain.MaintenanceWindow, error) {
	fields, err := s.client.HGetAll(ctx, s.key(checkID, col)).Result()
	if err != nil {
		return nil, domain.MarkStoreUnavailable(fmt.Errorf("list windows for %s: %s", checkID, err))
	}
	out := make([]domain.MaintenanceWindow, 0, len(fields))
	for id, raw := range fields {
		var window domain.MaintenanceWindow
		if err := json.Unmarshal([]byte(raw), &window); err != nil {
			return nil, fmt.Errorf("decode window %s for %s: %w", id, checkID, err)
		}
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

// Close is a no-op; the shared client is owned by the service.
// Params: none.
// Returns: nil.
func (s *RedisStore) Close() error {
	return nil
}
