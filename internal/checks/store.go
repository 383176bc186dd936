package checks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"sentinel/internal/domain"
)

// Store persists check registry snapshots.
// Params: CRUD operations keyed by check ID.
// Returns: backend persistence behavior for the registry.
type Store interface {
	Put(ctx context.Context, info domain.CheckInfo) error
	Get(ctx context.Context, id string) (domain.CheckInfo, error)
	List(ctx context.Context) ([]domain.CheckInfo, error)
	Close() error
}

// MemoryStore keeps check snapshots in process memory.
// Params: ID-keyed map behind one RW mutex.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu     sync.RWMutex
	checks map[string]domain.CheckInfo
}

// NewMemoryStore creates an in-memory check store.
// Params: none.
// Returns: initialized store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{checks: make(map[string]domain.CheckInfo)}
}

// Put inserts or replaces one check snapshot.
// Params: check snapshot with a non-empty ID.
// Returns: error when the ID is missing.
func (s *MemoryStore) Put(_ context.Context, info domain.CheckInfo) error {
	if info.ID == "" {
		return fmt.Errorf("put check: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[info.ID] = info
	return nil
}

// Get returns one check snapshot.
// Params: check ID.
// Returns: snapshot or domain.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (domain.CheckInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.checks[id]
	if !ok {
		return domain.CheckInfo{}, domain.ErrNotFound
	}
	return info, nil
}

// List returns all check snapshots ordered by ID.
// Params: none.
// Returns: snapshot slice.
func (s *MemoryStore) List(_ context.Context) ([]domain.CheckInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.CheckInfo, 0, len(s.checks))
	for _, info := range s.checks {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}

// RedisStore keeps check snapshots in one Redis hash.
// Params: shared client and key prefix.
// Returns: store implementation for multi-instance deployments.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed check store.
// Params: connected client and key prefix (may be empty).
// Returns: initialized store.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// key builds the registry hash key.
// Params: none.
// Returns: namespaced key.
func (s *RedisStore) key() string {
	return s.prefix + "checks"
}

// Put inserts or replaces one check hash field.
// Params: check snapshot with a non-empty ID.
// Returns: wrapped domain.ErrStoreUnavailable on transport failures.
func (s *RedisStore) Put(ctx context.Context, info domain.CheckInfo) error {
	if info.ID == "" {
		return fmt.Errorf("put check: missing id")
	}
	body, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal check %s: %w", info.ID, err)
	}
	if err := s.client.HSet(ctx, s.key(), info.ID, string(body)).Err(); err != nil {
		return domain.MarkStoreUnavailable(fmt.Errorf("put check %s: %s", info.ID, err))
	}
	return nil
}

// Get returns one check hash field.
// Params: check ID.
// Returns: snapshot, domain.ErrNotFound, or wrapped store error.
func (s *RedisStore) Get(ctx context.Context, id string) (domain.CheckInfo, error) {
	raw, err := s.client.HGet(ctx, s.key(), id).Result()
	if errors.Is(err, redis.Nil) {
		return domain.CheckInfo{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CheckInfo{}, domain.MarkStoreUnavailable(fmt.Errorf("get check %s: %s", id, err))
	}
	var info domain.CheckInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return domain.CheckInfo{}, fmt.Errorf("decode check %s: %w", id, err)
	}
	return info, nil
}

// List returns all check snapshots ordered by ID.
// Params: none.
// Returns: snapshot slice or wrapped store error.
func (s *RedisStore) List(ctx context.Context) ([]domain.CheckInfo, error) {
	fields, err := s.client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return nil, domain.MarkStoreUnavailable(fmt.Errorf("list checks: %s", err))
	}
	out := make([]domain.CheckInfo, 0, len(fields))
	for id, raw := range fields {
		var info domain.CheckInfo
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return nil, fmt.Errorf("decode check %s: %w", id, err)
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close is a no-op; the shared client is owned by the service.
// Params: none.
// Returns: nil.
func (s *RedisStore) Close() error {
	return nil
}
