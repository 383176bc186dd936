package checks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sentinel/internal/domain"
)

// Registry tracks monitored check identity and lifecycle flags.
// Checks are created on first report and never destroyed while their
// history is referenced; disabling only removes them from evaluation.
// Params: check store.
// Returns: registry operations for the manager and router.
type Registry struct {
	store Store
}

// NewRegistry creates a registry over the given store.
// Params: check store.
// Returns: initialized registry.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// Ensure registers a check on first sight and merges newly seen tags.
// Params: entity name, check name, and tags from the current report.
// Returns: current snapshot after the merge.
func (r *Registry) Ensure(ctx context.Context, entity, name string, tags []string) (domain.CheckInfo, error) {
	id := entity + ":" + name
	info, err := r.store.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		info = domain.CheckInfo{
			ID:      id,
			Entity:  entity,
			Name:    name,
			Tags:    dedupe(tags),
			Enabled: true,
			AckHash: uuid.NewString(),
		}
		if err := r.store.Put(ctx, info); err != nil {
			return domain.CheckInfo{}, err
		}
		return info, nil
	}
	if err != nil {
		return domain.CheckInfo{}, err
	}

	merged := mergeTags(info.Tags, tags)
	if len(merged) != len(info.Tags) {
		info.Tags = merged
		if err := r.store.Put(ctx, info); err != nil {
			return domain.CheckInfo{}, err
		}
	}
	return info, nil
}

// Get returns one check snapshot.
// Params: check ID.
// Returns: snapshot or domain.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (domain.CheckInfo, error) {
	return r.store.Get(ctx, id)
}

// ByTag returns all checks carrying the given tag.
// Params: tag string.
// Returns: matching snapshots; domain.ErrNotFound when the tag matches nothing.
func (r *Registry) ByTag(ctx context.Context, tag string) ([]domain.CheckInfo, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.CheckInfo, 0)
	for _, info := range all {
		for _, t := range info.Tags {
			if t == tag {
				out = append(out, info)
				break
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("tag %q: %w", tag, domain.ErrNotFound)
	}
	return out, nil
}

// SetEnabled toggles evaluation of one check; history is preserved.
// Params: check ID and target flag.
// Returns: domain.ErrNotFound for unknown checks.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	info, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if info.Enabled == enabled {
		return nil
	}
	info.Enabled = enabled
	return r.store.Put(ctx, info)
}

// SetFailing updates the derived failing flag after a state append.
// Params: check ID and derived flag.
// Returns: domain.ErrNotFound for unknown checks.
func (r *Registry) SetFailing(ctx context.Context, id string, failing bool) error {
	info, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if info.Failing == failing {
		return nil
	}
	info.Failing = failing
	return r.store.Put(ctx, info)
}

// dedupe returns the tags with duplicates removed, order preserved.
// Params: raw tag slice.
// Returns: unique tags.
func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// mergeTags appends unseen tags from extra onto base, order preserved.
// Params: stored tags and report tags.
// Returns: merged unique tags.
func mergeTags(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	out := make([]string, 0, len(base)+len(extra))
	for _, tag := range base {
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	for _, tag := range extra {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
