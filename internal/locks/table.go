package locks

import (
	"fmt"
	"sort"
	"sync"
)

// Kind names one lockable entity type.
// Params: entity kind constants shared across mutating call sites.
// Returns: deterministic lock identity.
type Kind string

const (
	// KindCheck guards check registry mutations.
	KindCheck Kind = "check"
	// KindContact guards contact mutations.
	KindContact Kind = "contact"
	// KindMedium guards medium and alerting-media mutations.
	KindMedium Kind = "medium"
	// KindRule guards rule mutations.
	KindRule Kind = "rule"
	// KindState guards state history appends.
	KindState Kind = "state"
	// KindWindow guards maintenance window mutations.
	KindWindow Kind = "window"
)

// Table holds one named mutex per entity kind. Scopes lock their kinds in
// lexicographic order, so overlapping scopes cannot deadlock each other.
// Params: fixed mutex map built at startup.
// Returns: scoped exclusive acquisition helper.
type Table struct {
	mutexes map[Kind]*sync.Mutex
}

// NewTable builds the lock table for the known entity kinds.
// Params: none.
// Returns: initialized table.
func NewTable() *Table {
	kinds := []Kind{KindCheck, KindContact, KindMedium, KindRule, KindState, KindWindow}
	mutexes := make(map[Kind]*sync.Mutex, len(kinds))
	for _, kind := range kinds {
		mutexes[kind] = &sync.Mutex{}
	}
	return &Table{mutexes: mutexes}
}

// Scope acquires the given kinds in sorted order and returns the release.
// Params: entity kinds the mutation touches; duplicates are collapsed.
// Returns: release function unlocking in reverse order; panics on unknown kinds.
func (t *Table) Scope(kinds ...Kind) func() {
	unique := make([]Kind, 0, len(kinds))
	seen := make(map[Kind]struct{}, len(kinds))
	for _, kind := range kinds {
		if _, ok := seen[kind]; ok {
			continue
		}
		if _, ok := t.mutexes[kind]; !ok {
			panic(fmt.Sprintf("locks: unknown kind %q", kind))
		}
		seen[kind] = struct{}{}
		unique = append(unique, kind)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	for _, kind := range unique {
		t.mutexes[kind].Lock()
	}
	return func() {
		for i := len(unique) - 1; i >= 0; i-- {
			t.mutexes[unique[i]].Unlock()
		}
	}
}

// Do runs fn under an exclusive scope over the given kinds.
// Params: kinds to lock and mutation body.
// Returns: fn's error; the scope is released on every exit path.
func (t *Table) Do(fn func() error, kinds ...Kind) error {
	release := t.Scope(kinds...)
	defer release()
	return fn()
}
