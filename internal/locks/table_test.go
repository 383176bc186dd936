package locks

import (
	"sync"
	"testing"
	"time"
)

func TestScopeReleasesAllKinds(t *testing.T) {
	t.Parallel()

	table := NewTable()
	release := table.Scope(KindWindow, KindCheck, KindWindow)
	release()

	// A second full acquisition must not block after release.
	done := make(chan struct{})
	go func() {
		release := table.Scope(KindCheck, KindWindow)
		release()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("scope was not released")
	}
}

func TestOverlappingScopesDoNotDeadlock(t *testing.T) {
	t.Parallel()

	table := NewTable()
	var wg sync.WaitGroup
	// Opposite declaration orders on overlapping kind sets; sorted
	// acquisition must serialize them without deadlock.
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release := table.Scope(KindCheck, KindState, KindWindow)
			release()
		}()
		go func() {
			defer wg.Done()
			release := table.Scope(KindWindow, KindCheck)
			release()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("overlapping scopes deadlocked")
	}
}

func TestDoReleasesOnError(t *testing.T) {
	t.Parallel()

	table := NewTable()
	if err := table.Do(func() error { return errSentinel }, KindRule); err != errSentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	release := table.Scope(KindRule)
	release()
}

var errSentinel = &testError{}

type testError struct{}

func (*testError) Error() string { return "sentinel" }
