// Package internal holds tests that exercise several packages together:
// sessions from the mutex package, a shared on-disk registry, and a
// watcher observing that registry.
package internal

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/filemutex/internal/mutex"
	"github.com/Iron-Ham/filemutex/internal/registry"
)

// waitForCounts blocks until want reports true for a delivered snapshot.
func waitForCounts(t *testing.T, changes <-chan registry.Counts, want func(registry.Counts) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if want(c) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for registry change")
		}
	}
}

func TestWatcherObservesSessions(t *testing.T) {
	dir := t.TempDir()
	reg, err := registry.NewFileRegistry(filepath.Join(dir, "refcounts.yaml"))
	if err != nil {
		t.Fatalf("NewFileRegistry failed: %v", err)
	}

	changes := make(chan registry.Counts, 64)
	w, err := registry.NewWatcher(reg, func(c registry.Counts) { changes <- c })
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	w.Start()
	defer w.Stop()

	m, err := mutex.New(filepath.Join(dir, "shared.txt"), mutex.WithRegistry(reg))
	if err != nil {
		t.Fatalf("mutex.New failed: %v", err)
	}

	first, err := m.Acquire(false)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	second, err := m.Acquire(false)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	waitForCounts(t, changes, func(c registry.Counts) bool { return c[m.LockPath()] == 2 })

	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	waitForCounts(t, changes, func(c registry.Counts) bool { return len(c) == 0 })
}

func TestIndependentRegistriesShareCounts(t *testing.T) {
	dir := t.TempDir()
	regPath := filepath.Join(dir, "refcounts.db")
	target := filepath.Join(dir, "data.txt")

	observer, err := registry.NewSQLiteRegistry(regPath)
	if err != nil {
		t.Fatalf("NewSQLiteRegistry failed: %v", err)
	}
	defer observer.Close()

	const holders = 4
	var (
		wg       sync.WaitGroup
		sessions = make([]*mutex.Session, holders)
		errs     = make([]error, holders)
	)
	for i := 0; i < holders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg, err := registry.NewSQLiteRegistry(regPath)
			if err != nil {
				errs[i] = err
				return
			}
			m, err := mutex.New(target, mutex.WithRegistry(reg))
			if err != nil {
				errs[i] = err
				return
			}
			sessions[i], errs[i] = m.Acquire(false)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("holder %d: %v", i, err)
		}
	}

	lockPath := sessions[0].LockPath()
	if got := observer.Count(lockPath); got != holders {
		t.Errorf("Count() = %d, want %d", got, holders)
	}

	for _, s := range sessions {
		if err := s.Release(); err != nil {
			t.Fatalf("Release failed: %v", err)
		}
	}
	if got := observer.Count(lockPath); got != 0 {
		t.Errorf("Count() after release = %d, want 0", got)
	}
}
