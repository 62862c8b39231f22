package registry

import (
	"slices"
	"sync"
)

// Counts maps an absolute lock file path to the number of live sessions
// referencing it. Present counts are always positive.
type Counts map[string]int

// Paths returns the lock paths in lexical order.
func (c Counts) Paths() []string {
	paths := make([]string, 0, len(c))
	for p := range c {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

// Total returns the sum of all counts.
func (c Counts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// clone returns a copy with empty keys and non-positive counts dropped.
func (c Counts) clone() Counts {
	out := make(Counts, len(c))
	for p, n := range c {
		if p == "" || n <= 0 {
			continue
		}
		out[p] = n
	}
	return out
}

// Store persists Counts. Implementations need not be safe for concurrent
// use; the Registry serializes every call behind its guard.
type Store interface {
	// Load returns the stored counts. A missing store yields an empty map
	// and a nil error. Malformed content yields an error wrapping
	// errors.ErrRegistryCorrupt.
	Load() (Counts, error)
	// Save replaces the stored counts.
	Save(Counts) error
	// Location describes where the counts live, for messages.
	Location() string
}

// Locker serializes registry access across processes.
type Locker interface {
	Lock() error
	Unlock() error
}

// nopLocker is the guard used with stores that only live in one process.
type nopLocker struct{}

func (nopLocker) Lock() error   { return nil }
func (nopLocker) Unlock() error { return nil }

// MemoryStore holds counts in memory.
type MemoryStore struct {
	mu     sync.Mutex
	counts Counts
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(Counts)}
}

// Load returns a copy of the held counts.
func (s *MemoryStore) Load() (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts.clone(), nil
}

// Save replaces the held counts with a copy of counts.
func (s *MemoryStore) Save(counts Counts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = counts.clone()
	return nil
}

// Location returns "memory".
func (s *MemoryStore) Location() string {
	return "memory"
}
