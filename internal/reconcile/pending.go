// Package reconcile implements the optimistic overlay shared by every feature
// that asserts a server-owned fact before the server confirms it: achievement
// claims, streak claims, shop item ownership. Local asserts live in a pending
// set; authoritative snapshots confirm them; a snapshot that merely omits a
// pending key never discards it.
package reconcile

import "sync"

// Set tracks locally-asserted keys against authoritative snapshots.
//
// A key moves pending -> confirmed when a snapshot contains it. Confirmed keys
// are remembered for the process lifetime so a stale later snapshot cannot
// make an already-settled fact look unsettled again. Only an explicit
// contradiction (Reject) removes an assertion outright.
type Set struct {
	mu        sync.Mutex
	pending   map[string]struct{}
	confirmed map[string]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{
		pending:   make(map[string]struct{}),
		confirmed: make(map[string]struct{}),
	}
}

// Assert records a locally-applied state change awaiting server confirmation.
// Asserting an already-confirmed key is a no-op.
func (s *Set) Assert(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.confirmed[key]; ok {
		return
	}
	s.pending[key] = struct{}{}
}

// Sync diffs an authoritative snapshot against the pending set. Pending keys
// present in the snapshot become confirmed; pending keys absent stay pending.
func (s *Set) Sync(authoritative map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.pending {
		if _, ok := authoritative[key]; ok {
			delete(s.pending, key)
			s.confirmed[key] = struct{}{}
		}
	}
}

// Reject drops an assertion in response to an explicit contradicting
// authoritative value.
func (s *Set) Reject(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, key)
	delete(s.confirmed, key)
}

// Has reports whether key is asserted locally, pending or confirmed.
// Availability computations must use this in union with authoritative state,
// never authoritative state alone.
func (s *Set) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; ok {
		return true
	}
	_, ok := s.confirmed[key]
	return ok
}

// PendingCount returns the number of unconfirmed assertions.
func (s *Set) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// SyncKeys is Sync over a key slice.
func (s *Set) SyncKeys(keys []string) {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	s.Sync(set)
}
