// Package caching provides the in-memory state layer for the session
// engine: per-tenant session caches plus the per-session lock table that
// serializes concurrent mutations of one session record.
package caching

import "sync"

// LockTable hands out one mutex per key so that concurrent heartbeat,
// switch and end calls for the same session serialize while different
// sessions proceed in parallel. Entries are reference counted and removed
// when the last holder releases, so the table stays bounded by the number
// of in-flight operations.
type LockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for key, creating it on first use.
func (t *LockTable) Lock(key string) {
	t.mu.Lock()
	entry, exists := t.locks[key]
	if !exists {
		entry = &lockEntry{}
		t.locks[key] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the mutex for key and drops the entry when nothing else
// is waiting on it.
func (t *LockTable) Unlock(key string) {
	t.mu.Lock()
	entry, exists := t.locks[key]
	if exists {
		entry.refs--
		if entry.refs <= 0 {
			delete(t.locks, key)
		}
	}
	t.mu.Unlock()

	if exists {
		entry.mu.Unlock()
	}
}

// Size reports how many keys currently hold locks, for diagnostics.
func (t *LockTable) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
