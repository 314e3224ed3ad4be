// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package durable

import (
	"path/filepath"
	"sync"
)

// lockRegistry hands out one mutex per absolute file path. The registry
// lookup is a short critical section; the returned per-path lock is then
// held for the full duration of one read or write.
//
// Entries are reference-counted and evicted when the count reaches zero,
// so a long-running process touching many distinct paths does not grow
// the registry without bound.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*pathLock)}
}

// acquire blocks until the per-path lock for path is held and returns it.
// Every acquire must be paired with a release.
func (r *lockRegistry) acquire(path string) *pathLock {
	key := normalize(path)

	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &pathLock{}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	l.mu.Lock()
	return l
}

// release unlocks the per-path lock and evicts the registry entry when no
// other holder or waiter references it.
func (r *lockRegistry) release(path string, l *pathLock) {
	l.mu.Unlock()

	key := normalize(path)
	r.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
	r.mu.Unlock()
}

// size returns the number of registered locks.
func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// normalize keys the registry by absolute path so "./x" and "x" contend
// on the same lock.
func normalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
