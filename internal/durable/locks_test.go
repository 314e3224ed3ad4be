// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package durable

import (
	"sync"
	"testing"
)

func TestLockRegistry_SerializesSamePath(t *testing.T) {
	r := newLockRegistry()

	// A plain (unsynchronized) counter: only correct if the per-path
	// lock actually serializes the critical sections.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := r.acquire("/var/log/app/state.json")
			counter++
			r.release("/var/log/app/state.json", l)
		}()
	}
	wg.Wait()

	if counter != 64 {
		t.Errorf("counter = %d, want 64; per-path lock did not serialize", counter)
	}
}

func TestLockRegistry_EvictsAtZeroRefs(t *testing.T) {
	r := newLockRegistry()

	l := r.acquire("/tmp/a.json")
	if r.size() != 1 {
		t.Fatalf("size = %d, want 1", r.size())
	}
	r.release("/tmp/a.json", l)
	if r.size() != 0 {
		t.Errorf("size after release = %d, want 0; registry leaked", r.size())
	}
}

func TestLockRegistry_KeepsEntryWhileWaitersExist(t *testing.T) {
	r := newLockRegistry()

	first := r.acquire("/tmp/a.json")

	acquired := make(chan *pathLock)
	started := make(chan struct{})
	go func() {
		close(started)
		acquired <- r.acquire("/tmp/a.json")
	}()
	<-started

	// Releasing the first hold hands the lock to the waiter; the waiter's
	// reference keeps the entry alive until it too releases.
	r.release("/tmp/a.json", first)

	second := <-acquired
	r.release("/tmp/a.json", second)
	if r.size() != 0 {
		t.Errorf("size = %d, want 0 after all holders released", r.size())
	}
}

func TestLockRegistry_IndependentPathsDoNotContend(t *testing.T) {
	r := newLockRegistry()

	a := r.acquire("/tmp/a.json")
	// Acquiring a different path while the first is held must not block.
	done := make(chan struct{})
	go func() {
		b := r.acquire("/tmp/b.json")
		r.release("/tmp/b.json", b)
		close(done)
	}()
	<-done
	r.release("/tmp/a.json", a)
}

func TestNormalize_RelativeAndAbsoluteContend(t *testing.T) {
	if normalize("state.json") != normalize("./state.json") {
		t.Error("equivalent relative paths must normalize to the same key")
	}
}
