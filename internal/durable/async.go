// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package durable

import (
	"context"

	"github.com/tomtom215/logkeep/internal/format"
)

// Async variants expose the identical contract as their synchronous
// counterparts but run the blocking file operations on the store's bounded
// worker pool, so callers on a cooperative scheduler never stall. The same
// per-path lock applies: sync and async callers to one path are mutually
// exclusive.
//
// Each call returns a buffered channel that receives exactly one result.
// A canceled context yields the operation's failure value (false or the
// empty default) without touching the file.

// AsyncSafeWriteJSON schedules SafeWriteJSON on the worker pool.
func (s *Store) AsyncSafeWriteJSON(ctx context.Context, doc format.Document, path string) <-chan bool {
	return dispatch(ctx, s.pool, false, func() bool {
		return s.SafeWriteJSON(doc, path)
	})
}

// AsyncSafeWriteJSONLines schedules SafeWriteJSONLines on the worker pool.
func (s *Store) AsyncSafeWriteJSONLines(ctx context.Context, records []map[string]any, path string) <-chan bool {
	return dispatch(ctx, s.pool, false, func() bool {
		return s.SafeWriteJSONLines(records, path)
	})
}

// AsyncSafeWriteCSV schedules SafeWriteCSV on the worker pool.
func (s *Store) AsyncSafeWriteCSV(ctx context.Context, records []format.Record, path string) <-chan bool {
	return dispatch(ctx, s.pool, false, func() bool {
		return s.SafeWriteCSV(records, path)
	})
}

// AsyncSafeReadJSON schedules SafeReadJSON on the worker pool.
func (s *Store) AsyncSafeReadJSON(ctx context.Context, path string) <-chan format.Document {
	return dispatch(ctx, s.pool, format.Document{}, func() format.Document {
		return s.SafeReadJSON(path)
	})
}

// AsyncSafeReadCSV schedules SafeReadCSV on the worker pool.
func (s *Store) AsyncSafeReadCSV(ctx context.Context, path string) <-chan []format.Record {
	return dispatch(ctx, s.pool, []format.Record{}, func() []format.Record {
		return s.SafeReadCSV(path)
	})
}

// dispatch runs op once a pool slot is available and delivers its result.
// A context canceled before or while waiting for a slot delivers fallback
// instead. An operation already running is not cancellable mid-flight: it
// completes or is abandoned in its entirety by the atomic-write discipline.
func dispatch[T any](ctx context.Context, pool chan struct{}, fallback T, op func() T) <-chan T {
	out := make(chan T, 1)
	go func() {
		// An already-canceled context must never reach the file, even
		// when a pool slot happens to be free.
		if ctx.Err() != nil {
			out <- fallback
			return
		}
		select {
		case pool <- struct{}{}:
			defer func() { <-pool }()
			out <- op()
		case <-ctx.Done():
			out <- fallback
		}
	}()
	return out
}
