// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package durable is the integration point the rest of the logging system
// calls: atomic writes, validation, recovery, and backup restoration
// composed behind per-path locking and a small sync plus async API.
//
// The write path is caller → Store → atomic writer → disk. The read path
// branches: validator first; on corruption the recovery engine; if that
// yields nothing useful, restore from the newest backup and read once
// more; finally the documented empty default. No operation returns an
// error to the caller, because persistence trouble must never crash the
// logging pipeline this layer protects.
package durable

import (
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/logkeep/internal/atomicfile"
	"github.com/tomtom215/logkeep/internal/backup"
	"github.com/tomtom215/logkeep/internal/diag"
	"github.com/tomtom215/logkeep/internal/format"
	"github.com/tomtom215/logkeep/internal/recovery"
	"github.com/tomtom215/logkeep/internal/validate"
)

// Options tunes a Store.
type Options struct {
	// Workers bounds how many async operations execute concurrently.
	// Default: 4
	Workers int

	// SnapshotBeforeWrite backs up the existing file before replacing it
	// when the current content validates.
	// Default behavior: enabled (set SkipSnapshots to disable).
	SkipSnapshots bool

	// KeepBackups bounds how many snapshots are retained per path after
	// a successful write. Zero keeps all.
	KeepBackups int
}

// Store is the durable I/O façade. Construct one per process and share it;
// all methods are safe for concurrent use from any goroutine.
type Store struct {
	writer    *atomicfile.Writer
	validator *validate.Validator
	backups   *backup.Manager
	recovery  *recovery.Engine
	rep       *diag.Reporter

	locks *lockRegistry
	pool  chan struct{}
	opts  Options
}

// NewStore composes the four durability primitives behind one façade.
func NewStore(
	writer *atomicfile.Writer,
	validator *validate.Validator,
	backups *backup.Manager,
	engine *recovery.Engine,
	rep *diag.Reporter,
	opts Options,
) *Store {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Store{
		writer:    writer,
		validator: validator,
		backups:   backups,
		recovery:  engine,
		rep:       rep.Component("durable"),
		locks:     newLockRegistry(),
		pool:      make(chan struct{}, opts.Workers),
		opts:      opts,
	}
}

// SafeWriteJSON atomically persists doc at path. Returns false on any
// failure without raising.
func (s *Store) SafeWriteJSON(doc format.Document, path string) bool {
	return s.safeWrite(path, format.JSON, func() bool {
		return s.writer.WriteJSON(doc, path)
	})
}

// SafeWriteJSONLines atomically persists records at path, one JSON value
// per line.
func (s *Store) SafeWriteJSONLines(records []map[string]any, path string) bool {
	return s.safeWrite(path, format.JSONLines, func() bool {
		return s.writer.WriteJSONLines(records, path)
	})
}

// SafeWriteCSV atomically persists records at path as delimited text.
func (s *Store) SafeWriteCSV(records []format.Record, path string) bool {
	return s.safeWrite(path, format.CSV, func() bool {
		return s.writer.WriteCSV(records, path)
	})
}

// safeWrite holds the path lock across the snapshot and the write so the
// file on disk is always the previous or the next fully-written value.
func (s *Store) safeWrite(path string, f format.Format, write func() bool) bool {
	lock := s.locks.acquire(path)
	defer s.locks.release(path, lock)

	start := time.Now()

	if !s.opts.SkipSnapshots {
		if _, err := os.Stat(path); err == nil && s.validator.IsValid(path, f) {
			// Snapshot failure is not a write failure: the new value
			// still lands atomically, only rollback depth is lost.
			if _, ok := s.backups.Create(path); !ok {
				s.rep.Warn().Str("path", path).Msg("pre-write snapshot failed")
			} else if s.opts.KeepBackups > 0 {
				s.backups.Prune(path, s.opts.KeepBackups)
			}
		}
	}

	ok := write()
	if ok {
		s.validator.Evict(path)
		recordWrite(f, time.Since(start))
	} else {
		recordWriteFailure(f)
	}
	return ok
}

// SafeReadJSON returns the document at path, recovering or restoring as
// needed. On irrecoverable corruption it returns the empty document.
func (s *Store) SafeReadJSON(path string) format.Document {
	lock := s.locks.acquire(path)
	defer s.locks.release(path, lock)

	if s.validator.IsValid(path, format.JSON) {
		if doc, ok := readDocument(path); ok {
			return doc
		}
	}

	if _, err := os.Stat(path); err != nil {
		// Absent file is the empty default, not corruption.
		return format.Document{}
	}

	recordCorruption(format.JSON)
	if doc := s.recovery.RecoverJSON(path); len(doc) > 0 {
		recordRecovery(format.JSON)
		return doc
	}

	if doc, ok := s.readRestoredJSON(path); ok {
		return doc
	}

	s.rep.Warn().Str("path", path).Msg("unrecoverable json, returning empty document")
	return format.Document{}
}

// readRestoredJSON restores the newest backup and reads one more time.
func (s *Store) readRestoredJSON(path string) (format.Document, bool) {
	backupPath, ok := s.backups.Latest(path)
	if !ok {
		return nil, false
	}
	if !s.backups.Restore(path, backupPath) {
		return nil, false
	}
	s.validator.Evict(path)
	recordRestore(format.JSON)

	if !s.validator.IsValid(path, format.JSON) {
		return nil, false
	}
	return readDocument(path)
}

// SafeReadCSV returns the records at path, recovering or restoring as
// needed. On irrecoverable corruption it returns no records.
func (s *Store) SafeReadCSV(path string) []format.Record {
	lock := s.locks.acquire(path)
	defer s.locks.release(path, lock)

	if s.validator.IsValid(path, format.CSV) {
		if records, ok := readRecords(path); ok {
			return records
		}
	}

	if _, err := os.Stat(path); err != nil {
		return []format.Record{}
	}

	recordCorruption(format.CSV)
	if records := s.recovery.RecoverCSV(path); len(records) > 0 {
		recordRecovery(format.CSV)
		return records
	}

	if records, ok := s.readRestoredCSV(path); ok {
		return records
	}

	s.rep.Warn().Str("path", path).Msg("unrecoverable csv, returning no records")
	return []format.Record{}
}

// readRestoredCSV restores the newest backup and reads one more time.
func (s *Store) readRestoredCSV(path string) ([]format.Record, bool) {
	backupPath, ok := s.backups.Latest(path)
	if !ok {
		return nil, false
	}
	if !s.backups.Restore(path, backupPath) {
		return nil, false
	}
	s.validator.Evict(path)
	recordRestore(format.CSV)

	if !s.validator.IsValid(path, format.CSV) {
		return nil, false
	}
	return readRecords(path)
}

// ClearValidationCache drops every cached validation verdict.
func (s *Store) ClearValidationCache() {
	s.validator.ClearCache()
}

// LockCount reports how many per-path locks are currently registered.
// Exposed for observability; steady-state idle value is zero.
func (s *Store) LockCount() int {
	return s.locks.size()
}

// readDocument parses the file as one JSON document.
func readDocument(path string) (format.Document, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var doc format.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// readRecords parses the file as header-plus-rows CSV. Parsing here is as
// permissive as validation: ragged rows zip against the header.
func readRecords(path string) ([]format.Record, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return parseCSV(data)
}
