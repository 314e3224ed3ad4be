// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package validate decides whether a file's bytes conform to a declared
// format. It is the corruption detector in front of the recovery engine.
//
// Validation results are cached by path and file signature (size plus
// modification time) so unchanged files are not re-parsed on every read.
// The cache is dropped wholesale by ClearCache, per entry by Evict, or
// automatically by the fsnotify-backed CacheWatcher when files change
// outside the API.
package validate

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/logkeep/internal/diag"
	"github.com/tomtom215/logkeep/internal/format"
)

// maxLineBytes bounds a single JSON-Lines line. Log records beyond 16MB
// are treated as corruption rather than grounds for unbounded buffering.
const maxLineBytes = 16 * 1024 * 1024

// Validator checks file conformance with result caching. Safe for
// concurrent use; one process-wide instance is shared by all callers.
type Validator struct {
	rep *diag.Reporter

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// cacheEntry records the outcome of one validation together with the file
// signature it was computed against.
type cacheEntry struct {
	format  format.Format
	size    int64
	modTime time.Time
	valid   bool
}

// NewValidator creates a Validator reporting through the given channel.
func NewValidator(rep *diag.Reporter) *Validator {
	return &Validator{
		rep:   rep.Component("validate"),
		cache: make(map[string]cacheEntry),
	}
}

// IsValid reports whether the file at path conforms to the format.
// A file that cannot be read (including one that does not exist) is
// not valid.
func (v *Validator) IsValid(path string, f format.Format) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	key := cacheKey(path)
	v.mu.RLock()
	entry, ok := v.cache[key]
	v.mu.RUnlock()
	if ok && entry.format == f && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
		return entry.valid
	}

	valid := v.validate(path, f)

	v.mu.Lock()
	v.cache[key] = cacheEntry{format: f, size: info.Size(), modTime: info.ModTime(), valid: valid}
	v.mu.Unlock()

	return valid
}

// IsValidJSON reports whether the entire file parses as one JSON document.
func (v *Validator) IsValidJSON(path string) bool {
	return v.IsValid(path, format.JSON)
}

// IsValidJSONLines reports whether every non-blank line parses
// independently as one JSON value. A single malformed line invalidates
// the whole file.
func (v *Validator) IsValidJSONLines(path string) bool {
	return v.IsValid(path, format.JSONLines)
}

// IsValidCSV reports whether the file can be tokenized as delimited text.
// This is deliberately permissive: CSV has no fixed schema, so ragged rows
// are accepted and only decode failure rejects.
func (v *Validator) IsValidCSV(path string) bool {
	return v.IsValid(path, format.CSV)
}

// DetectCorruption is the negation of IsValid, used by the façade to
// decide whether the recovery path is needed.
func (v *Validator) DetectCorruption(path string, f format.Format) bool {
	return !v.IsValid(path, f)
}

// ClearCache drops all cached validation results.
func (v *Validator) ClearCache() {
	v.mu.Lock()
	v.cache = make(map[string]cacheEntry)
	v.mu.Unlock()
}

// Evict drops the cached result for one path.
func (v *Validator) Evict(path string) {
	v.mu.Lock()
	delete(v.cache, cacheKey(path))
	v.mu.Unlock()
}

// CacheSize returns the number of cached entries.
func (v *Validator) CacheSize() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.cache)
}

// cacheKey keys the cache by absolute path so entries created under a
// relative path are found by the watcher, which evicts by the absolute
// names fsnotify delivers.
func cacheKey(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// validate parses the file under the format's rules.
func (v *Validator) validate(path string, f format.Format) bool {
	switch f {
	case format.JSON:
		return v.validateJSON(path)
	case format.JSONLines:
		return v.validateJSONLines(path)
	case format.CSV:
		return v.validateCSV(path)
	default:
		v.rep.Warn().Str("path", path).Str("format", f.String()).Msg("unknown format treated as invalid")
		return false
	}
}

// validateJSON requires the whole file to be exactly one JSON document.
func (v *Validator) validateJSON(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return false
	}
	// Anything after the first document (other than whitespace) means the
	// file is not a single document.
	if err := dec.Decode(&doc); err != io.EOF {
		return false
	}
	return true
}

// validateJSONLines requires every non-blank line to parse on its own.
func (v *Validator) validateJSONLines(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return false
		}
	}
	return scanner.Err() == nil
}

// validateCSV accepts anything the CSV reader can tokenize, ragged rows
// included. FieldsPerRecord is disabled so row width is never enforced.
func (v *Validator) validateCSV(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	for {
		_, err := r.Read()
		if err == io.EOF {
			return true
		}
		if err != nil {
			return false
		}
	}
}
