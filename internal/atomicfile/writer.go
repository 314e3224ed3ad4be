// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package atomicfile implements the atomic write primitive underneath the
// durability layer.
//
// A value is serialized fully into a temporary file created in the same
// directory as the destination (the rename must stay on one filesystem to be
// atomic), flushed and fsynced, then renamed onto the destination in a single
// filesystem operation. An observer therefore sees either the previous
// fully-written file or the next one, never a mixture. On any failure the
// temporary file is removed and the destination is left untouched.
package atomicfile

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/logkeep/internal/diag"
	"github.com/tomtom215/logkeep/internal/format"
)

// Writer performs atomic file replacement. One instance is shared
// process-wide; it holds no per-path state and is safe for concurrent use.
type Writer struct {
	rep *diag.Reporter
}

// NewWriter creates a Writer reporting through the given diagnostic channel.
func NewWriter(rep *diag.Reporter) *Writer {
	return &Writer{rep: rep.Component("atomicfile")}
}

// WriteJSON atomically replaces path with the document serialized as one
// indented JSON object. Returns false instead of an error; the failure is
// surfaced on the diagnostic channel.
func (w *Writer) WriteJSON(doc format.Document, path string) bool {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		w.report(path, format.JSON, fmt.Errorf("marshal: %w", err))
		return false
	}
	return w.WriteBytes(append(data, '\n'), path)
}

// WriteJSONLines atomically replaces path with one compact JSON value per
// line, newline-terminated. A record that fails to marshal aborts the whole
// write; no partial file is ever visible.
func (w *Writer) WriteJSONLines(records []map[string]any, path string) bool {
	var buf bytes.Buffer
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			w.report(path, format.JSONLines, fmt.Errorf("marshal record %d: %w", i, err))
			return false
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return w.WriteBytes(buf.Bytes(), path)
}

// WriteCSV atomically replaces path with a header row derived from the union
// of all record field names (sorted for determinism) followed by one row per
// record. Missing fields serialize as empty strings.
func (w *Writer) WriteCSV(records []format.Record, path string) bool {
	header := csvHeader(records)

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(header); err != nil {
		w.report(path, format.CSV, fmt.Errorf("write header: %w", err))
		return false
	}
	row := make([]string, len(header))
	for _, rec := range records {
		for i, field := range header {
			row[i] = rec[field]
		}
		if err := cw.Write(row); err != nil {
			w.report(path, format.CSV, fmt.Errorf("write row: %w", err))
			return false
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		w.report(path, format.CSV, fmt.Errorf("flush: %w", err))
		return false
	}
	return w.WriteBytes(buf.Bytes(), path)
}

// Write dispatches to the format-specific writer. The value must match the
// format's payload shape; a mismatch is a write failure, not a panic.
func (w *Writer) Write(value any, path string, f format.Format) bool {
	switch f {
	case format.JSON:
		doc, ok := value.(format.Document)
		if !ok {
			w.report(path, f, fmt.Errorf("json write requires a document, got %T", value))
			return false
		}
		return w.WriteJSON(doc, path)
	case format.JSONLines:
		records, ok := value.([]map[string]any)
		if !ok {
			w.report(path, f, fmt.Errorf("jsonl write requires records, got %T", value))
			return false
		}
		return w.WriteJSONLines(records, path)
	case format.CSV:
		records, ok := value.([]format.Record)
		if !ok {
			w.report(path, f, fmt.Errorf("csv write requires records, got %T", value))
			return false
		}
		return w.WriteCSV(records, path)
	default:
		w.report(path, f, fmt.Errorf("unsupported format"))
		return false
	}
}

// WriteBytes atomically replaces path with data using the temp-write,
// fsync, rename sequence. This is the primitive every other write and the
// backup restore path go through.
func (w *Writer) WriteBytes(data []byte, path string) bool {
	if err := replace(data, path); err != nil {
		w.rep.Error().Err(err).Str("path", path).Msg("atomic write failed")
		return false
	}
	return true
}

// replace performs the temp-write, fsync, rename sequence.
func replace(data []byte, path string) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp."+uuid.NewString()[:8])

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}

	// Persist the rename itself. Failure here does not undo the rename,
	// so it is reported as best effort rather than a write failure.
	syncDir(dir)
	return nil
}

// syncDir fsyncs a directory so a completed rename survives power loss.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	d.Sync() //nolint:errcheck // directory sync is not supported on all platforms
}

// csvHeader returns the sorted union of field names across all records.
func csvHeader(records []format.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range records {
		for field := range rec {
			seen[field] = struct{}{}
		}
	}
	header := make([]string, 0, len(seen))
	for field := range seen {
		header = append(header, field)
	}
	sort.Strings(header)
	return header
}

func (w *Writer) report(path string, f format.Format, err error) {
	w.rep.Error().Err(err).Str("path", path).Str("format", f.String()).Msg("write aborted")
}
