// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package format defines the closed set of on-disk formats the durability
// layer understands, and the payload shapes that travel through it.
//
// Formats form a closed enum rather than free-form strings so that adding
// one forces every switch in the writer, validator, and recovery engine to
// be revisited at compile time.
package format

import "fmt"

// Format identifies one of the supported on-disk encodings.
type Format int

const (
	// JSON is a single document: one object or array per file.
	JSON Format = iota

	// JSONLines is one complete JSON value per line, newline-terminated.
	JSONLines

	// CSV is a header row followed by delimited rows, values as text.
	CSV
)

// String returns the canonical lowercase name of the format.
func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case JSONLines:
		return "jsonl"
	case CSV:
		return "csv"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Parse converts a format name to a Format. Accepted names are
// "json", "jsonl" (or "jsonlines"), and "csv".
func Parse(name string) (Format, error) {
	switch name {
	case "json":
		return JSON, nil
	case "jsonl", "jsonlines":
		return JSONLines, nil
	case "csv":
		return CSV, nil
	default:
		return 0, fmt.Errorf("unknown format %q", name)
	}
}

// Document is the payload shape for single-document JSON files.
type Document = map[string]any

// Record is one row of a CSV file, keyed by header field.
type Record = map[string]string
