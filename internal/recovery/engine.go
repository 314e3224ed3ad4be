// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package recovery reconstructs usable values from files the validator
// judged corrupt.
//
// Recovery is an ordered chain of strategies tried until one succeeds.
// The engine never returns an error and never panics: when every strategy
// fails it returns the empty default for the requested shape and emits
// exactly one diagnostic event. A logging subsystem must not crash its
// host application, whatever it finds on disk.
package recovery

import (
	"os"

	"github.com/tomtom215/logkeep/internal/diag"
	"github.com/tomtom215/logkeep/internal/format"
)

// Engine runs the recovery strategy chains. Stateless apart from its
// diagnostic channel; one instance is shared process-wide.
type Engine struct {
	rep *diag.Reporter
}

// NewEngine creates an Engine reporting through the given channel.
func NewEngine(rep *diag.Reporter) *Engine {
	return &Engine{rep: rep.Component("recovery")}
}

// jsonStrategy attempts to extract a document from raw bytes.
type jsonStrategy struct {
	name string
	run  func(data []byte) (format.Document, bool)
}

// csvStrategy attempts to extract records from raw bytes.
type csvStrategy struct {
	name string
	run  func(data []byte) ([]format.Record, bool)
}

// jsonChain is ordered from cheapest to most aggressive. First success wins.
var jsonChain = []jsonStrategy{
	{"parse", parseDocument},
	{"first-document", firstDocument},
	{"balanced-prefix", balancedPrefix},
	{"merge-lines", mergeObjectLines},
}

// csvChain mirrors the JSON chain for delimited text.
var csvChain = []csvStrategy{
	{"permissive-parse", parseRecords},
	{"salvage-lines", salvageRows},
}

// RecoverJSON reconstructs a document from a corrupt JSON file. On total
// failure it returns an empty document and emits one diagnostic event.
func (e *Engine) RecoverJSON(path string) format.Document {
	data, err := os.ReadFile(path)
	if err != nil {
		e.rep.Warn().Err(err).Str("path", path).Msg("json recovery failed, returning empty document")
		return format.Document{}
	}

	for _, s := range jsonChain {
		if doc, ok := s.run(data); ok {
			e.rep.Info().Str("path", path).Str("strategy", s.name).Msg("recovered json document")
			return doc
		}
	}

	e.rep.Warn().Str("path", path).Msg("json recovery failed, returning empty document")
	return format.Document{}
}

// RecoverCSV reconstructs records from a corrupt CSV file. On total
// failure it returns an empty record list and emits one diagnostic event.
func (e *Engine) RecoverCSV(path string) []format.Record {
	data, err := os.ReadFile(path)
	if err != nil {
		e.rep.Warn().Err(err).Str("path", path).Msg("csv recovery failed, returning no records")
		return []format.Record{}
	}

	for _, s := range csvChain {
		if records, ok := s.run(data); ok {
			e.rep.Info().Str("path", path).Str("strategy", s.name).Msg("recovered csv records")
			return records
		}
	}

	e.rep.Warn().Str("path", path).Msg("csv recovery failed, returning no records")
	return []format.Record{}
}
