// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package diag provides the self-contained diagnostic channel used by the
// durability layer.
//
// The durability layer exists to protect a logging pipeline. A failure inside
// it must never be reported through that same pipeline: if the pipeline is
// implicated in the fault, routing the report back into it risks recursion or
// deadlock. The Reporter therefore writes directly to its own zerolog logger
// (stderr by default) and depends on nothing else in this repository.
//
// # Usage
//
//	rep := diag.NewReporter(diag.Options{})
//	rep.Warn().Str("path", p).Msg("validation failed, attempting recovery")
//
// Component-scoped children carry a fixed field:
//
//	rep := root.Component("recovery")
//	rep.Error().Err(err).Msg("all strategies exhausted")
//
// # Flood control
//
// A durability fault under load (disk full, sink outage) can fire the same
// diagnostic thousands of times per second. Events beyond the configured rate
// are dropped and counted; the drop count is exposed via Dropped() and logged
// when the flood subsides.
package diag
