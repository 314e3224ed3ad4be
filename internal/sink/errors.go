// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package sink

import "errors"

// ErrClosed is returned by Send after the sink has been closed. It is a
// transient condition from the delivery loop's point of view: records stay
// in the backup store until a replacement sink comes up.
var ErrClosed = errors.New("sink closed")
