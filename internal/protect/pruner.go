// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package protect

import (
	"context"
	"time"
)

// Pruner periodically deletes pending records older than MaxAge from
// every queue. It implements suture.Service.
type Pruner struct {
	guard *Guard
	// Interval between prune passes.
	Interval time.Duration
	// MaxAge is the retention horizon for pending records.
	MaxAge time.Duration
}

// NewPruner creates a Pruner with the given retention horizon. Interval
// defaults to one hour, MaxAge to 24 hours.
func NewPruner(guard *Guard, interval, maxAge time.Duration) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Pruner{guard: guard, Interval: interval, MaxAge: maxAge}
}

// String implements fmt.Stringer for supervision tree logs.
func (p *Pruner) String() string { return "protect-pruner" }

// Serve runs prune passes until ctx is canceled.
func (p *Pruner) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.guard.CleanupOldBackups(p.MaxAge)
		}
	}
}
