// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package durable

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomtom215/logkeep/internal/format"
)

// Prometheus metrics for façade operations
var (
	// writesTotal counts successful atomic writes by format.
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_writes_total",
		Help: "Total number of successful durable writes",
	}, []string{"format"})

	// writeFailuresTotal counts failed writes by format.
	writeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_write_failures_total",
		Help: "Total number of failed durable writes",
	}, []string{"format"})

	// writeLatency measures end-to-end write latency including the
	// pre-write snapshot.
	writeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "logkeep_write_latency_seconds",
		Help:    "Durable write latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"format"})

	// corruptionsTotal counts reads that found a file failing validation.
	corruptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_corruptions_detected_total",
		Help: "Total number of reads that detected a corrupt file",
	}, []string{"format"})

	// recoveriesTotal counts reads salvaged by the recovery engine.
	recoveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_recoveries_total",
		Help: "Total number of reads salvaged by the recovery engine",
	}, []string{"format"})

	// restoresTotal counts reads served after a backup restoration.
	restoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_backup_restores_total",
		Help: "Total number of backup restorations triggered by reads",
	}, []string{"format"})
)

func recordWrite(f format.Format, elapsed time.Duration) {
	writesTotal.WithLabelValues(f.String()).Inc()
	writeLatency.WithLabelValues(f.String()).Observe(elapsed.Seconds())
}

func recordWriteFailure(f format.Format) {
	writeFailuresTotal.WithLabelValues(f.String()).Inc()
}

func recordCorruption(f format.Format) {
	corruptionsTotal.WithLabelValues(f.String()).Inc()
}

func recordRecovery(f format.Format) {
	recoveriesTotal.WithLabelValues(f.String()).Inc()
}

func recordRestore(f format.Format) {
	restoresTotal.WithLabelValues(f.String()).Inc()
}
