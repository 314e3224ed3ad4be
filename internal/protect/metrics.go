// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package protect

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	backupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_protect_backups_total",
		Help: "Messages backed up before delivery, by queue.",
	}, []string{"queue"})

	backupFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_protect_backup_failures_total",
		Help: "Message backups that could not be persisted, by queue.",
	}, []string{"queue"})

	deliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_protect_delivered_total",
		Help: "Messages confirmed delivered to a sink, by queue.",
	}, []string{"queue"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_protect_retries_total",
		Help: "Failed delivery attempts scheduled for retry, by queue.",
	}, []string{"queue"})

	expiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_protect_expired_total",
		Help: "Pending messages removed after exceeding their TTL, by queue.",
	}, []string{"queue"})

	exhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_protect_exhausted_total",
		Help: "Pending messages removed after exceeding max attempts, by queue.",
	}, []string{"queue"})

	droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "logkeep_protect_dropped_total",
		Help: "Pending messages dropped after a permanent delivery failure, by queue.",
	}, []string{"queue"})

	prunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logkeep_protect_pruned_total",
		Help: "Stale pending messages removed by retention pruning.",
	})

	pendingGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "logkeep_protect_pending",
		Help: "Messages currently awaiting delivery confirmation, by queue.",
	}, []string{"queue"})
)

func recordBackup(queue string)        { backupsTotal.WithLabelValues(queue).Inc() }
func recordBackupFailure(queue string) { backupFailuresTotal.WithLabelValues(queue).Inc() }
func recordDelivered(queue string)     { deliveredTotal.WithLabelValues(queue).Inc() }
func recordRetry(queue string)         { retriesTotal.WithLabelValues(queue).Inc() }
func recordExpired(queue string)       { expiredTotal.WithLabelValues(queue).Inc() }
func recordExhausted(queue string)     { exhaustedTotal.WithLabelValues(queue).Inc() }
func recordDropped(queue string)       { droppedTotal.WithLabelValues(queue).Inc() }
func recordPruned(n int)               { prunedTotal.Add(float64(n)) }

func updatePendingGauge(queue string, n int) {
	pendingGauge.WithLabelValues(queue).Set(float64(n))
}
