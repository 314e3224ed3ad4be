// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package protect guards records between "accepted by the logging
// pipeline" and "confirmed delivered to an external sink".
//
// Each queue gets one append-only JSON-Lines file. A record is appended
// (fsynced) before the send is attempted and removed on confirmation, so
// a sink outage or process crash never loses an in-flight record: on
// startup or reconnect, RestoreMessages replays everything still stored.
//
// The lifecycle mirrors a write-ahead log:
//
//	record → BackupMessage (fsync) → sink send → Confirm
//	                                     ↓ (on failure)
//	                            record preserved for retry
package protect

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/logkeep/internal/atomicfile"
	"github.com/tomtom215/logkeep/internal/diag"
)

// storeExt is the extension of per-queue backup files.
const storeExt = ".jsonl"

// maxRecordBytes bounds a single stored record line.
const maxRecordBytes = 16 * 1024 * 1024

// PendingMessage is one record awaiting delivery confirmation.
type PendingMessage struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Message     json.RawMessage `json:"message"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempts    int             `json:"attempts"`
	LastAttempt time.Time       `json:"last_attempt_at"`
	LastError   string          `json:"last_error,omitempty"`
}

// QueueStats summarizes one queue's pending records.
type QueueStats struct {
	Pending       int       `json:"pending"`
	TotalAttempts int       `json:"total_attempts"`
	OldestEnqueue time.Time `json:"oldest_enqueued_at"`
}

// Guard is the delivery-loss protection store. One instance per process;
// all methods are safe for concurrent use.
type Guard struct {
	dir    string
	writer *atomicfile.Writer
	rep    *diag.Reporter

	mu     sync.Mutex
	queues map[string]*sync.Mutex
}

// NewGuard creates a Guard storing per-queue files under dir. The
// directory is created if absent.
func NewGuard(dir string, writer *atomicfile.Writer, rep *diag.Reporter) (*Guard, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create protection dir: %w", err)
	}
	return &Guard{
		dir:    dir,
		writer: writer,
		rep:    rep.Component("protect"),
		queues: make(map[string]*sync.Mutex),
	}, nil
}

// BackupMessage appends a timestamped record for queue and fsyncs it.
// Returns false on any failure without raising.
func (g *Guard) BackupMessage(message any, queue string) bool {
	payload, err := json.Marshal(message)
	if err != nil {
		g.rep.Error().Err(err).Str("queue", queue).Msg("cannot marshal message for backup")
		recordBackupFailure(queue)
		return false
	}

	rec := PendingMessage{
		ID:         uuid.NewString(),
		Queue:      queue,
		Message:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		g.rep.Error().Err(err).Str("queue", queue).Msg("cannot marshal backup record")
		recordBackupFailure(queue)
		return false
	}

	lock := g.queueLock(queue)
	lock.Lock()
	defer lock.Unlock()

	if err := g.appendLine(queue, line); err != nil {
		g.rep.Error().Err(err).Str("queue", queue).Msg("message backup failed")
		recordBackupFailure(queue)
		return false
	}
	recordBackup(queue)
	return true
}

// RestoreMessages reads back everything currently stored for queue,
// oldest first. Unparseable lines are skipped, never fatal.
func (g *Guard) RestoreMessages(queue string) []PendingMessage {
	lock := g.queueLock(queue)
	lock.Lock()
	defer lock.Unlock()
	return g.readLocked(queue)
}

// Confirm removes a delivered record. Returns false when the record is
// no longer stored.
func (g *Guard) Confirm(queue, id string) bool {
	lock := g.queueLock(queue)
	lock.Lock()
	defer lock.Unlock()

	records := g.readLocked(queue)
	kept := records[:0]
	for _, rec := range records {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	if len(kept) == len(records) {
		return false
	}
	return g.rewriteLocked(queue, kept)
}

// MarkAttempt records a failed delivery attempt against a stored record.
func (g *Guard) MarkAttempt(queue, id string, sendErr error) bool {
	lock := g.queueLock(queue)
	lock.Lock()
	defer lock.Unlock()

	records := g.readLocked(queue)
	found := false
	for i := range records {
		if records[i].ID == id {
			records[i].Attempts++
			records[i].LastAttempt = time.Now().UTC()
			if sendErr != nil {
				records[i].LastError = sendErr.Error()
			}
			found = true
			break
		}
	}
	if !found {
		return false
	}
	return g.rewriteLocked(queue, records)
}

// CleanupOldBackups deletes records enqueued at or before now-maxAge
// across all queues and returns how many were removed. A zero maxAge
// removes everything currently stored.
func (g *Guard) CleanupOldBackups(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	removed := 0
	for _, queue := range g.listQueues() {
		lock := g.queueLock(queue)
		lock.Lock()
		records := g.readLocked(queue)
		kept := records[:0]
		for _, rec := range records {
			if rec.EnqueuedAt.After(cutoff) {
				kept = append(kept, rec)
			}
		}
		if dropped := len(records) - len(kept); dropped > 0 && g.rewriteLocked(queue, kept) {
			removed += dropped
		}
		lock.Unlock()
	}

	if removed > 0 {
		g.rep.Info().Int("removed", removed).Dur("max_age", maxAge).Msg("pruned stale pending messages")
		recordPruned(removed)
	}
	return removed
}

// Stats exposes per-queue pending counts for observability.
func (g *Guard) Stats() map[string]QueueStats {
	stats := make(map[string]QueueStats)
	for _, queue := range g.listQueues() {
		lock := g.queueLock(queue)
		lock.Lock()
		records := g.readLocked(queue)
		lock.Unlock()

		qs := QueueStats{Pending: len(records)}
		for _, rec := range records {
			qs.TotalAttempts += rec.Attempts
			if qs.OldestEnqueue.IsZero() || rec.EnqueuedAt.Before(qs.OldestEnqueue) {
				qs.OldestEnqueue = rec.EnqueuedAt
			}
		}
		stats[queue] = qs
		updatePendingGauge(queue, len(records))
	}
	return stats
}

// queueLock returns the mutex for one queue, creating it lazily. Queue
// locks are never evicted; the queue population is small and fixed by
// configuration, unlike the per-path registry in the durable façade.
func (g *Guard) queueLock(queue string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.queues[sanitize(queue)]
	if !ok {
		l = &sync.Mutex{}
		g.queues[sanitize(queue)] = l
	}
	return l
}

// queuePath maps a queue name to its backup file.
func (g *Guard) queuePath(queue string) string {
	return filepath.Join(g.dir, sanitize(queue)+storeExt)
}

// appendLine appends one record line and fsyncs before returning. The
// append is a single write of a fully-formed line; a crash mid-append
// leaves at most one torn trailing line, which readLocked skips.
func (g *Guard) appendLine(queue string, line []byte) error {
	f, err := os.OpenFile(g.queuePath(queue), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync queue store: %w", err)
	}
	return nil
}

// readLocked parses the queue file; the queue lock must be held.
func (g *Guard) readLocked(queue string) []PendingMessage {
	f, err := os.Open(g.queuePath(queue))
	if err != nil {
		return []PendingMessage{}
	}
	defer f.Close()

	records := []PendingMessage{}
	skipped := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec PendingMessage
		if err := json.Unmarshal(line, &rec); err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if skipped > 0 {
		g.rep.Warn().Str("queue", queue).Int("skipped", skipped).Msg("skipped unparseable backup records")
	}
	return records
}

// rewriteLocked atomically replaces the queue file with the given
// records; the queue lock must be held. An empty set removes the file.
func (g *Guard) rewriteLocked(queue string, records []PendingMessage) bool {
	path := g.queuePath(queue)
	if len(records) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			g.rep.Warn().Err(err).Str("queue", queue).Msg("cannot remove drained queue store")
			return false
		}
		updatePendingGauge(queue, 0)
		return true
	}

	var buf bytes.Buffer
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			g.rep.Error().Err(err).Str("queue", queue).Msg("cannot re-marshal backup record")
			return false
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if !g.writer.WriteBytes(buf.Bytes(), path) {
		return false
	}
	updatePendingGauge(queue, len(records))
	return true
}

// listQueues enumerates queues with a backup file on disk.
func (g *Guard) listQueues() []string {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil
	}
	queues := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, storeExt) {
			continue
		}
		queues = append(queues, strings.TrimSuffix(name, storeExt))
	}
	return queues
}

// sanitize restricts queue names to a filesystem-safe alphabet so a queue
// name can never escape the protection directory.
func sanitize(queue string) string {
	if queue == "" {
		return "default"
	}
	var b strings.Builder
	b.Grow(len(queue))
	for _, r := range queue {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
