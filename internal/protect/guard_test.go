// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package protect

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tomtom215/logkeep/internal/atomicfile"
	"github.com/tomtom215/logkeep/internal/diag"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	rep := diag.NewReporter(diag.Options{Output: io.Discard})
	g, err := NewGuard(t.TempDir(), atomicfile.NewWriter(rep), rep)
	require.NoError(t, err)
	return g
}

func TestGuardBackupAndRestore(t *testing.T) {
	g := newTestGuard(t)

	before := time.Now().UTC()
	require.True(t, g.BackupMessage(map[string]any{"event": "login", "user": "alice"}, "audit"))
	require.True(t, g.BackupMessage(map[string]any{"event": "logout", "user": "alice"}, "audit"))

	restored := g.RestoreMessages("audit")
	require.Len(t, restored, 2)
	require.NotEmpty(t, restored[0].ID)
	require.NotEqual(t, restored[0].ID, restored[1].ID)
	require.Equal(t, "audit", restored[0].Queue)
	require.JSONEq(t, `{"event":"login","user":"alice"}`, string(restored[0].Message))
	require.False(t, restored[0].EnqueuedAt.Before(before))
	require.Zero(t, restored[0].Attempts)
}

func TestGuardQueuesAreIsolated(t *testing.T) {
	g := newTestGuard(t)

	require.True(t, g.BackupMessage("a", "alerts"))
	require.True(t, g.BackupMessage("b", "audit"))

	require.Len(t, g.RestoreMessages("alerts"), 1)
	require.Len(t, g.RestoreMessages("audit"), 1)
	require.Empty(t, g.RestoreMessages("missing"))
}

func TestGuardConfirmRemovesRecord(t *testing.T) {
	g := newTestGuard(t)

	require.True(t, g.BackupMessage("one", "q"))
	require.True(t, g.BackupMessage("two", "q"))

	restored := g.RestoreMessages("q")
	require.Len(t, restored, 2)

	require.True(t, g.Confirm("q", restored[0].ID))
	require.False(t, g.Confirm("q", restored[0].ID), "second confirm of same id")

	remaining := g.RestoreMessages("q")
	require.Len(t, remaining, 1)
	require.Equal(t, restored[1].ID, remaining[0].ID)
}

func TestGuardDrainedQueueFileRemoved(t *testing.T) {
	g := newTestGuard(t)

	require.True(t, g.BackupMessage("one", "q"))
	id := g.RestoreMessages("q")[0].ID
	require.True(t, g.Confirm("q", id))

	_, err := os.Stat(g.queuePath("q"))
	require.True(t, os.IsNotExist(err))
}

func TestGuardMarkAttempt(t *testing.T) {
	g := newTestGuard(t)

	require.True(t, g.BackupMessage("payload", "q"))
	id := g.RestoreMessages("q")[0].ID

	require.True(t, g.MarkAttempt("q", id, errTransient))
	require.True(t, g.MarkAttempt("q", id, errTransient))
	require.False(t, g.MarkAttempt("q", "no-such-id", errTransient))

	rec := g.RestoreMessages("q")[0]
	require.Equal(t, 2, rec.Attempts)
	require.Equal(t, errTransient.Error(), rec.LastError)
	require.False(t, rec.LastAttempt.IsZero())
}

func TestGuardSkipsCorruptLines(t *testing.T) {
	g := newTestGuard(t)

	require.True(t, g.BackupMessage("good", "q"))

	f, err := os.OpenFile(g.queuePath("q"), os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("{torn record with no clos\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.True(t, g.BackupMessage("also good", "q"))

	restored := g.RestoreMessages("q")
	require.Len(t, restored, 2)
}

func TestGuardCleanupOldBackups(t *testing.T) {
	g := newTestGuard(t)

	require.True(t, g.BackupMessage("one", "a"))
	require.True(t, g.BackupMessage("two", "a"))
	require.True(t, g.BackupMessage("three", "b"))

	// A generous horizon keeps everything.
	require.Zero(t, g.CleanupOldBackups(time.Hour))
	require.Len(t, g.RestoreMessages("a"), 2)

	// A zero horizon removes everything currently stored.
	require.Equal(t, 3, g.CleanupOldBackups(0))
	require.Empty(t, g.RestoreMessages("a"))
	require.Empty(t, g.RestoreMessages("b"))
}

func TestGuardStats(t *testing.T) {
	g := newTestGuard(t)

	require.True(t, g.BackupMessage("one", "q"))
	require.True(t, g.BackupMessage("two", "q"))
	id := g.RestoreMessages("q")[0].ID
	require.True(t, g.MarkAttempt("q", id, errTransient))

	stats := g.Stats()
	require.Len(t, stats, 1)
	require.Equal(t, 2, stats["q"].Pending)
	require.Equal(t, 1, stats["q"].TotalAttempts)
	require.False(t, stats["q"].OldestEnqueue.IsZero())
}

func TestGuardSanitizesQueueNames(t *testing.T) {
	g := newTestGuard(t)

	require.True(t, g.BackupMessage("payload", "../../etc/passwd"))

	path := g.queuePath("../../etc/passwd")
	require.Equal(t, g.dir, filepath.Dir(path))
	require.Len(t, g.RestoreMessages("../../etc/passwd"), 1)
}
