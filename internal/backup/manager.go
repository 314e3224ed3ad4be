// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package backup copies known-good files aside before risky writes and
// restores from those copies when recovery fails.
//
// Backups are timestamp-suffixed siblings of the source
// (<path>.bak.<unixnano>) so a restore is a same-filesystem atomic rename.
// The manager never auto-expires backups during normal operation; Prune
// bounds their number explicitly.
package backup

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/logkeep/internal/atomicfile"
	"github.com/tomtom215/logkeep/internal/diag"
)

// suffix separates the source name from the backup timestamp.
const suffix = ".bak."

// Manager creates and restores point-in-time file copies. One instance is
// shared process-wide; per-path serialization is the caller's concern (the
// durable façade holds the path lock across snapshot and write).
type Manager struct {
	writer *atomicfile.Writer
	rep    *diag.Reporter
}

// Entry describes one backup on disk.
type Entry struct {
	SourcePath string
	BackupPath string
	CreatedAt  time.Time
}

// NewManager creates a Manager that restores through the given atomic writer.
func NewManager(writer *atomicfile.Writer, rep *diag.Reporter) *Manager {
	return &Manager{
		writer: writer,
		rep:    rep.Component("backup"),
	}
}

// Create copies the current content of path to a timestamp-suffixed sibling
// and returns the backup path. ok is false when the source is absent or the
// copy fails; neither case is an error to the caller.
func (m *Manager) Create(path string) (backupPath string, ok bool) {
	src, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.rep.Warn().Err(err).Str("path", path).Msg("cannot open source for backup")
		}
		return "", false
	}
	defer src.Close()

	backupPath = path + suffix + strconv.FormatInt(time.Now().UnixNano(), 10)

	dst, err := os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		m.rep.Warn().Err(err).Str("path", path).Msg("cannot create backup file")
		return "", false
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)
		m.rep.Warn().Err(err).Str("path", path).Msg("backup copy failed")
		return "", false
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(backupPath)
		m.rep.Warn().Err(err).Str("path", path).Msg("backup sync failed")
		return "", false
	}
	if err := dst.Close(); err != nil {
		os.Remove(backupPath)
		m.rep.Warn().Err(err).Str("path", path).Msg("backup close failed")
		return "", false
	}

	return backupPath, true
}

// Restore overwrites target with the backup's content through the atomic
// writer, so restoration has the same all-or-nothing guarantee as a write.
func (m *Manager) Restore(target, backupPath string) bool {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		m.rep.Warn().Err(err).Str("backup", backupPath).Msg("cannot read backup")
		return false
	}
	if !m.writer.WriteBytes(data, target) {
		return false
	}
	m.rep.Info().Str("path", target).Str("backup", backupPath).Msg("restored from backup")
	return true
}

// Latest returns the most recent backup for path.
func (m *Manager) Latest(path string) (string, bool) {
	entries := m.List(path)
	if len(entries) == 0 {
		return "", false
	}
	return entries[len(entries)-1].BackupPath, true
}

// List returns all backups for path, oldest first.
func (m *Manager) List(path string) []Entry {
	matches, err := filepath.Glob(path + suffix + "*")
	if err != nil {
		return nil
	}

	entries := make([]Entry, 0, len(matches))
	for _, match := range matches {
		ts, ok := parseTimestamp(match)
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			SourcePath: path,
			BackupPath: match,
			CreatedAt:  time.Unix(0, ts),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries
}

// Prune deletes all but the newest keep backups for path and returns how
// many were removed.
func (m *Manager) Prune(path string, keep int) int {
	if keep < 0 {
		keep = 0
	}
	entries := m.List(path)
	if len(entries) <= keep {
		return 0
	}

	removed := 0
	for _, entry := range entries[:len(entries)-keep] {
		if err := os.Remove(entry.BackupPath); err != nil {
			m.rep.Warn().Err(err).Str("backup", entry.BackupPath).Msg("cannot prune backup")
			continue
		}
		removed++
	}
	if removed > 0 {
		m.rep.Info().Str("path", path).Int("removed", removed).Msg("pruned backups")
	}
	return removed
}

// parseTimestamp extracts the unixnano suffix from a backup filename.
func parseTimestamp(backupPath string) (int64, bool) {
	idx := strings.LastIndex(backupPath, suffix)
	if idx < 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(backupPath[idx+len(suffix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return ts, true
}
