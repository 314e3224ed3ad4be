// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package atomicfile

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/logkeep/internal/diag"
	"github.com/tomtom215/logkeep/internal/format"
)

func newTestWriter() *Writer {
	return NewWriter(diag.NewReporter(diag.Options{Output: io.Discard}))
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	w := newTestWriter()
	path := filepath.Join(t.TempDir(), "doc.json")

	doc := format.Document{"a": float64(1), "nested": map[string]any{"b": "x"}}
	require.True(t, w.WriteJSON(doc, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got format.Document
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, float64(1), got["a"])
	require.Equal(t, "x", got["nested"].(map[string]any)["b"])
}

func TestWriteJSONLines_OneValuePerLine(t *testing.T) {
	w := newTestWriter()
	path := filepath.Join(t.TempDir(), "events.jsonl")

	records := []map[string]any{
		{"level": "info", "msg": "one"},
		{"level": "warn", "msg": "two"},
		{"level": "error", "msg": "three"},
	}
	require.True(t, w.WriteJSONLines(records, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasSuffix(data, []byte("\n")), "file must be newline-terminated")

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec), "line %d", i)
		require.Equal(t, records[i]["msg"], rec["msg"])
	}
}

func TestWriteCSV_HeaderIsSortedFieldUnion(t *testing.T) {
	w := newTestWriter()
	path := filepath.Join(t.TempDir(), "rows.csv")

	records := []format.Record{
		{"b": "2", "a": "1"},
		{"a": "3", "c": "4"},
	}
	require.True(t, w.WriteCSV(records, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "a,b,c", lines[0])
	require.Equal(t, "1,2,", lines[1])
	require.Equal(t, "3,,4", lines[2])
}

func TestWriteBytes_ReplacesNotAppends(t *testing.T) {
	w := newTestWriter()
	path := filepath.Join(t.TempDir(), "state.json")

	require.True(t, w.WriteBytes([]byte("first version with more bytes"), path))
	require.True(t, w.WriteBytes([]byte("second"), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func TestWriteBytes_FailureLeavesTargetUntouched(t *testing.T) {
	w := newTestWriter()
	dir := t.TempDir()
	path := filepath.Join(dir, "missing-dir", "state.json")

	// Destination directory does not exist, so the temp file cannot be
	// created. The write must fail without creating anything.
	require.False(t, w.WriteBytes([]byte("data"), path))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestWriteBytes_NoTempFileLeftBehind(t *testing.T) {
	w := newTestWriter()
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	require.True(t, w.WriteBytes([]byte("data"), path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "state.json", entries[0].Name())
}

func TestWrite_ShapeMismatchFailsClosed(t *testing.T) {
	w := newTestWriter()
	path := filepath.Join(t.TempDir(), "doc.json")

	require.False(t, w.Write([]int{1, 2, 3}, path, format.JSON))
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestWrite_Dispatch(t *testing.T) {
	w := newTestWriter()
	dir := t.TempDir()

	tests := []struct {
		name   string
		value  any
		file   string
		format format.Format
	}{
		{"json document", format.Document{"k": "v"}, "d.json", format.JSON},
		{"jsonl records", []map[string]any{{"k": "v"}}, "d.jsonl", format.JSONLines},
		{"csv records", []format.Record{{"k": "v"}}, "d.csv", format.CSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.True(t, w.Write(tt.value, path, tt.format))
			info, err := os.Stat(path)
			require.NoError(t, err)
			require.Positive(t, info.Size())
		})
	}
}

func TestWriteJSON_ConcurrentWritersLeaveOneCompleteValue(t *testing.T) {
	w := newTestWriter()
	path := filepath.Join(t.TempDir(), "contended.json")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			doc := format.Document{"writer": float64(n), "payload": strings.Repeat("x", 4096)}
			w.WriteJSON(doc, path)
		}(i)
	}
	wg.Wait()

	// Whatever interleaving occurred, the surviving file must be exactly
	// one writer's complete document.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got format.Document
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got["payload"], 4096)
}
