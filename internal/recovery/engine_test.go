// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package recovery

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tomtom215/logkeep/internal/diag"
	"github.com/tomtom215/logkeep/internal/format"
)

func newTestEngine() *Engine {
	return NewEngine(diag.NewReporter(diag.Options{Output: io.Discard}))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecoverJSON(t *testing.T) {
	e := newTestEngine()
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    format.Document
	}{
		{
			name:    "trailing garbage stripped",
			content: `{"a": 1}corrupted tail bytes`,
			want:    format.Document{"a": float64(1)},
		},
		{
			name:    "truncated object closed",
			content: `{"a": 1, "b": {"c": 2}, "d":`,
			want:    format.Document{"a": float64(1), "b": map[string]any{"c": float64(2)}},
		},
		{
			name:    "truncated mid string",
			content: `{"a": "complete", "b": "cut off her`,
			want:    format.Document{"a": "complete"},
		},
		{
			name:    "truncated after comma",
			content: `{"a": 1,`,
			want:    format.Document{"a": float64(1)},
		},
		{
			name:    "first document wins over later lines",
			content: "{\"a\": 1}\ngarbage line\n{\"b\": 2}\n",
			want:    format.Document{"a": float64(1)},
		},
		{
			name:    "object lines merged when head is corrupt",
			content: "garbage head\n{\"a\": 1}\n{\"b\": 2}\n",
			want:    format.Document{"a": float64(1), "b": float64(2)},
		},
		{
			name:    "plain text yields empty default",
			content: `not json at all`,
			want:    format.Document{},
		},
		{
			name:    "empty file yields empty default",
			content: ``,
			want:    format.Document{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".json", tt.content)
			got := e.RecoverJSON(path)
			if got == nil {
				t.Fatal("RecoverJSON returned nil, want non-nil document")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("RecoverJSON() = %#v, want %#v", got, tt.want)
			}
			for k, want := range tt.want {
				gotVal, ok := got[k]
				if !ok {
					t.Errorf("missing key %q", k)
					continue
				}
				switch wantTyped := want.(type) {
				case map[string]any:
					inner, ok := gotVal.(map[string]any)
					if !ok || len(inner) != len(wantTyped) {
						t.Errorf("key %q = %#v, want %#v", k, gotVal, want)
					}
				default:
					if gotVal != want {
						t.Errorf("key %q = %#v, want %#v", k, gotVal, want)
					}
				}
			}
		})
	}
}

func TestRecoverJSON_MissingFile(t *testing.T) {
	e := newTestEngine()
	got := e.RecoverJSON(filepath.Join(t.TempDir(), "absent.json"))
	if got == nil || len(got) != 0 {
		t.Errorf("RecoverJSON on missing file = %#v, want empty document", got)
	}
}

func TestRecoverJSON_NeverPanicsAndEmitsOneEvent(t *testing.T) {
	var buf bytes.Buffer
	e := NewEngine(diag.NewReporter(diag.Options{Output: &buf}))
	path := writeFile(t, t.TempDir(), "hopeless.json", "\x00\x01\x02 binary junk")

	got := e.RecoverJSON(path)
	if len(got) != 0 {
		t.Errorf("expected empty default, got %#v", got)
	}

	events := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(events) != 1 {
		t.Errorf("expected exactly 1 diagnostic event, got %d: %s", len(events), buf.String())
	}
	if !strings.Contains(events[0], `"level":"warn"`) {
		t.Errorf("expected a warn event, got %s", events[0])
	}
}

func TestRecoverCSV(t *testing.T) {
	e := newTestEngine()
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    int // recovered record count
	}{
		{"intact rows", "a,b\n1,2\n3,4\n", 2},
		{"ragged rows kept", "a,b\n1\n3,4,5\n", 2},
		{"bad quoting skipped per row", "a,b\n1,2\nx,\"un\"closed\n3,4\n", 2},
		{"empty file yields no records", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, strings.ReplaceAll(tt.name, " ", "_")+".csv", tt.content)
			got := e.RecoverCSV(path)
			if got == nil {
				t.Fatal("RecoverCSV returned nil, want non-nil slice")
			}
			if len(got) != tt.want {
				t.Errorf("recovered %d records, want %d: %#v", len(got), tt.want, got)
			}
		})
	}
}

func TestRecoverCSV_RaggedRowZipping(t *testing.T) {
	e := newTestEngine()
	path := writeFile(t, t.TempDir(), "ragged.csv", "a,b,c\n1,2\n")

	records := e.RecoverCSV(path)
	if len(records) != 1 {
		t.Fatalf("recovered %d records, want 1", len(records))
	}
	rec := records[0]
	if rec["a"] != "1" || rec["b"] != "2" {
		t.Errorf("unexpected record %#v", rec)
	}
	if _, ok := rec["c"]; ok {
		t.Errorf("short row must not invent field c: %#v", rec)
	}
}
