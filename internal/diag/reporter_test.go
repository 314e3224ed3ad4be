// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package diag

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
)

func countLines(buf *bytes.Buffer) int {
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return 0
	}
	return len(strings.Split(s, "\n"))
}

func TestReporter_EmitsStructuredEvents(t *testing.T) {
	var buf bytes.Buffer
	rep := NewReporter(Options{Output: &buf, Level: "info"})

	rep.Warn().Str("path", "/tmp/x.json").Msg("validation failed")

	if got := countLines(&buf); got != 1 {
		t.Fatalf("expected exactly 1 event, got %d", got)
	}

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("event is not valid JSON: %v", err)
	}
	if event["level"] != "warn" {
		t.Errorf("level = %v, want warn", event["level"])
	}
	if event["path"] != "/tmp/x.json" {
		t.Errorf("path = %v, want /tmp/x.json", event["path"])
	}
	if event["channel"] != "logkeep-diag" {
		t.Errorf("channel = %v, want logkeep-diag", event["channel"])
	}
}

func TestReporter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	rep := NewReporter(Options{Output: &buf, Level: "error"})

	rep.Info().Msg("suppressed")
	rep.Warn().Msg("suppressed")
	rep.Error().Msg("emitted")

	if got := countLines(&buf); got != 1 {
		t.Fatalf("expected 1 event at error level, got %d", got)
	}
}

func TestReporter_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	rep := NewReporter(Options{Output: &buf}).Component("recovery")

	rep.Error().Msg("all strategies exhausted")

	if !strings.Contains(buf.String(), `"component":"recovery"`) {
		t.Errorf("missing component field in %s", buf.String())
	}
}

func TestReporter_FloodControl(t *testing.T) {
	var buf bytes.Buffer
	rep := NewReporter(Options{Output: &buf, EventsPerSecond: 1, Burst: 5})

	for i := 0; i < 100; i++ {
		rep.Warn().Int("i", i).Msg("repeated failure")
	}

	emitted := countLines(&buf)
	if emitted > 10 {
		t.Errorf("flood control leaked %d events, want <= 10", emitted)
	}
	if rep.Dropped() == 0 {
		t.Error("expected dropped events to be counted")
	}
}

func TestReporter_ConcurrentUse(t *testing.T) {
	var buf safeBuffer
	rep := NewReporter(Options{Output: &buf, EventsPerSecond: 100000, Burst: 100000})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rep.Info().Int("j", j).Msg("concurrent")
			}
		}()
	}
	wg.Wait()

	if got := countLines(&buf.buf); got != 400 {
		t.Errorf("expected 400 events, got %d", got)
	}
}

// safeBuffer serializes writes; bytes.Buffer alone is not goroutine-safe.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
