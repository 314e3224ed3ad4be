// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package main

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// The daemon must exit after a termination signal: the supervision tree
// stops and run returns instead of blocking on the terminal channel.
func TestRunStopsOnSignal(t *testing.T) {
	t.Setenv("LOGKEEP_DATA_DIR", t.TempDir())
	t.Setenv("LOGKEEP_DATA_WATCH_CACHE", "false")
	t.Setenv("LOGKEEP_OPS_ENABLED", "false")
	t.Setenv("LOGKEEP_PROTECT_ENABLED", "false")
	t.Setenv("LOGKEEP_LOG_LEVEL", "disabled")

	done := make(chan error, 1)
	go func() { done <- run() }()

	// Give run time to install its signal handler before signaling.
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after SIGTERM")
	}
}
