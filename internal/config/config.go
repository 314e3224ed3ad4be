// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package config loads the logkeepd daemon configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables, in ascending precedence.
package config

import (
	"time"
)

// Config is the complete daemon configuration.
type Config struct {
	Data    DataConfig    `koanf:"data"`
	Protect ProtectConfig `koanf:"protect"`
	Ops     OpsConfig     `koanf:"ops"`
	Logging LoggingConfig `koanf:"logging"`
}

// DataConfig governs the durable store.
type DataConfig struct {
	// Dir is the root directory for persisted files.
	Dir string `koanf:"dir" validate:"required"`
	// Workers bounds concurrent async persistence operations.
	Workers int `koanf:"workers" validate:"min=1,max=256"`
	// KeepBackups caps pre-write snapshots retained per file. Zero
	// keeps all.
	KeepBackups int `koanf:"keep_backups" validate:"min=0"`
	// SkipSnapshots disables pre-write snapshots entirely.
	SkipSnapshots bool `koanf:"skip_snapshots"`
	// WatchCache invalidates the validation cache on external file
	// changes via fsnotify.
	WatchCache bool `koanf:"watch_cache"`
}

// ProtectConfig governs delivery-loss protection.
type ProtectConfig struct {
	// Enabled turns the protection layer on.
	Enabled bool `koanf:"enabled"`
	// Dir holds per-queue pending stores.
	Dir string `koanf:"dir" validate:"required_if=Enabled true"`
	// Queues to drain into the sink.
	Queues []string `koanf:"queues"`
	// Topic is the sink topic pending messages are published to.
	Topic string `koanf:"topic"`
	// Interval between drain passes.
	Interval time.Duration `koanf:"interval" validate:"min=0"`
	// SendTimeout bounds one sink send.
	SendTimeout time.Duration `koanf:"send_timeout" validate:"min=0"`
	// RetryBackoff is the base exponential backoff between attempts.
	RetryBackoff time.Duration `koanf:"retry_backoff" validate:"min=0"`
	// MaxAttempts drops a message after this many failed sends.
	MaxAttempts int `koanf:"max_attempts" validate:"min=0"`
	// TTL drops a message this long after enqueue.
	TTL time.Duration `koanf:"ttl" validate:"min=0"`
	// PruneInterval between retention passes over stale records.
	PruneInterval time.Duration `koanf:"prune_interval" validate:"min=0"`
	// MaxAge is the retention horizon for stale records.
	MaxAge time.Duration `koanf:"max_age" validate:"min=0"`
}

// OpsConfig governs the operational HTTP endpoint.
type OpsConfig struct {
	Enabled bool          `koanf:"enabled"`
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
}

// LoggingConfig governs diagnostic output.
type LoggingConfig struct {
	// Level is the minimum diagnostic level: debug, info, warn, error.
	Level string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled"`
	// EventsPerSecond bounds the diagnostic rate.
	EventsPerSecond float64 `koanf:"events_per_second" validate:"min=0"`
	// Burst is the flood-control burst size.
	Burst int `koanf:"burst" validate:"min=0"`
}

// defaultConfig returns the built-in defaults, applied before the file
// and environment layers.
func defaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir:           "/data/logkeep",
			Workers:       4,
			KeepBackups:   5,
			SkipSnapshots: false,
			WatchCache:    true,
		},
		Protect: ProtectConfig{
			Enabled:       false,
			Dir:           "/data/logkeep/pending",
			Queues:        []string{"default"},
			Topic:         "logkeep.records",
			Interval:      5 * time.Second,
			SendTimeout:   10 * time.Second,
			RetryBackoff:  time.Second,
			MaxAttempts:   10,
			TTL:           24 * time.Hour,
			PruneInterval: time.Hour,
			MaxAge:        24 * time.Hour,
		},
		Ops: OpsConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    9356,
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:           "info",
			EventsPerSecond: 50,
			Burst:           100,
		},
	}
}
