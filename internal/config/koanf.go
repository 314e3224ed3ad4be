// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where a config file is searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"logkeep.yaml",
	"logkeep.yml",
	"/etc/logkeep/config.yaml",
	"/etc/logkeep/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "LOGKEEP_CONFIG"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. LOGKEEP_* environment variables (highest precedence)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("LOGKEEP_", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are fields that may arrive from the environment as
// comma-separated strings.
var sliceConfigPaths = []string{
	"protect.queues",
}

// processSliceFields converts comma-separated env strings to slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps LOGKEEP_* environment variables to koanf paths.
// Unknown variables are skipped so unrelated environment entries never
// pollute the configuration.
//
// Examples:
//   - LOGKEEP_DATA_DIR      -> data.dir
//   - LOGKEEP_PROTECT_TTL   -> protect.ttl
//   - LOGKEEP_LOG_LEVEL     -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "LOGKEEP_"))

	envMappings := map[string]string{
		"data_dir":            "data.dir",
		"data_workers":        "data.workers",
		"data_keep_backups":   "data.keep_backups",
		"data_skip_snapshots": "data.skip_snapshots",
		"data_watch_cache":    "data.watch_cache",

		"protect_enabled":        "protect.enabled",
		"protect_dir":            "protect.dir",
		"protect_queues":         "protect.queues",
		"protect_topic":          "protect.topic",
		"protect_interval":       "protect.interval",
		"protect_send_timeout":   "protect.send_timeout",
		"protect_retry_backoff":  "protect.retry_backoff",
		"protect_max_attempts":   "protect.max_attempts",
		"protect_ttl":            "protect.ttl",
		"protect_prune_interval": "protect.prune_interval",
		"protect_max_age":        "protect.max_age",

		"ops_enabled": "ops.enabled",
		"ops_host":    "ops.host",
		"ops_port":    "ops.port",
		"ops_timeout": "ops.timeout",

		"log_level":             "logging.level",
		"log_events_per_second": "logging.events_per_second",
		"log_burst":             "logging.burst",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
