// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package main is the entry point for the logkeepd daemon.
//
// Logkeepd runs the durability layer of a logging pipeline as a
// long-lived process: it owns the data directory, protects in-flight
// records against delivery loss, and exposes an operational HTTP
// endpoint for health probes and Prometheus metrics.
//
// # Startup Order
//
//  1. Configuration: layered load via Koanf v2 (defaults, YAML, env)
//  2. Diagnostics: flood-controlled zerolog reporter
//  3. Durable store: atomic writer, validator, backups, recovery
//  4. Delivery protection (optional): per-queue pending stores drained
//     into a message sink with retry, TTL, and a circuit breaker
//  5. Supervision tree: delivery loops, retention pruner, validation
//     cache watcher, and the ops HTTP endpoint under suture
//
// # Configuration
//
// Settings come from LOGKEEP_* environment variables, an optional YAML
// file (logkeep.yaml, or the path in LOGKEEP_CONFIG), and built-in
// defaults, in that precedence order.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger a graceful stop: the supervision tree is
// canceled, services get the configured shutdown timeout, and the sink
// is closed after the last delivery loop exits.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/tomtom215/logkeep/internal/atomicfile"
	"github.com/tomtom215/logkeep/internal/backup"
	"github.com/tomtom215/logkeep/internal/config"
	"github.com/tomtom215/logkeep/internal/diag"
	"github.com/tomtom215/logkeep/internal/durable"
	"github.com/tomtom215/logkeep/internal/ops"
	"github.com/tomtom215/logkeep/internal/protect"
	"github.com/tomtom215/logkeep/internal/recovery"
	"github.com/tomtom215/logkeep/internal/sink"
	"github.com/tomtom215/logkeep/internal/supervisor"
	"github.com/tomtom215/logkeep/internal/validate"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "logkeepd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	rep := diag.NewReporter(diag.Options{
		Level:           cfg.Logging.Level,
		EventsPerSecond: cfg.Logging.EventsPerSecond,
		Burst:           cfg.Logging.Burst,
	})

	if err := os.MkdirAll(cfg.Data.Dir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	writer := atomicfile.NewWriter(rep)
	validator := validate.NewValidator(rep)
	store := durable.NewStore(
		writer,
		validator,
		backup.NewManager(writer, rep),
		recovery.NewEngine(rep),
		rep,
		durable.Options{
			Workers:       cfg.Data.Workers,
			SkipSnapshots: cfg.Data.SkipSnapshots,
			KeepBackups:   cfg.Data.KeepBackups,
		},
	)

	tree := supervisor.NewTree(diag.NewSlogLogger(rep), supervisor.DefaultTreeConfig())

	if cfg.Data.WatchCache {
		watcher := validate.NewCacheWatcher(validator, rep)
		if err := watcher.WatchDir(cfg.Data.Dir); err != nil {
			rep.Warn().Err(err).Str("dir", cfg.Data.Dir).Msg("cache watcher disabled")
		} else {
			tree.AddOpsService(watcher)
		}
	}

	var guard *protect.Guard
	if cfg.Protect.Enabled {
		guard, err = protect.NewGuard(cfg.Protect.Dir, writer, rep)
		if err != nil {
			return err
		}

		bus := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
		defer bus.Close()
		target := sink.NewWatermillSink("bus", cfg.Protect.Topic, bus)

		deliveryCfg := protect.DeliveryConfig{
			Interval:     cfg.Protect.Interval,
			SendTimeout:  cfg.Protect.SendTimeout,
			RetryBackoff: cfg.Protect.RetryBackoff,
			MaxAttempts:  cfg.Protect.MaxAttempts,
			TTL:          cfg.Protect.TTL,
		}
		for _, queue := range cfg.Protect.Queues {
			tree.AddDeliveryService(protect.NewDeliveryLoop(guard, target, queue, deliveryCfg, rep))
		}
		tree.AddDeliveryService(protect.NewPruner(guard, cfg.Protect.PruneInterval, cfg.Protect.MaxAge))
	}

	if cfg.Ops.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Ops.Host, cfg.Ops.Port)
		tree.AddOpsService(ops.NewServer(addr, cfg.Ops.Timeout, store, guard, rep))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		rep.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	rep.Info().
		Str("data_dir", cfg.Data.Dir).
		Bool("protection", cfg.Protect.Enabled).
		Msg("logkeepd starting")

	// ServeBackground delivers exactly one terminal error and leaves the
	// channel open, so a single receive is the whole wait.
	errCh := tree.ServeBackground(ctx)
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		rep.Error().Err(err).Msg("supervision tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		rep.Warn().Str("service", svc.Name).Msg("service failed to stop within timeout")
	}

	rep.Info().Msg("logkeepd stopped")
	return nil
}
