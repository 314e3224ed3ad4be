// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package diag

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Options configures a Reporter.
type Options struct {
	// Output is the writer for diagnostic output.
	// Default: os.Stderr
	Output io.Writer

	// Level is the minimum level: debug, info, warn, error.
	// Default: info
	Level string

	// EventsPerSecond bounds the diagnostic rate. Events beyond the
	// limit are dropped and counted rather than emitted.
	// Default: 50
	EventsPerSecond float64

	// Burst is the rate limiter burst size.
	// Default: 100
	Burst int
}

// Reporter is the diagnostic channel shared by every component of the
// durability layer. It is safe for concurrent use from any goroutine.
type Reporter struct {
	logger  zerolog.Logger
	limiter *rate.Limiter
	dropped *atomic.Int64
}

// NewReporter creates a Reporter with the given options.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.Level == "" {
		opts.Level = "info"
	}
	if opts.EventsPerSecond <= 0 {
		opts.EventsPerSecond = 50
	}
	if opts.Burst <= 0 {
		opts.Burst = 100
	}

	logger := zerolog.New(opts.Output).
		Level(parseLevel(opts.Level)).
		With().Timestamp().Str("channel", "logkeep-diag").Logger()

	return &Reporter{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(opts.EventsPerSecond), opts.Burst),
		dropped: &atomic.Int64{},
	}
}

// Component returns a child reporter whose events carry a fixed
// component field. The child shares the parent's rate limiter so the
// flood bound is global, not per component.
func (r *Reporter) Component(name string) *Reporter {
	return &Reporter{
		logger:  r.logger.With().Str("component", name).Logger(),
		limiter: r.limiter,
		dropped: r.dropped,
	}
}

// With returns a child reporter whose events carry a fixed string
// field, sharing the parent's flood control.
func (r *Reporter) With(key, value string) *Reporter {
	return &Reporter{
		logger:  r.logger.With().Str(key, value).Logger(),
		limiter: r.limiter,
		dropped: r.dropped,
	}
}

// Info starts an info-level diagnostic event.
func (r *Reporter) Info() *zerolog.Event {
	return r.event(r.logger.Info())
}

// Warn starts a warn-level diagnostic event.
func (r *Reporter) Warn() *zerolog.Event {
	return r.event(r.logger.Warn())
}

// Error starts an error-level diagnostic event.
func (r *Reporter) Error() *zerolog.Event {
	return r.event(r.logger.Error())
}

// Dropped returns the number of events suppressed by flood control
// since the reporter was created.
func (r *Reporter) Dropped() int64 {
	return r.dropped.Load()
}

// event applies flood control to a started zerolog event. Suppressed
// events are redirected to a disabled logger so callers can still
// complete the chain with Msg without emitting anything.
func (r *Reporter) event(ev *zerolog.Event) *zerolog.Event {
	if r.limiter.Allow() {
		if n := r.dropped.Swap(0); n > 0 {
			r.logger.Warn().Int64("dropped_events", n).Msg("diagnostic flood subsided")
		}
		return ev
	}
	ev.Discard()
	r.dropped.Add(1)
	return ev
}

// parseLevel converts a string level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
