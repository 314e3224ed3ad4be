// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package protect

import (
	"context"
	"errors"
	"math"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/logkeep/internal/diag"
	"github.com/tomtom215/logkeep/internal/sink"
)

// DeliveryConfig tunes the background delivery loop.
type DeliveryConfig struct {
	// Interval between drain passes over the pending store.
	Interval time.Duration
	// SendTimeout bounds a single sink send.
	SendTimeout time.Duration
	// RetryBackoff is the base of the exponential backoff between
	// attempts on one record.
	RetryBackoff time.Duration
	// MaxAttempts drops a record after this many failed sends. Zero
	// means unlimited.
	MaxAttempts int
	// TTL drops a record this long after it was enqueued. Zero means
	// records never expire.
	TTL time.Duration
	// BreakerFailures opens the sink circuit breaker after this many
	// consecutive send failures.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration
}

// DefaultDeliveryConfig returns the settings used when a field is zero.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		Interval:        5 * time.Second,
		SendTimeout:     10 * time.Second,
		RetryBackoff:    time.Second,
		MaxAttempts:     10,
		TTL:             24 * time.Hour,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

func (c DeliveryConfig) withDefaults() DeliveryConfig {
	def := DefaultDeliveryConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = def.SendTimeout
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = def.BreakerFailures
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = def.BreakerCooldown
	}
	return c
}

// DeliveryLoop drains one queue's pending store into a sink. It
// implements suture.Service and is run under the process supervision
// tree; Serve blocks until the context is canceled.
type DeliveryLoop struct {
	guard   *Guard
	target  sink.Sink
	queue   string
	cfg     DeliveryConfig
	breaker *gobreaker.CircuitBreaker[any]
	rep     *diag.Reporter
}

// NewDeliveryLoop wires a queue to a sink.
func NewDeliveryLoop(guard *Guard, target sink.Sink, queue string, cfg DeliveryConfig, rep *diag.Reporter) *DeliveryLoop {
	cfg = cfg.withDefaults()
	rep = rep.Component("delivery").With("queue", queue)

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "sink-" + target.Name(),
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			rep.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("sink circuit breaker state changed")
		},
	})

	return &DeliveryLoop{
		guard:   guard,
		target:  target,
		queue:   queue,
		cfg:     cfg,
		breaker: breaker,
		rep:     rep,
	}
}

// String implements fmt.Stringer for supervision tree logs.
func (d *DeliveryLoop) String() string {
	return "delivery-" + d.queue
}

// Serve runs drain passes until ctx is canceled.
func (d *DeliveryLoop) Serve(ctx context.Context) error {
	d.rep.Info().
		Dur("interval", d.cfg.Interval).
		Int("max_attempts", d.cfg.MaxAttempts).
		Dur("ttl", d.cfg.TTL).
		Msg("delivery loop started")

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Drain(ctx)
		}
	}
}

// deliveryResult tracks the outcome of one record in a drain pass.
type deliveryResult int

const (
	deliverySuccess deliveryResult = iota
	deliveryFailed
	deliveryExpired
	deliveryExhausted
	deliveryDropped
	deliverySkipped
)

// Drain runs one delivery pass over everything pending for the queue.
func (d *DeliveryLoop) Drain(ctx context.Context) {
	pending := d.guard.RestoreMessages(d.queue)
	if len(pending) == 0 {
		return
	}

	var success, failed, expired, exhausted, dropped int
	for _, rec := range pending {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch d.processRecord(ctx, rec) {
		case deliverySuccess:
			success++
		case deliveryFailed:
			failed++
		case deliveryExpired:
			expired++
		case deliveryExhausted:
			exhausted++
		case deliveryDropped:
			dropped++
		}
	}

	if success+failed+expired+exhausted+dropped > 0 {
		d.rep.Info().
			Int("delivered", success).
			Int("failed", failed).
			Int("expired", expired).
			Int("exhausted", exhausted).
			Int("dropped", dropped).
			Msg("delivery pass complete")
	}
}

func (d *DeliveryLoop) processRecord(ctx context.Context, rec PendingMessage) deliveryResult {
	if d.cfg.TTL > 0 && time.Since(rec.EnqueuedAt) > d.cfg.TTL {
		d.rep.Info().Str("id", rec.ID).Msg("pending message expired, removing")
		d.guard.Confirm(d.queue, rec.ID)
		recordExpired(d.queue)
		return deliveryExpired
	}

	if d.cfg.MaxAttempts > 0 && rec.Attempts >= d.cfg.MaxAttempts {
		d.rep.Warn().
			Str("id", rec.ID).
			Int("attempts", rec.Attempts).
			Str("last_error", rec.LastError).
			Msg("pending message exceeded max attempts, removing")
		d.guard.Confirm(d.queue, rec.ID)
		recordExhausted(d.queue)
		return deliveryExhausted
	}

	if !d.readyForAttempt(rec) {
		return deliverySkipped
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	_, err := d.breaker.Execute(func() (any, error) {
		return nil, d.target.Send(sendCtx, rec.Message)
	})
	cancel()

	if err == nil {
		d.guard.Confirm(d.queue, rec.ID)
		recordDelivered(d.queue)
		return deliverySuccess
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return deliverySkipped
	}

	if !ShouldRetry(err) {
		d.rep.Warn().Err(err).Str("id", rec.ID).Msg("permanent delivery failure, dropping message")
		d.guard.Confirm(d.queue, rec.ID)
		recordDropped(d.queue)
		return deliveryDropped
	}

	d.rep.Error().
		Err(err).
		Str("id", rec.ID).
		Int("attempt", rec.Attempts+1).
		Msg("delivery attempt failed")
	d.guard.MarkAttempt(d.queue, rec.ID, err)
	recordRetry(d.queue)
	return deliveryFailed
}

// readyForAttempt checks the per-record exponential backoff.
func (d *DeliveryLoop) readyForAttempt(rec PendingMessage) bool {
	if rec.LastAttempt.IsZero() {
		return true
	}
	return time.Since(rec.LastAttempt) >= backoff(d.cfg.RetryBackoff, rec.Attempts)
}

// backoff computes base * 2^attempts, capped at 5 minutes.
func backoff(base time.Duration, attempts int) time.Duration {
	const maxBackoff = 5 * time.Minute
	if attempts > 50 {
		return maxBackoff
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempts)))
	if delay < 0 || delay > maxBackoff {
		return maxBackoff
	}
	return delay
}
