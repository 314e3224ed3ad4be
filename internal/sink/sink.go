// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package sink abstracts the external consumers the delivery-loss
// protection layer forwards records to. Concrete network sinks (brokers,
// log aggregators) live outside this repository; the watermill adapter
// here lets any message.Publisher implementation serve as one.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Sink is one downstream consumer of log records. Send must be safe for
// concurrent use and should honor the context deadline.
type Sink interface {
	// Name identifies the sink in diagnostics and metrics.
	Name() string

	// Send delivers one serialized record. A returned error is classified
	// by protect.ShouldRetry to decide between retry and drop.
	Send(ctx context.Context, payload []byte) error
}

// WatermillSink adapts a watermill message.Publisher to the Sink
// interface. The publisher owns connection management; this adapter only
// frames payloads as watermill messages.
type WatermillSink struct {
	name      string
	topic     string
	publisher message.Publisher

	mu     sync.RWMutex
	closed bool
}

// NewWatermillSink wraps publisher so records are published to topic.
func NewWatermillSink(name, topic string, publisher message.Publisher) *WatermillSink {
	return &WatermillSink{
		name:      name,
		topic:     topic,
		publisher: publisher,
	}
}

// Name identifies the sink.
func (s *WatermillSink) Name() string {
	return s.name
}

// Send publishes one payload. Publish itself is synchronous; the context
// is checked up front because watermill publishers do not all accept one.
func (s *WatermillSink) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("sink %s: %w", s.name, ErrClosed)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("sink %s: publish: %w", s.name, err)
	}
	return nil
}

// Close marks the sink closed and closes the underlying publisher.
func (s *WatermillSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.publisher.Close()
}
