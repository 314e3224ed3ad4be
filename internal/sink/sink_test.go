// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/require"
)

func TestWatermillSink_Send(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubsub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubsub.Subscribe(ctx, "logs")
	require.NoError(t, err)

	s := NewWatermillSink("test", "logs", pubsub)
	require.Equal(t, "test", s.Name())
	require.NoError(t, s.Send(ctx, []byte(`{"msg":"hello"}`)))

	select {
	case msg := <-messages:
		require.Equal(t, `{"msg":"hello"}`, string(msg.Payload))
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestWatermillSink_SendAfterClose(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	s := NewWatermillSink("test", "logs", pubsub)

	require.NoError(t, s.Close())
	err := s.Send(context.Background(), []byte(`x`))
	require.True(t, errors.Is(err, ErrClosed))

	// Close is idempotent.
	require.NoError(t, s.Close())
}

func TestWatermillSink_CanceledContext(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubsub.Close()
	s := NewWatermillSink("test", "logs", pubsub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, s.Send(ctx, []byte(`x`)))
}
