// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package websocket

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/publish"
)

// Relay bridges change messages from the bus to a Hub.
type Relay struct {
	hub   *Hub
	sub   message.Subscriber
	topic string
}

// NewRelay creates a relay that forwards messages on topic to hub.
func NewRelay(hub *Hub, sub message.Subscriber, topic string) *Relay {
	return &Relay{hub: hub, sub: sub, topic: topic}
}

// Serve forwards messages until ctx is cancelled or the subscription closes.
func (r *Relay) Serve(ctx context.Context) error {
	messages, err := r.sub.Subscribe(ctx, r.topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.topic, err)
	}
	logging.Info().Str("topic", r.topic).Msg("change relay started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.forward(msg)
		}
	}
}

func (r *Relay) forward(msg *message.Message) {
	defer msg.Ack()

	change, err := publish.UnmarshalChangeMessage(msg.Payload)
	if err != nil {
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping malformed change message")
		return
	}
	r.hub.BroadcastChange(change)
}

// String names the relay in supervisor logs.
func (r *Relay) String() string { return "websocket-relay" }
