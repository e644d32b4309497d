// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package auditlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/metrics"
	"github.com/tomtom215/fswho/internal/models"
)

// BusSource consumes Security events that a remote log shipper publishes on
// a message bus, one JSON document per message.
type BusSource struct {
	sub    message.Subscriber
	topic  string
	filter Filter
	logger zerolog.Logger

	closeOnce sync.Once
	closeErr  error
}

// NewBusSource reads topic from sub. The source owns sub and closes it.
func NewBusSource(sub message.Subscriber, topic string, filter Filter) *BusSource {
	return &BusSource{
		sub:    sub,
		topic:  topic,
		filter: filter,
		logger: logging.WithComponent("auditlog").With().Str("topic", topic).Logger(),
	}
}

// Run subscribes and forwards events until ctx is cancelled or the
// subscription ends. Every message is acked: a malformed event will not
// become valid on redelivery.
func (s *BusSource) Run(ctx context.Context, emit func(models.SecurityEvent)) error {
	messages, err := s.sub.Subscribe(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	s.logger.Info().Msg("consuming audit events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.handle(msg, emit)
			msg.Ack()
		}
	}
}

func (s *BusSource) handle(msg *message.Message, emit func(models.SecurityEvent)) {
	ev, err := Decode(msg.Payload)
	if err != nil && !errors.Is(err, ErrNoDetails) {
		metrics.AuditDecodeErrors.WithLabelValues("bus").Inc()
		s.logger.Debug().Err(err).Str("message_uuid", msg.UUID).Msg("skipping malformed audit message")
		return
	}
	if !s.filter.Allow(ev.EventID) {
		return
	}
	emit(ev)
}

// Close closes the underlying subscriber. It is idempotent.
func (s *BusSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.sub.Close()
	})
	return s.closeErr
}

// NATSConfig configures the NATS subscriber behind a BusSource.
type NATSConfig struct {
	URL           string
	QueueGroup    string
	DurableName   string
	JetStream     bool
	AckWait       time.Duration
	CloseTimeout  time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns production defaults for url.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		QueueGroup:    "fswho",
		DurableName:   "fswho-audit",
		JetStream:     false,
		AckWait:       30 * time.Second,
		CloseTimeout:  10 * time.Second,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NewNATSSubscriber connects a watermill NATS subscriber. Events are expected
// as raw JSON payloads, so the NATS marshaler is used only for headers.
func NewNATSSubscriber(cfg NATSConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if logger == nil {
		logger = logging.NewWatermillLogger()
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("fswho-audit"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("audit subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("audit subscriber reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	js := wmNats.JetStreamConfig{Disabled: true}
	if cfg.JetStream {
		js = wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
			AckAsync:      false,
			DurablePrefix: cfg.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.AckWait(cfg.AckWait),
				natsgo.DeliverNew(),
			},
		}
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   cfg.AckWait,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      rawUnmarshaler{},
		JetStream:        js,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create audit subscriber: %w", err)
	}
	return sub, nil
}

// rawUnmarshaler takes the NATS payload as the message body, for shippers
// that publish plain JSON rather than watermill envelopes.
type rawUnmarshaler struct{}

func (rawUnmarshaler) Unmarshal(msg *natsgo.Msg) (*message.Message, error) {
	id := msg.Header.Get(natsgo.MsgIdHdr)
	if id == "" {
		id = watermill.NewUUID()
	}
	m := message.NewMessage(id, msg.Data)
	for k := range msg.Header {
		m.Metadata.Set(k, msg.Header.Get(k))
	}
	return m, nil
}
