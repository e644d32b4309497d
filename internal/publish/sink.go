// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package publish

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/metrics"
	"github.com/tomtom215/fswho/internal/models"
)

// Sink queues delivered changes and publishes them from its own goroutine,
// so a slow or unreachable bus never stalls delivery. It satisfies the
// correlator's Subscriber interface.
type Sink struct {
	pub    *Publisher
	queue  chan *ChangeMessage
	now    func() time.Time
	logger zerolog.Logger
}

// NewSink returns a Sink holding up to buffer pending messages.
func NewSink(pub *Publisher, buffer int) *Sink {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Sink{
		pub:    pub,
		queue:  make(chan *ChangeMessage, buffer),
		now:    time.Now,
		logger: logging.WithComponent("publish"),
	}
}

// Deliver queues one change. A full queue drops the change.
func (s *Sink) Deliver(ctx context.Context, path string, rec models.ChangeRecord) error {
	m := NewChangeMessage(path, rec, logging.CorrelationIDFromContext(ctx), s.now())
	select {
	case s.queue <- m:
	default:
		metrics.PublishResults.WithLabelValues("dropped").Inc()
		s.logger.Warn().Str("path", path).Msg("publish queue full, dropping change")
	}
	return nil
}

// Serve publishes queued changes until ctx is cancelled. Failures are logged;
// the circuit breaker keeps a dead bus from being hammered.
func (s *Sink) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-s.queue:
			if err := s.pub.Publish(m); err != nil {
				s.logger.Warn().Err(err).Str("path", m.Path).Str("action", string(m.Action)).
					Msg("change not published")
			}
		}
	}
}

// Pending returns the number of queued messages.
func (s *Sink) Pending() int {
	return len(s.queue)
}

// String names the subscriber and the supervised service.
func (s *Sink) String() string { return "change-publisher" }
