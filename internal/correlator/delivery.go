// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package correlator

import (
	"context"
	"fmt"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/metrics"
	"github.com/tomtom215/fswho/internal/models"
)

// Subscriber receives every delivered change. path is the case-folded key the
// change was correlated under; rec.Path keeps the observed casing.
//
// Deliver runs on the engine goroutine and should return quickly; sinks that
// do I/O queue the record and return.
type Subscriber interface {
	Deliver(ctx context.Context, path string, rec models.ChangeRecord) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context, path string, rec models.ChangeRecord) error

// Deliver calls f.
func (f SubscriberFunc) Deliver(ctx context.Context, path string, rec models.ChangeRecord) error {
	return f(ctx, path, rec)
}

type namedSubscriber struct {
	Subscriber
	name string
}

func (n namedSubscriber) String() string { return n.name }

// Named attaches a name used in logs and metrics for s.
func Named(name string, s Subscriber) Subscriber {
	return namedSubscriber{Subscriber: s, name: name}
}

func subscriberName(s Subscriber) string {
	if st, ok := s.(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("%T", s)
}

// OnChange registers s. Subscribers are called in registration order.
func (e *Engine) OnChange(s Subscriber) {
	if s == nil || e.isStopped() {
		return
	}
	e.subMu.Lock()
	e.subs = append(e.subs, s)
	e.subMu.Unlock()
}

func (e *Engine) subscribers() []Subscriber {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	out := make([]Subscriber, len(e.subs))
	copy(out, e.subs)
	return out
}

// deliver swaps out the flush table and hands each record to every subscriber.
func (e *Engine) deliver(ctx context.Context) {
	if len(e.flush) == 0 {
		return
	}

	batch := e.flush
	e.flush = make(map[string]*models.ChangeRecord, len(batch))

	batchID := logging.GenerateCorrelationID()
	bctx := logging.ContextWithCorrelationID(ctx, batchID)
	subs := e.subscribers()

	metrics.RecordBatch(len(batch))
	e.logger.Debug().Str("batch_id", batchID).Int("changes", len(batch)).Int("subscribers", len(subs)).Msg("delivering batch")

	for key, rec := range batch {
		if e.cfg.PruneOnDelete && rec.IsDeleted() && !rec.IsRenamed() {
			e.index.PruneKey(key)
		}
		metrics.RecordDelivery(string(rec.Action), rec.Attributed())
		for _, s := range subs {
			e.dispatch(bctx, s, key, *rec)
		}
	}

	e.reportSizes()
}

// dispatch isolates one subscriber call: errors and panics are logged and
// never reach the engine loop.
func (e *Engine) dispatch(ctx context.Context, s Subscriber, key string, rec models.ChangeRecord) {
	name := subscriberName(s)
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordSubscriberFailure(name)
			e.logger.Error().
				Str("subscriber", name).
				Str("path", key).
				Str("batch_id", logging.CorrelationIDFromContext(ctx)).
				Interface("panic", r).
				Msg("subscriber panicked")
		}
	}()

	if err := s.Deliver(ctx, key, rec); err != nil {
		metrics.RecordSubscriberFailure(name)
		e.logger.Error().
			Err(err).
			Str("subscriber", name).
			Str("path", key).
			Str("batch_id", logging.CorrelationIDFromContext(ctx)).
			Msg("subscriber failed")
	}
}
