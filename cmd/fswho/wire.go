// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/fswho/internal/audit"
	"github.com/tomtom215/fswho/internal/auditlog"
	"github.com/tomtom215/fswho/internal/config"
	"github.com/tomtom215/fswho/internal/correlator"
	"github.com/tomtom215/fswho/internal/fswatch"
	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/models"
	"github.com/tomtom215/fswho/internal/publish"
	"github.com/tomtom215/fswho/internal/scan"
	"github.com/tomtom215/fswho/internal/supervisor"
	ws "github.com/tomtom215/fswho/internal/websocket"
)

// newWatcher returns the filesystem watcher and, when seeding is enabled, an
// enumerator that skips the same ignored paths.
func newWatcher(cfg *config.Config) (*fswatch.Watcher, correlator.Enumerator, error) {
	w, err := fswatch.New(fswatch.Config{Root: cfg.Watch.Root, Ignore: cfg.Watch.Ignore})
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Watch.SeedOnStart {
		return w, nil, nil
	}
	return w, scan.Enumerator{Scanner: scan.New(scan.WithSkip(w.Ignored))}, nil
}

func newAuditSource(cfg *config.Config) (correlator.AuditSource, error) {
	src := cfg.AuditSource
	switch src.Type {
	case config.SourceFile:
		logging.Info().Str("path", src.Path).Bool("from_start", src.FromStart).Msg("Following Security event export")
		return auditlog.NewFileSource(auditlog.FileConfig{
			Path:         src.Path,
			FromStart:    src.FromStart,
			PollInterval: src.PollInterval,
			Filter:       cfg.AuditFilter(),
		}), nil

	case config.SourceNATS:
		natsCfg := auditlog.DefaultNATSConfig(src.NATSURL)
		natsCfg.JetStream = src.JetStream
		if src.QueueGroup != "" {
			natsCfg.QueueGroup = src.QueueGroup
		}
		if src.DurableName != "" {
			natsCfg.DurableName = src.DurableName
		}
		if src.AckWait > 0 {
			natsCfg.AckWait = src.AckWait
		}
		sub, err := auditlog.NewNATSSubscriber(natsCfg, logging.NewWatermillLogger())
		if err != nil {
			return nil, err
		}
		logging.Info().Str("url", src.NATSURL).Str("subject", src.Subject).Msg("Consuming Security events from NATS")
		return auditlog.NewBusSource(sub, src.Subject, cfg.AuditFilter()), nil

	default:
		logging.Warn().Msg("No audit source configured; changes will be reported without an author")
		return nil, nil
	}
}

// trail is the audit trail: the logger that stores and queries events and the
// recorder that feeds it from the engine.
type trail struct {
	logger   *audit.Logger
	recorder *audit.Recorder
}

// newTrail opens the configured store. The returned func closes it and is
// safe to call when the trail is disabled.
func newTrail(cfg *config.Config) (*trail, func(), error) {
	if !cfg.AuditTrail.Enabled {
		return nil, func() {}, nil
	}

	var (
		store   audit.Store
		closeDB = func() error { return nil }
	)
	switch cfg.AuditTrail.Store {
	case config.StoreBadger:
		bs, err := audit.OpenBadgerStore(audit.BadgerConfig{
			Path:       cfg.AuditTrail.Path,
			Retention:  cfg.AuditTrail.Retention,
			SyncWrites: cfg.AuditTrail.SyncWrites,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open badger trail %s: %w", cfg.AuditTrail.Path, err)
		}
		store, closeDB = bs, bs.Close
	default:
		store = audit.NewMemoryStore(cfg.AuditTrail.MemoryMaxEvents)
	}

	logger := audit.NewLogger(store, cfg.TrailLogger())
	logging.Info().Str("store", cfg.AuditTrail.Store).Dur("retention", cfg.AuditTrail.Retention).Msg("Audit trail enabled")

	closeFn := func() {
		if err := logger.Close(); err != nil {
			logging.Error().Err(err).Msg("Error flushing audit trail")
		}
		if err := closeDB(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit trail store")
		}
	}
	return &trail{logger: logger, recorder: audit.NewRecorder(logger)}, closeFn, nil
}

// wirePublisher subscribes a NATS change publisher when publishing is
// enabled. The returned func closes the publisher.
func wirePublisher(cfg *config.Config, listener *correlator.Listener, tree *supervisor.SupervisorTree) (func(), error) {
	if !cfg.Publish.Enabled {
		return func() {}, nil
	}

	natsCfg := publish.DefaultNATSConfig(cfg.Publish.NATSURL)
	natsCfg.JetStream = cfg.Publish.JetStream
	pub, err := publish.NewNATSPublisher(natsCfg, logging.NewWatermillLogger())
	if err != nil {
		return nil, err
	}

	p := publish.NewPublisher(pub, cfg.Publish.SubjectPrefix, publish.NewCircuitBreaker(cfg.Breaker()))
	sink := publish.NewSink(p, cfg.Publish.Buffer)
	listener.OnChange(sink)
	tree.AddDeliveryService(sink)

	logging.Info().Str("url", cfg.Publish.NATSURL).Str("prefix", cfg.Publish.SubjectPrefix).Msg("Change publishing enabled")
	return func() {
		if err := p.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing change publisher")
		}
	}, nil
}

// wireLiveStream creates the websocket hub. It is fed by the local engine, or
// by published change messages when a relay subject is configured.
func wireLiveStream(cfg *config.Config, listener *correlator.Listener, tree *supervisor.SupervisorTree) (*ws.Hub, error) {
	hub := ws.NewHub()
	tree.AddDeliveryService(hub)

	if cfg.Server.RelaySubject == "" {
		listener.OnChange(hub)
		return hub, nil
	}

	natsCfg := auditlog.DefaultNATSConfig(cfg.Publish.NATSURL)
	// Every instance relays every change.
	natsCfg.QueueGroup = ""
	natsCfg.DurableName = "fswho-relay"
	sub, err := auditlog.NewNATSSubscriber(natsCfg, logging.NewWatermillLogger())
	if err != nil {
		return nil, err
	}
	tree.AddDeliveryService(ws.NewRelay(hub, sub, cfg.Server.RelaySubject))
	logging.Info().Str("subject", cfg.Server.RelaySubject).Msg("Live stream relaying published changes")
	return hub, nil
}

// changeLog logs every delivered change at info level.
func changeLog() correlator.Subscriber {
	return correlator.Named("change-log", correlator.SubscriberFunc(
		func(ctx context.Context, path string, rec models.ChangeRecord) error {
			ev := logging.Ctx(ctx).Info().
				Str("path", path).
				Str("action", string(rec.Action)).
				Str("author", rec.Author)
			if rec.RenamedFrom != "" {
				ev = ev.Str("renamed_from", rec.RenamedFrom)
			}
			ev.Msg("File changed")
			return nil
		}))
}
