// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/fswho/internal/api"
	"github.com/tomtom215/fswho/internal/config"
	"github.com/tomtom215/fswho/internal/correlator"
	"github.com/tomtom215/fswho/internal/identity"
	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/supervisor"
	"github.com/tomtom215/fswho/internal/supervisor/services"
	ws "github.com/tomtom215/fswho/internal/websocket"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(cfg.LoggingSettings())

	logging.Info().
		Str("version", version).
		Str("root", cfg.Watch.Root).
		Str("audit_source", cfg.AuditSource.Type).
		Str("trail_store", cfg.AuditTrail.Store).
		Bool("publish", cfg.Publish.Enabled).
		Msg("Starting fswho")

	watcher, enum, err := newWatcher(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to start filesystem watcher")
	}

	auditSource, err := newAuditSource(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create audit source")
	}

	engine, err := correlator.New(cfg.Correlator(), correlator.WithIdentityReader(identity.Read))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create correlation engine")
	}
	listener := correlator.NewListener(engine, watcher, auditSource, enum)
	listener.OnChange(changeLog())

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}
	listenerSvc := services.NewListenerService(listener)
	tree.AddIngestService(listenerSvc)

	trail, closeTrail, err := newTrail(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open audit trail")
	}
	defer closeTrail()
	if trail != nil {
		listener.OnChange(trail.recorder)
		tree.AddDeliveryService(services.NewFuncService("audit-trail-cleanup", trail.logger.RunCleanup))
	}

	closePublisher, err := wirePublisher(cfg, listener, tree)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create change publisher")
	}
	defer closePublisher()

	var hub *ws.Hub
	if cfg.Server.Enabled && cfg.Server.WebSocket {
		hub, err = wireLiveStream(cfg, listener, tree)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to create live stream")
		}
	}

	if cfg.Server.Enabled {
		var trailReader api.Trail
		if trail != nil {
			trailReader = trail.logger
		}
		handler := api.NewHandler(cfg.API(version), engine, trailReader, hub)
		server := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           api.NewRouter(cfg.API(version), handler),
			ReadTimeout:       cfg.Server.ReadTimeout,
			ReadHeaderTimeout: cfg.Server.ReadTimeout,
			WriteTimeout:      cfg.Server.WriteTimeout,
		}
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
		logging.Info().Str("addr", server.Addr).Msg("HTTP API enabled")
	}

	if path := config.FindConfigFile(); path != "" {
		tree.AddAPIService(services.NewFuncService("config-watcher", func(ctx context.Context) error {
			return config.WatchLogLevel(ctx, path)
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		treeErr = <-errCh
	case treeErr = <-errCh:
		cancel()
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	if err := listenerSvc.Stop(); err != nil {
		logging.Warn().Err(err).Msg("Error closing change sources")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	logging.Info().Msg("fswho stopped")
}
