// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/fswho/internal/middleware"
)

// Config holds the HTTP surface settings.
type Config struct {
	Version           string
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool

	// ExportLimit caps the number of events in one export.
	ExportLimit int
}

// DefaultConfig returns the defaults used when no configuration is given.
func DefaultConfig() Config {
	return Config{
		Version:           "dev",
		RateLimitRequests: 300,
		RateLimitWindow:   time.Minute,
		ExportLimit:       10000,
	}
}

// NewRouter wires the handler into a chi router.
func NewRouter(cfg Config, h *Handler) http.Handler {
	mw := NewChiMiddleware(cfg)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())

		r.With(APISecurityHeaders()).Get("/health", h.Health)

		r.Route("/changes", func(r chi.Router) {
			r.Use(APISecurityHeaders())
			r.Get("/", h.ListChanges)
			r.With(chimiddleware.Compress(5)).Get("/export", h.ExportChanges)
			r.Get("/{id}", h.GetChange)
		})

		r.Get("/ws", h.WebSocket)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
