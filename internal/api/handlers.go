// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	gorillaws "github.com/gorilla/websocket"

	"github.com/tomtom215/fswho/internal/audit"
	"github.com/tomtom215/fswho/internal/correlator"
	"github.com/tomtom215/fswho/internal/models"
	"github.com/tomtom215/fswho/internal/websocket"
)

const statsTimeout = 2 * time.Second

// StatsSource reports the engine's table sizes.
type StatsSource interface {
	Stats(ctx context.Context) (correlator.Stats, error)
}

// Trail is the read side of the change trail.
type Trail interface {
	Get(ctx context.Context, id string) (*audit.Event, error)
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	Count(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

// Handler serves the API routes. Any dependency may be nil; the routes that
// need it then answer 503.
type Handler struct {
	config   Config
	engine   StatsSource
	trail    Trail
	hub      *websocket.Hub
	upgrader *gorillaws.Upgrader
	started  time.Time
}

// NewHandler creates the API handler.
func NewHandler(cfg Config, engine StatsSource, trail Trail, hub *websocket.Hub) *Handler {
	if cfg.ExportLimit <= 0 {
		cfg.ExportLimit = DefaultConfig().ExportLimit
	}
	return &Handler{
		config:   cfg,
		engine:   engine,
		trail:    trail,
		hub:      hub,
		upgrader: websocket.NewUpgrader(cfg.CORSOrigins),
		started:  time.Now(),
	}
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status           string            `json:"status"`
	Version          string            `json:"version"`
	UptimeSeconds    int64             `json:"uptime_seconds"`
	Engine           *correlator.Stats `json:"engine,omitempty"`
	EngineError      string            `json:"engine_error,omitempty"`
	WebSocketClients int               `json:"websocket_clients"`
}

// Health handles GET /api/v1/health. It answers 503 while the engine is not
// running.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp := HealthResponse{
		Status:        "ok",
		Version:       h.config.Version,
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
	}
	if h.hub != nil {
		resp.WebSocketClients = h.hub.ClientCount()
	}

	if h.engine == nil {
		resp.Status = "degraded"
		resp.EngineError = "engine not configured"
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
		stats, err := h.engine.Stats(ctx)
		cancel()
		if err != nil {
			resp.Status = "degraded"
			resp.EngineError = err.Error()
		} else {
			resp.Engine = &stats
		}
	}

	if resp.Status != "ok" {
		respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
			Status:   "error",
			Data:     resp,
			Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			Error:    &models.APIError{Code: "SERVICE_UNAVAILABLE", Message: resp.EngineError},
		})
		return
	}
	respondSuccess(w, resp, start)
}

// ChangesRequest holds the validated query parameters of the change routes.
type ChangesRequest struct {
	Path   string `validate:"max=4096"`
	Author string `validate:"max=512"`
	Action string `validate:"omitempty,oneof=create update remove rename"`
	Batch  string `validate:"max=64"`
	Search string `validate:"max=256"`
	Since  string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Until  string `validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Limit  int    `validate:"min=1,max=1000"`
	Offset int    `validate:"min=0,max=1000000"`
	Format string `validate:"omitempty,oneof=json cef"`
}

// parseChangesRequest reads query parameters. Malformed integers become -1
// so validation reports them.
func parseChangesRequest(r *http.Request) ChangesRequest {
	q := r.URL.Query()
	intParam := func(key string, def int) int {
		v := q.Get(key)
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return -1
		}
		return n
	}
	return ChangesRequest{
		Path:   q.Get("path"),
		Author: q.Get("author"),
		Action: q.Get("action"),
		Batch:  q.Get("batch"),
		Search: q.Get("search"),
		Since:  q.Get("since"),
		Until:  q.Get("until"),
		Limit:  intParam("limit", audit.DefaultQueryFilter().Limit),
		Offset: intParam("offset", 0),
		Format: q.Get("format"),
	}
}

// Filter converts a validated request to a trail query.
func (req *ChangesRequest) Filter() audit.QueryFilter {
	filter := audit.QueryFilter{
		ActorID:       req.Author,
		PathPrefix:    req.Path,
		CorrelationID: req.Batch,
		SearchText:    req.Search,
		Limit:         req.Limit,
		Offset:        req.Offset,
	}
	if req.Action != "" {
		filter.Types = []audit.EventType{audit.TypeForAction(models.Action(req.Action))}
	}
	if t, err := time.Parse(time.RFC3339, req.Since); err == nil {
		filter.StartTime = &t
	}
	if t, err := time.Parse(time.RFC3339, req.Until); err == nil {
		filter.EndTime = &t
	}
	return filter
}

// ChangesResponse is the body of GET /api/v1/changes.
type ChangesResponse struct {
	Changes    []audit.Event         `json:"changes"`
	Pagination models.PaginationInfo `json:"pagination"`
}

// ListChanges handles GET /api/v1/changes.
func (h *Handler) ListChanges(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.trail == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Change trail disabled", nil)
		return
	}

	req := parseChangesRequest(r)
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}
	filter := req.Filter()

	changes, err := h.trail.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TRAIL_ERROR", "Failed to query changes", err)
		return
	}
	if changes == nil {
		changes = []audit.Event{}
	}

	total, err := h.trail.Count(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TRAIL_ERROR", "Failed to count changes", err)
		return
	}

	respondSuccess(w, ChangesResponse{
		Changes: changes,
		Pagination: models.PaginationInfo{
			Limit:   filter.Limit,
			Offset:  filter.Offset,
			Total:   total,
			HasMore: int64(filter.Offset+len(changes)) < total,
		},
	}, start)
}

// GetChange handles GET /api/v1/changes/{id}.
func (h *Handler) GetChange(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.trail == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Change trail disabled", nil)
		return
	}

	event, err := h.trail.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, audit.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Change not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "TRAIL_ERROR", "Failed to load change", err)
		return
	}
	respondSuccess(w, event, start)
}

// ExportChanges handles GET /api/v1/changes/export?format=json|cef.
func (h *Handler) ExportChanges(w http.ResponseWriter, r *http.Request) {
	if h.trail == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Change trail disabled", nil)
		return
	}

	req := parseChangesRequest(r)
	req.Limit = 1
	req.Offset = 0
	if apiErr := validateRequest(&req); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return
	}
	filter := req.Filter()
	filter.Limit = h.config.ExportLimit

	events, err := h.trail.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to query changes for export", err)
		return
	}

	var (
		exporter audit.Exporter = audit.JSONExporter{}
		filename                = "changes.json"
	)
	if req.Format == "cef" {
		exporter = audit.NewCEFExporter(h.config.Version)
		filename = "changes.cef"
	}

	data, err := exporter.Export(events)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "EXPORT_ERROR", "Failed to export changes", err)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("X-Export-Count", strconv.Itoa(len(events)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// WebSocket handles GET /api/v1/ws.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Live stream disabled", nil)
		return
	}
	websocket.ServeWS(h.hub, h.upgrader, w, r)
}
