// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fswho/internal/audit"
	"github.com/tomtom215/fswho/internal/correlator"
	"github.com/tomtom215/fswho/internal/models"
	"github.com/tomtom215/fswho/internal/websocket"
)

type fakeEngine struct {
	stats correlator.Stats
	err   error
}

func (f fakeEngine) Stats(context.Context) (correlator.Stats, error) {
	return f.stats, f.err
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func record(action models.Action, author string) models.ChangeRecord {
	rec := models.ChangeRecord{ObservedAt: base, Author: author, Identity: 11}
	rec.Set(action)
	return rec
}

// seedTrail stores four changes, one minute apart, oldest first.
func seedTrail(t *testing.T) *audit.MemoryStore {
	t.Helper()
	store := audit.NewMemoryStore(100)
	changes := []struct {
		path   string
		action models.Action
		author string
		batch  string
	}{
		{`C:\data\a.txt`, models.ActionCreate, `CORP\alice`, "b1"},
		{`C:\data\b.txt`, models.ActionUpdate, `CORP\bob`, "b1"},
		{`C:\data\sub\c.txt`, models.ActionRemove, "", "b2"},
		{`C:\other\d.txt`, models.ActionUpdate, `CORP\alice`, "b3"},
	}
	for i, c := range changes {
		ev := audit.FromChange(c.path, record(c.action, c.author), c.batch, base.Add(time.Duration(i)*time.Minute))
		if err := store.Save(context.Background(), ev); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func newTestRouter(t *testing.T, engine StatsSource, trail Trail, hub *websocket.Hub) http.Handler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Version = "test"
	cfg.RateLimitDisabled = true
	return NewRouter(cfg, NewHandler(cfg, engine, trail, hub))
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *models.APIError
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		engine     StatsSource
		wantStatus int
		wantHealth string
	}{
		{"running", fakeEngine{stats: correlator.Stats{Pending: 3, Index: 40}}, http.StatusOK, "ok"},
		{"stopped", fakeEngine{err: correlator.ErrNotRunning}, http.StatusServiceUnavailable, "degraded"},
		{"no engine", nil, http.StatusServiceUnavailable, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestRouter(t, tt.engine, nil, nil)
			rec, env := get(t, h, "/api/v1/health")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var health HealthResponse
			if err := json.Unmarshal(env.Data, &health); err != nil {
				t.Fatal(err)
			}
			if health.Status != tt.wantHealth || health.Version != "test" {
				t.Errorf("health = %+v", health)
			}
			if tt.wantHealth == "ok" && (health.Engine == nil || health.Engine.Pending != 3) {
				t.Errorf("engine stats = %+v", health.Engine)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
		})
	}
}

func TestListChanges(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, nil, seedTrail(t), nil)

	tests := []struct {
		name      string
		query     string
		wantPaths []string
		wantTotal int64
	}{
		{"all newest first", "", []string{`C:\other\d.txt`, `C:\data\sub\c.txt`, `C:\data\b.txt`, `C:\data\a.txt`}, 4},
		{"author", "?author=corp%5Calice", []string{`C:\other\d.txt`, `C:\data\a.txt`}, 2},
		{"path prefix", "?path=C:%5CDATA%5Csub", []string{`C:\data\sub\c.txt`}, 1},
		{"action", "?action=update", []string{`C:\other\d.txt`, `C:\data\b.txt`}, 2},
		{"batch", "?batch=b1", []string{`C:\data\b.txt`, `C:\data\a.txt`}, 2},
		{"page", "?limit=2&offset=1", []string{`C:\data\sub\c.txt`, `C:\data\b.txt`}, 4},
		{"since", "?since=2026-03-01T12:02:00Z", []string{`C:\other\d.txt`, `C:\data\sub\c.txt`}, 2},
		{"nothing", "?author=nobody", []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, env := get(t, h, "/api/v1/changes"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
			}
			var resp ChangesResponse
			if err := json.Unmarshal(env.Data, &resp); err != nil {
				t.Fatal(err)
			}
			paths := make([]string, 0, len(resp.Changes))
			for _, c := range resp.Changes {
				paths = append(paths, c.Target.Path)
			}
			if strings.Join(paths, "|") != strings.Join(tt.wantPaths, "|") {
				t.Errorf("paths = %v, want %v", paths, tt.wantPaths)
			}
			if resp.Pagination.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", resp.Pagination.Total, tt.wantTotal)
			}
		})
	}
}

func TestListChangesValidation(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, nil, seedTrail(t), nil)
	for _, q := range []string{"?limit=0", "?limit=5000", "?limit=abc", "?offset=-1", "?action=copy", "?since=yesterday"} {
		rec, env := get(t, h, "/api/v1/changes"+q)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", q, rec.Code)
			continue
		}
		if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
			t.Errorf("%s: error = %+v", q, env.Error)
		}
	}
}

func TestGetChange(t *testing.T) {
	t.Parallel()

	store := seedTrail(t)
	events, _ := store.Query(context.Background(), audit.QueryFilter{Limit: 1})
	h := newTestRouter(t, nil, store, nil)

	rec, env := get(t, h, "/api/v1/changes/"+events[0].ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var ev audit.Event
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != events[0].ID {
		t.Errorf("id = %s", ev.ID)
	}

	rec, _ = get(t, h, "/api/v1/changes/does-not-exist")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing id status = %d", rec.Code)
	}
}

func TestExportChanges(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, nil, seedTrail(t), nil)

	rec, _ := get(t, h, "/api/v1/changes/export?author=corp%5Cbob")
	if rec.Code != http.StatusOK {
		t.Fatalf("json status = %d", rec.Code)
	}
	var events []audit.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Actor.ID != `CORP\bob` {
		t.Errorf("exported %+v", events)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "changes.json") {
		t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}

	rec, _ = get(t, h, "/api/v1/changes/export?format=cef")
	if rec.Code != http.StatusOK {
		t.Fatalf("cef status = %d", rec.Code)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "CEF:0|fswho|") {
		t.Errorf("cef = %q", rec.Body.String())
	}

	rec, _ = get(t, h, "/api/v1/changes/export?format=xml")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad format status = %d", rec.Code)
	}
}

func TestDisabledDependencies(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, nil, nil, nil)
	for _, target := range []string{"/api/v1/changes", "/api/v1/changes/export", "/api/v1/ws"} {
		rec, _ := get(t, h, target)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d", target, rec.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute
	h := NewRouter(cfg, NewHandler(cfg, fakeEngine{}, nil, nil))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last, _ = get(t, h, "/api/v1/health")
	}
	if last.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d", last.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CORSOrigins = []string{"http://dashboard.local"}
	h := NewRouter(cfg, NewHandler(cfg, fakeEngine{}, nil, nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/changes", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("allow origin = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, fakeEngine{}, nil, nil)
	get(t, h, "/api/v1/health")

	rec, _ := get(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "fswho_api_requests_total") {
		t.Error("api request counter not exposed")
	}
}
