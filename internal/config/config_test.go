// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/fswho/internal/models"
)

// baseEnv sets the minimum needed for a valid configuration.
func baseEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("WATCH_ROOT", root)
	t.Setenv("AUDIT_SOURCE", "none")
	return root
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Engine.Debounce != time.Millisecond {
		t.Errorf("Engine.Debounce = %v, want 1ms", cfg.Engine.Debounce)
	}
	if cfg.Engine.Timeout != 5*time.Minute {
		t.Errorf("Engine.Timeout = %v, want 5m", cfg.Engine.Timeout)
	}
	if cfg.Index.MaxEntries != 0 {
		t.Errorf("Index.MaxEntries = %d, want unbounded", cfg.Index.MaxEntries)
	}
	want := []int{models.EventObjectAccess, models.EventDeleteIntent}
	if !reflect.DeepEqual(cfg.AuditSource.EventIDs, want) {
		t.Errorf("AuditSource.EventIDs = %v, want %v", cfg.AuditSource.EventIDs, want)
	}
	if cfg.AuditTrail.Store != StoreMemory {
		t.Errorf("AuditTrail.Store = %q", cfg.AuditTrail.Store)
	}
	if cfg.Publish.Enabled {
		t.Error("Publish should be disabled by default")
	}
	if cfg.Addr() != "127.0.0.1:8470" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"WATCH_ROOT", "watch.root"},
		{"DEBOUNCE", "engine.debounce"},
		{"CHANGE_TIMEOUT", "engine.timeout"},
		{"AUDIT_LOG_PATH", "audit_source.path"},
		{"CORS_ORIGINS", "server.cors_origins"},
		{"LOG_LEVEL", "logging.level"},
		{"log_level", "logging.level"},
		{"HOME", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestLoadEnvVars(t *testing.T) {
	root := baseEnv(t)
	t.Setenv("DEBOUNCE", "250ms")
	t.Setenv("INDEX_MAX_ENTRIES", "5000")
	t.Setenv("WATCH_IGNORE", "*.tmp, ~$*")
	t.Setenv("AUDIT_EVENT_IDS", "4663")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Watch.Root != root {
		t.Errorf("Watch.Root = %q, want %q", cfg.Watch.Root, root)
	}
	if cfg.Engine.Debounce != 250*time.Millisecond {
		t.Errorf("Engine.Debounce = %v", cfg.Engine.Debounce)
	}
	if cfg.Index.MaxEntries != 5000 {
		t.Errorf("Index.MaxEntries = %d", cfg.Index.MaxEntries)
	}
	if !reflect.DeepEqual(cfg.Watch.Ignore, []string{"*.tmp", "~$*"}) {
		t.Errorf("Watch.Ignore = %q", cfg.Watch.Ignore)
	}
	if !reflect.DeepEqual(cfg.AuditSource.EventIDs, []int{4663}) {
		t.Errorf("AuditSource.EventIDs = %v", cfg.AuditSource.EventIDs)
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Errorf("Server.CORSOrigins = %q", cfg.Server.CORSOrigins)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}

	engine := cfg.Correlator()
	if engine.Root != root || engine.Debounce != 250*time.Millisecond || engine.IndexMaxEntries != 5000 {
		t.Errorf("Correlator() = %+v", engine)
	}
	if err := engine.Validate(); err != nil {
		t.Errorf("Correlator().Validate: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
watch:
  root: `+root+`
  ignore: ["*.bak", "cache/**"]
engine:
  timeout: 2m
audit_source:
  type: file
  path: /var/log/security.jsonl
  from_start: true
audit_trail:
  store: badger
  path: /var/lib/fswho/trail
server:
  port: 9000
`)

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.Timeout != 2*time.Minute {
		t.Errorf("Engine.Timeout = %v", cfg.Engine.Timeout)
	}
	if cfg.Engine.Debounce != time.Millisecond {
		t.Errorf("Engine.Debounce = %v, want default", cfg.Engine.Debounce)
	}
	if len(cfg.Watch.Ignore) != 2 {
		t.Errorf("Watch.Ignore = %q", cfg.Watch.Ignore)
	}
	if !cfg.AuditSource.FromStart || cfg.AuditSource.Path != "/var/log/security.jsonl" {
		t.Errorf("AuditSource = %+v", cfg.AuditSource)
	}
	if cfg.AuditTrail.Store != StoreBadger {
		t.Errorf("AuditTrail.Store = %q", cfg.AuditTrail.Store)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
watch:
  root: /srv/share
audit_source:
  type: none
logging:
  level: warn
`)
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("HTTP_PORT", "8080")

	cfg, err := load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Watch.Root != "/srv/share" {
		t.Errorf("Watch.Root = %q", cfg.Watch.Root)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want env value", cfg.Logging.Level)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing root", map[string]string{"WATCH_ROOT": ""}, "Watch.Root"},
		{"relative root", map[string]string{"WATCH_ROOT": "data"}, "absolute path"},
		{"bad ignore glob", map[string]string{"WATCH_IGNORE": "[a-"}, "glob"},
		{"zero timeout", map[string]string{"CHANGE_TIMEOUT": "0s"}, "Engine.Timeout"},
		{"debounce past timeout", map[string]string{"DEBOUNCE": "10m"}, "shorter than"},
		{"bad source", map[string]string{"AUDIT_SOURCE": "etw"}, "AuditSource.Type"},
		{"file source without path", map[string]string{"AUDIT_SOURCE": "file"}, "audit_source.path"},
		{"nats source without url", map[string]string{"AUDIT_SOURCE": "nats"}, "audit_source.nats_url"},
		{"bad nats scheme", map[string]string{"PUBLISH_ENABLED": "true", "PUBLISH_NATS_URL": "http://nats:4222"}, "publish.nats_url must use"},
		{"badger without path", map[string]string{"TRAIL_STORE": "badger"}, "audit_trail.path"},
		{"relay without nats", map[string]string{"WEBSOCKET_RELAY_SUBJECT": "fswho.changes.>"}, "publish.nats_url"},
		{"bad port", map[string]string{"HTTP_PORT": "70000"}, "Server.Port"},
		{"bad level", map[string]string{"LOG_LEVEL": "verbose"}, "Logging.Level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			baseEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := load("")
			if err == nil {
				t.Fatal("load succeeded, want validation error")
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error %T is not *ValidationError: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestFindConfigFile(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")

	t.Setenv(ConfigPathEnvVar, path)
	if got := FindConfigFile(); got != path {
		t.Errorf("FindConfigFile = %q, want %q", got, path)
	}

	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Chdir(t.TempDir())
	if got := FindConfigFile(); got != "" && !strings.HasPrefix(got, "/etc/fswho") {
		t.Errorf("FindConfigFile = %q, want none", got)
	}
}

func TestReadLogLevel(t *testing.T) {
	level, err := readLogLevel(writeConfig(t, "logging:\n  level: debug\n"))
	if err != nil || level != "debug" {
		t.Errorf("readLogLevel = %q, %v", level, err)
	}

	if _, err := readLogLevel(writeConfig(t, "logging:\n  level: loud\n")); err == nil {
		t.Error("invalid level accepted")
	}

	level, err = readLogLevel(writeConfig(t, "watch:\n  root: /x\n"))
	if err != nil || level != "" {
		t.Errorf("readLogLevel without level = %q, %v", level, err)
	}
}

func TestConversions(t *testing.T) {
	cfg := defaultConfig()
	cfg.AuditTrail.LogToStdout = true
	cfg.Publish.BreakerThreshold = 9
	cfg.Server.CORSOrigins = []string{"https://ui.example"}

	if tl := cfg.TrailLogger(); !tl.LogToStdout || tl.BufferSize != cfg.AuditTrail.BufferSize {
		t.Errorf("TrailLogger = %+v", tl)
	}
	if b := cfg.Breaker(); b.FailureThreshold != 9 {
		t.Errorf("Breaker.FailureThreshold = %d", b.FailureThreshold)
	}
	if a := cfg.API("1.2.3"); a.Version != "1.2.3" || len(a.CORSOrigins) != 1 {
		t.Errorf("API = %+v", a)
	}
	if !cfg.AuditFilter().Allow(models.EventDeleteIntent) {
		t.Error("AuditFilter rejects delete intent")
	}
	if l := cfg.LoggingSettings(); l.Level != "info" || l.Format != "json" {
		t.Errorf("LoggingSettings = %+v", l)
	}
}
