// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/validation"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fswho/config.yaml",
	"/etc/fswho/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load reads defaults, the config file found by FindConfigFile and the
// environment, then validates the result.
func Load() (*Config, error) {
	return load(FindConfigFile())
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// WATCH_ROOT -> watch.root, DEBOUNCE -> engine.debounce
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// FindConfigFile returns $CONFIG_PATH when it exists, else the first of
// DefaultConfigPaths that exists, else "".
func FindConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as a single string.
var sliceConfigPaths = []string{
	"watch.ignore",
	"audit_source.event_ids",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"watch_root":          "watch.root",
	"watch_ignore":        "watch.ignore",
	"watch_seed_on_start": "watch.seed_on_start",

	"debounce":         "engine.debounce",
	"sweep_interval":   "engine.sweep_interval",
	"change_timeout":   "engine.timeout",
	"anomaly_log_rate": "engine.anomaly_log_rate",

	"index_max_entries":     "index.max_entries",
	"index_prune_on_delete": "index.prune_on_delete",

	"audit_source":               "audit_source.type",
	"audit_log_path":             "audit_source.path",
	"audit_log_from_start":       "audit_source.from_start",
	"audit_log_poll_interval":    "audit_source.poll_interval",
	"audit_event_ids":            "audit_source.event_ids",
	"audit_nats_url":             "audit_source.nats_url",
	"audit_nats_subject":         "audit_source.subject",
	"audit_nats_queue_group":     "audit_source.queue_group",
	"audit_nats_jetstream":       "audit_source.jetstream",
	"audit_nats_durable_name":    "audit_source.durable_name",
	"audit_nats_ack_wait":        "audit_source.ack_wait",
	"trail_enabled":              "audit_trail.enabled",
	"trail_store":                "audit_trail.store",
	"trail_path":                 "audit_trail.path",
	"trail_memory_max_events":    "audit_trail.memory_max_events",
	"trail_retention":            "audit_trail.retention",
	"trail_cleanup_interval":     "audit_trail.cleanup_interval",
	"trail_buffer_size":          "audit_trail.buffer_size",
	"trail_sync_writes":          "audit_trail.sync_writes",
	"trail_log_to_stdout":        "audit_trail.log_to_stdout",
	"publish_enabled":            "publish.enabled",
	"publish_nats_url":           "publish.nats_url",
	"publish_subject_prefix":     "publish.subject_prefix",
	"publish_jetstream":          "publish.jetstream",
	"publish_buffer":             "publish.buffer",
	"publish_breaker_threshold":  "publish.breaker_threshold",
	"publish_breaker_timeout":    "publish.breaker_timeout",
	"http_enabled":               "server.enabled",
	"http_host":                  "server.host",
	"http_port":                  "server.port",
	"http_read_timeout":          "server.read_timeout",
	"http_write_timeout":         "server.write_timeout",
	"http_shutdown_timeout":      "server.shutdown_timeout",
	"cors_origins":               "server.cors_origins",
	"rate_limit_requests":        "server.rate_limit_requests",
	"rate_limit_window":          "server.rate_limit_window",
	"disable_rate_limit":         "server.rate_limit_disabled",
	"export_limit":               "server.export_limit",
	"websocket_enabled":          "server.websocket",
	"websocket_relay_subject":    "server.relay_subject",
	"log_level":                  "logging.level",
	"log_format":                 "logging.format",
	"log_caller":                 "logging.caller",
	"supervisor_failure_limit":   "supervisor.failure_threshold",
	"supervisor_failure_decay":   "supervisor.failure_decay",
	"supervisor_failure_backoff": "supervisor.failure_backoff",
	"supervisor_shutdown":        "supervisor.shutdown_timeout",
}

// envTransformFunc maps an environment variable to its koanf path. Unmapped
// variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchLogLevel applies logging.level from path whenever the file changes,
// until ctx is cancelled. A file that fails to parse keeps the current level.
func WatchLogLevel(ctx context.Context, path string) error {
	provider := file.Provider(path)
	err := provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Config watch error")
			return
		}
		level, err := readLogLevel(path)
		if err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Config reload failed, keeping log level")
			return
		}
		if level == "" {
			return
		}
		logging.SetLevel(level)
		logging.Info().Str("level", level).Msg("Log level reloaded")
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	<-ctx.Done()
	if err := provider.Unwatch(); err != nil {
		logging.Debug().Err(err).Msg("Config unwatch")
	}
	return ctx.Err()
}

func readLogLevel(path string) (string, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return "", err
	}
	level := k.String("logging.level")
	if level == "" {
		return "", nil
	}
	if err := validation.GetValidator().Var(level, "oneof=trace debug info warn error"); err != nil {
		return "", fmt.Errorf("invalid logging.level %q", level)
	}
	return level, nil
}
