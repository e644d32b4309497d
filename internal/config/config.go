// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package config

import (
	"net"
	"strconv"
	"time"

	"github.com/tomtom215/fswho/internal/api"
	"github.com/tomtom215/fswho/internal/audit"
	"github.com/tomtom215/fswho/internal/auditlog"
	"github.com/tomtom215/fswho/internal/correlator"
	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/models"
	"github.com/tomtom215/fswho/internal/publish"
)

// Audit source types.
const (
	SourceFile = "file"
	SourceNATS = "nats"
	SourceNone = "none"
)

// Trail store types.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
)

// Config is the complete fswho configuration.
type Config struct {
	Watch       WatchConfig       `koanf:"watch"`
	Engine      EngineConfig      `koanf:"engine"`
	Index       IndexConfig       `koanf:"index"`
	AuditSource AuditSourceConfig `koanf:"audit_source"`
	AuditTrail  AuditTrailConfig  `koanf:"audit_trail"`
	Publish     PublishConfig     `koanf:"publish"`
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Supervisor  SupervisorConfig  `koanf:"supervisor"`
}

// WatchConfig selects the directory tree to track.
type WatchConfig struct {
	// Root is the watched directory.
	Root string `koanf:"root" validate:"required"`

	// Ignore lists glob patterns, relative to Root or matched against the
	// base name, whose changes are never reported.
	Ignore []string `koanf:"ignore" validate:"dive,glob"`

	// SeedOnStart enumerates Root once at startup to fill the inode index,
	// so renames of files that existed before startup are recognised.
	SeedOnStart bool `koanf:"seed_on_start"`
}

// EngineConfig holds the correlator timings.
type EngineConfig struct {
	Debounce       time.Duration `koanf:"debounce" validate:"gt=0"`
	SweepInterval  time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	AnomalyLogRate float64       `koanf:"anomaly_log_rate" validate:"gte=0"`
}

// IndexConfig bounds the inode index. The defaults keep every identity ever
// seen.
type IndexConfig struct {
	MaxEntries    int  `koanf:"max_entries" validate:"gte=0"`
	PruneOnDelete bool `koanf:"prune_on_delete"`
}

// AuditSourceConfig selects where Security events are read from.
type AuditSourceConfig struct {
	Type string `koanf:"type" validate:"oneof=file nats none"`

	// File source.
	Path         string        `koanf:"path"`
	FromStart    bool          `koanf:"from_start"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gte=0"`

	// EventIDs restricts which Security events are considered.
	EventIDs []int `koanf:"event_ids" validate:"dive,gt=0"`

	// NATS source.
	NATSURL     string        `koanf:"nats_url"`
	Subject     string        `koanf:"subject"`
	QueueGroup  string        `koanf:"queue_group"`
	JetStream   bool          `koanf:"jetstream"`
	DurableName string        `koanf:"durable_name"`
	AckWait     time.Duration `koanf:"ack_wait" validate:"gte=0"`
}

// AuditTrailConfig controls the durable record of delivered changes.
type AuditTrailConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Store           string        `koanf:"store" validate:"oneof=memory badger"`
	Path            string        `koanf:"path"`
	MemoryMaxEvents int           `koanf:"memory_max_events" validate:"gte=0"`
	Retention       time.Duration `koanf:"retention" validate:"gte=0"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"gte=0"`
	BufferSize      int           `koanf:"buffer_size" validate:"gte=0"`
	SyncWrites      bool          `koanf:"sync_writes"`
	LogToStdout     bool          `koanf:"log_to_stdout"`
}

// PublishConfig controls publishing delivered changes to NATS.
type PublishConfig struct {
	Enabled          bool          `koanf:"enabled"`
	NATSURL          string        `koanf:"nats_url"`
	SubjectPrefix    string        `koanf:"subject_prefix"`
	JetStream        bool          `koanf:"jetstream"`
	Buffer           int           `koanf:"buffer" validate:"gte=0"`
	BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"gte=1"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

// ServerConfig controls the HTTP API and live stream.
type ServerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	ExportLimit       int           `koanf:"export_limit" validate:"gte=0"`
	WebSocket         bool          `koanf:"websocket"`

	// RelaySubject feeds the live stream from published change messages
	// instead of the local engine.
	RelaySubject string `koanf:"relay_subject"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig tunes the suture tree.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// defaultConfig returns the values used when no file or environment
// variable overrides them.
func defaultConfig() *Config {
	engine := correlator.DefaultConfig()
	trail := audit.DefaultConfig()
	breaker := publish.DefaultBreakerConfig()
	apiCfg := api.DefaultConfig()

	return &Config{
		Watch: WatchConfig{
			Ignore:      []string{},
			SeedOnStart: true,
		},
		Engine: EngineConfig{
			Debounce:       engine.Debounce,
			SweepInterval:  engine.SweepInterval,
			Timeout:        engine.Timeout,
			AnomalyLogRate: engine.AnomalyLogRate,
		},
		AuditSource: AuditSourceConfig{
			Type:         SourceFile,
			PollInterval: time.Second,
			EventIDs:     []int{models.EventObjectAccess, models.EventDeleteIntent},
			Subject:      "fswho.security",
			AckWait:      30 * time.Second,
		},
		AuditTrail: AuditTrailConfig{
			Enabled:         trail.Enabled,
			Store:           StoreMemory,
			MemoryMaxEvents: 10000,
			Retention:       trail.Retention,
			CleanupInterval: trail.CleanupInterval,
			BufferSize:      trail.BufferSize,
		},
		Publish: PublishConfig{
			SubjectPrefix:    "fswho.changes",
			Buffer:           1024,
			BreakerThreshold: breaker.FailureThreshold,
			BreakerTimeout:   breaker.Timeout,
		},
		Server: ServerConfig{
			Enabled:           true,
			Host:              "127.0.0.1",
			Port:              8470,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{},
			RateLimitRequests: apiCfg.RateLimitRequests,
			RateLimitWindow:   apiCfg.RateLimitWindow,
			ExportLimit:       apiCfg.ExportLimit,
			WebSocket:         true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// Correlator returns the engine configuration.
func (c *Config) Correlator() correlator.Config {
	return correlator.Config{
		Root:            c.Watch.Root,
		Debounce:        c.Engine.Debounce,
		SweepInterval:   c.Engine.SweepInterval,
		Timeout:         c.Engine.Timeout,
		IndexMaxEntries: c.Index.MaxEntries,
		PruneOnDelete:   c.Index.PruneOnDelete,
		AnomalyLogRate:  c.Engine.AnomalyLogRate,
	}
}

// LoggingSettings returns the logging configuration.
func (c *Config) LoggingSettings() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Logging.Level
	cfg.Format = c.Logging.Format
	cfg.Caller = c.Logging.Caller
	return cfg
}

// AuditFilter returns the event filter for the audit source.
func (c *Config) AuditFilter() auditlog.Filter {
	return auditlog.NewFilter(c.AuditSource.EventIDs...)
}

// TrailLogger returns the audit trail logger configuration.
func (c *Config) TrailLogger() *audit.Config {
	return &audit.Config{
		Enabled:         c.AuditTrail.Enabled,
		Retention:       c.AuditTrail.Retention,
		CleanupInterval: c.AuditTrail.CleanupInterval,
		BufferSize:      c.AuditTrail.BufferSize,
		LogToStdout:     c.AuditTrail.LogToStdout,
	}
}

// Breaker returns the publish circuit breaker configuration.
func (c *Config) Breaker() publish.BreakerConfig {
	cfg := publish.DefaultBreakerConfig()
	cfg.FailureThreshold = c.Publish.BreakerThreshold
	cfg.Timeout = c.Publish.BreakerTimeout
	return cfg
}

// API returns the HTTP API configuration.
func (c *Config) API(version string) api.Config {
	return api.Config{
		Version:           version,
		CORSOrigins:       c.Server.CORSOrigins,
		RateLimitRequests: c.Server.RateLimitRequests,
		RateLimitWindow:   c.Server.RateLimitWindow,
		RateLimitDisabled: c.Server.RateLimitDisabled,
		ExportLimit:       c.Server.ExportLimit,
	}
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
