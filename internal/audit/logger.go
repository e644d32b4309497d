// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/metrics"
)

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `json:"enabled"`

	// Retention is how long to keep events. Zero keeps them forever.
	Retention time.Duration `json:"retention"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `json:"buffer_size"`

	// LogToStdout also writes events to the application log.
	LogToStdout bool `json:"log_to_stdout"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Retention:       90 * 24 * time.Hour,
		CleanupInterval: time.Hour,
		BufferSize:      4096,
		LogToStdout:     false,
	}
}

// Logger is the main audit logging service.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan *Event
	mu        sync.RWMutex
	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLogger creates a new audit logger and starts its writer.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan *Event, config.BufferSize),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case event := <-l.eventChan:
					l.writeEvent(event)
				default:
					return
				}
			}
		case event := <-l.eventChan:
			l.writeEvent(event)
		}
	}
}

// writeEvent persists an event to the store.
func (l *Logger) writeEvent(event *Event) {
	l.mu.RLock()
	toStdout := l.config.LogToStdout
	l.mu.RUnlock()

	if toStdout {
		l.logToStdout(event)
	}

	if l.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.store.Save(ctx, event); err != nil {
		metrics.AuditTrailWrites.WithLabelValues("error").Inc()
		logging.Error().Err(err).Str("event_id", event.ID).Msg("Failed to save audit event")
		return
	}
	metrics.AuditTrailWrites.WithLabelValues("ok").Inc()
}

// logToStdout writes an event to the application log in JSON format.
func (l *Logger) logToStdout(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal audit event")
		return
	}
	logging.Info().RawJSON("event", data).Msg("Audit event")
}

// Log records an audit event. It never blocks; when the buffer is full the
// event is dropped.
func (l *Logger) Log(event *Event) {
	if !l.Enabled() {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-l.stopChan:
		metrics.AuditTrailWrites.WithLabelValues("dropped").Inc()
		return
	default:
	}

	select {
	case l.eventChan <- event:
	default:
		metrics.AuditTrailWrites.WithLabelValues("dropped").Inc()
		logging.Warn().Str("event_id", event.ID).Msg("Audit event buffer full, dropping event")
	}
}

// Close stops the writer after draining buffered events. It is idempotent.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

// Cleanup deletes events older than the retention period once.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	l.mu.RLock()
	retention := l.config.Retention
	l.mu.RUnlock()

	if retention <= 0 || l.store == nil {
		return 0, nil
	}
	return l.store.Delete(ctx, time.Now().Add(-retention))
}

// RunCleanup runs Cleanup every CleanupInterval until ctx is cancelled.
func (l *Logger) RunCleanup(ctx context.Context) error {
	l.mu.RLock()
	interval := l.config.CleanupInterval
	l.mu.RUnlock()
	if interval <= 0 {
		interval = DefaultConfig().CleanupInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := l.Cleanup(ctx)
			if err != nil {
				logging.Error().Err(err).Msg("Audit cleanup error")
			} else if count > 0 {
				logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
			}
		}
	}
}

// Get retrieves one event by ID.
func (l *Logger) Get(ctx context.Context, id string) (*Event, error) {
	return l.store.Get(ctx, id)
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// Count returns the number of events matching the filter.
func (l *Logger) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return l.store.Count(ctx, filter)
}

// SetEnabled enables or disables audit logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}
