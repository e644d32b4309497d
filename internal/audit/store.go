// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MemoryStore implements Store using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	events []Event
	mu     sync.RWMutex
	maxLen int
}

// NewMemoryStore creates a new in-memory audit store.
func NewMemoryStore(maxLen int) *MemoryStore {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &MemoryStore{
		events: make([]Event, 0, maxLen),
		maxLen: maxLen,
	}
}

// Save persists an audit event.
func (s *MemoryStore) Save(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Drop the oldest tenth when full.
	if len(s.events) >= s.maxLen {
		removeCount := max(s.maxLen/10, 1)
		s.events = append(s.events[:0], s.events[removeCount:]...)
	}

	s.events = append(s.events, *event)
	return nil
}

// Get retrieves an event by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		if s.events[i].ID == id {
			event := s.events[i]
			return &event, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Query retrieves events matching the filter, newest first.
func (s *MemoryStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Event
	skipped := 0

	for i := len(s.events) - 1; i >= 0; i-- {
		event := &s.events[i]
		if !filter.Matches(event) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}

		results = append(results, *event)

		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}

	return results, nil
}

// Count returns the number of events matching the filter.
func (s *MemoryStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for i := range s.events {
		if filter.Matches(&s.events[i]) {
			count++
		}
	}

	return count, nil
}

// Delete removes events older than the given time.
func (s *MemoryStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64

	for idx := range s.events {
		if s.events[idx].Timestamp.Before(olderThan) {
			deleted++
		} else {
			kept = append(kept, s.events[idx])
		}
	}

	s.events = kept
	return deleted, nil
}

// Len returns the number of events in the store.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Exporter renders events for download.
type Exporter interface {
	Export(events []Event) ([]byte, error)
	ContentType() string
}

// JSONExporter exports events in JSON format.
type JSONExporter struct{}

// Export exports events to JSON format.
func (JSONExporter) Export(events []Event) ([]byte, error) {
	if events == nil {
		events = []Event{}
	}
	return json.MarshalIndent(events, "", "  ")
}

// ContentType implements Exporter.
func (JSONExporter) ContentType() string { return "application/json" }

// CEFExporter exports events in Common Event Format (for SIEM integration).
type CEFExporter struct {
	DeviceVendor  string
	DeviceProduct string
	DeviceVersion string
}

// NewCEFExporter creates a new CEF exporter with defaults.
func NewCEFExporter(version string) *CEFExporter {
	if version == "" {
		version = "dev"
	}
	return &CEFExporter{
		DeviceVendor:  "fswho",
		DeviceProduct: "FilesystemChangeAttribution",
		DeviceVersion: version,
	}
}

// ContentType implements Exporter.
func (e *CEFExporter) ContentType() string { return "text/plain; charset=utf-8" }

// Export exports events to CEF format.
// CEF Format: CEF:Version|Device Vendor|Device Product|Device Version|Signature ID|Name|Severity|Extension
func (e *CEFExporter) Export(events []Event) ([]byte, error) {
	lines := make([]string, 0, len(events))

	for idx := range events {
		event := &events[idx]
		line := fmt.Sprintf("CEF:0|%s|%s|%s|%s|%s|%d|%s",
			e.escapeHeader(e.DeviceVendor),
			e.escapeHeader(e.DeviceProduct),
			e.escapeHeader(e.DeviceVersion),
			e.escapeHeader(string(event.Type)),
			e.escapeHeader(event.Description),
			cefSeverity(event.Severity),
			e.buildExtension(event),
		)
		lines = append(lines, line)
	}

	return []byte(strings.Join(lines, "\n")), nil
}

// cefSeverity maps our severity to CEF severity (0-10).
func cefSeverity(severity Severity) int {
	switch severity {
	case SeverityInfo:
		return 3
	case SeverityWarning:
		return 5
	default:
		return 0
	}
}

// buildExtension builds the CEF extension string.
func (e *CEFExporter) buildExtension(event *Event) string {
	parts := []string{
		fmt.Sprintf("rt=%d", event.Timestamp.UnixMilli()),
		"suser=" + e.escapeExtension(event.Actor.ID),
	}
	if event.Actor.Domain != "" {
		parts = append(parts, "sntdom="+e.escapeExtension(event.Actor.Domain))
	}
	parts = append(parts,
		"filePath="+e.escapeExtension(event.Target.Path),
		"act="+e.escapeExtension(event.Action),
	)
	if event.CorrelationID != "" {
		parts = append(parts, "externalId="+e.escapeExtension(event.CorrelationID))
	}
	return strings.Join(parts, " ")
}

// escapeHeader escapes pipes and backslashes in CEF header fields.
func (e *CEFExporter) escapeHeader(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "|", `\|`)
	return oneLine(s)
}

// escapeExtension escapes backslashes and equals signs in extension values.
func (e *CEFExporter) escapeExtension(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "=", `\=`)
	return oneLine(s)
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", "")
}
