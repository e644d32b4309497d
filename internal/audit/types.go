// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package audit

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
)

// ErrNotFound is returned by Store.Get for an unknown event id.
var ErrNotFound = errors.New("audit event not found")

// EventType categorizes audit events.
type EventType string

const (
	EventTypeFileCreated EventType = "file.created"
	EventTypeFileUpdated EventType = "file.updated"
	EventTypeFileDeleted EventType = "file.deleted"
	EventTypeFileRenamed EventType = "file.renamed"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// UnattributedActor names the actor of a change no audit event confirmed.
const UnattributedActor = "unattributed"

// Event is one attributed filesystem change.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the change was delivered.
	Timestamp time.Time `json:"timestamp"`

	// ObservedAt is when the filesystem reported the change.
	ObservedAt time.Time `json:"observed_at"`

	Type     EventType `json:"type"`
	Severity Severity  `json:"severity"`
	Actor    Actor     `json:"actor"`
	Target   Target    `json:"target"`

	// Action is the correlator action (create, update, remove, rename).
	Action string `json:"action"`

	// Description provides human-readable details.
	Description string `json:"description"`

	// Metadata carries the change flags and rename source.
	Metadata json.RawMessage `json:"metadata,omitempty"`

	// CorrelationID is the delivery batch the change belonged to.
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Actor is the account that made a change.
type Actor struct {
	// ID is the account as DOMAIN\user, or UnattributedActor.
	ID string `json:"id"`

	// Type is "account" or "unknown".
	Type string `json:"type"`

	Domain string `json:"domain,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Target is the changed file.
type Target struct {
	// ID is the case-folded path key.
	ID string `json:"id"`

	// Type is always "file".
	Type string `json:"type"`

	// Path is the path as last observed.
	Path string `json:"path"`
}

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event *Event) error

	// Get retrieves an event by ID.
	Get(ctx context.Context, id string) (*Event, error)

	// Query retrieves events matching the filter, newest first.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than the given time.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter defines filtering options for audit queries.
type QueryFilter struct {
	// Types filters by event types.
	Types []EventType `json:"types,omitempty"`

	// Severities filters by severity levels.
	Severities []Severity `json:"severities,omitempty"`

	// ActorID matches the account case-insensitively.
	ActorID string `json:"actor_id,omitempty"`

	// PathPrefix matches target paths case-insensitively.
	PathPrefix string `json:"path_prefix,omitempty"`

	// StartTime is the beginning of the time range.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is the end of the time range.
	EndTime *time.Time `json:"end_time,omitempty"`

	// CorrelationID filters by delivery batch.
	CorrelationID string `json:"correlation_id,omitempty"`

	// SearchText performs a text search on description and path.
	SearchText string `json:"search_text,omitempty"`

	// Limit is the maximum number of results.
	Limit int `json:"limit,omitempty"`

	// Offset for pagination.
	Offset int `json:"offset,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{Limit: 100}
}
