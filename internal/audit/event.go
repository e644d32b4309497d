// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package audit

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/fswho/internal/models"
)

// changeMetadata is the Metadata payload of a change event.
type changeMetadata struct {
	Flags       string          `json:"flags"`
	IsCreated   bool            `json:"is_created"`
	IsUpdated   bool            `json:"is_updated"`
	IsDeleted   bool            `json:"is_deleted"`
	IsRenamed   bool            `json:"is_renamed"`
	RenamedFrom string          `json:"renamed_from,omitempty"`
	Identity    models.Identity `json:"identity,omitempty"`
}

// TypeForAction maps a change action to its audit event type.
func TypeForAction(a models.Action) EventType {
	switch a {
	case models.ActionCreate:
		return EventTypeFileCreated
	case models.ActionRemove:
		return EventTypeFileDeleted
	case models.ActionRename:
		return EventTypeFileRenamed
	default:
		return EventTypeFileUpdated
	}
}

// FromChange builds the audit event for one delivered change.
func FromChange(path string, rec models.ChangeRecord, batchID string, now time.Time) *Event {
	ev := &Event{
		ID:            uuid.NewString(),
		Timestamp:     now,
		ObservedAt:    rec.ObservedAt,
		Type:          TypeForAction(rec.Action),
		Severity:      SeverityInfo,
		Actor:         actorFor(rec.Author),
		Target:        Target{ID: models.PathKey(path), Type: "file", Path: path},
		Action:        string(rec.Action),
		CorrelationID: batchID,
	}
	if !rec.Attributed() {
		ev.Severity = SeverityWarning
	}
	ev.Description = describe(ev, rec)
	ev.Metadata = mustJSON(changeMetadata{
		Flags:       rec.Flags.String(),
		IsCreated:   rec.IsCreated(),
		IsUpdated:   rec.IsUpdated(),
		IsDeleted:   rec.IsDeleted(),
		IsRenamed:   rec.IsRenamed(),
		RenamedFrom: rec.RenamedFrom,
		Identity:    rec.Identity,
	})
	return ev
}

func actorFor(account string) Actor {
	if account == "" {
		return Actor{ID: UnattributedActor, Type: "unknown"}
	}
	a := Actor{ID: account, Type: "account", Name: account}
	if domain, user, ok := strings.Cut(account, `\`); ok {
		a.Domain, a.Name = domain, user
	}
	return a
}

func describe(ev *Event, rec models.ChangeRecord) string {
	verb := strings.TrimPrefix(string(ev.Type), "file.")
	who := ev.Actor.ID
	if rec.RenamedFrom != "" {
		return who + " " + verb + " " + ev.Target.Path + " (from " + rec.RenamedFrom + ")"
	}
	return who + " " + verb + " " + ev.Target.Path
}

// Matches reports whether event satisfies every criterion of f.
// Limit and Offset are not considered.
//
//nolint:gocyclo // complexity inherent to multi-criteria filter matching
func (f *QueryFilter) Matches(event *Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if event.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Severities) > 0 {
		found := false
		for _, sev := range f.Severities {
			if event.Severity == sev {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.ActorID != "" && !strings.EqualFold(event.Actor.ID, f.ActorID) {
		return false
	}
	if f.PathPrefix != "" && !strings.HasPrefix(event.Target.ID, models.PathKey(f.PathPrefix)) {
		return false
	}

	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && event.Timestamp.After(*f.EndTime) {
		return false
	}

	if f.CorrelationID != "" && event.CorrelationID != f.CorrelationID {
		return false
	}

	if f.SearchText != "" {
		search := strings.ToLower(f.SearchText)
		if !strings.Contains(strings.ToLower(event.Description), search) &&
			!strings.Contains(event.Target.ID, search) {
			return false
		}
	}

	return true
}

// mustJSON converts a value to JSON, returning empty object on error.
func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return data
}
