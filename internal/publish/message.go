// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

// Package publish emits delivered changes to a message bus.
//
// Each change becomes a ChangeMessage published on "<prefix>.<action>", for
// example "fswho.changes.rename", so consumers can subscribe to one action or
// to "<prefix>.>" for all of them.
package publish

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/fswho/internal/models"
)

// ChangeMessage is the wire form of one delivered change.
type ChangeMessage struct {
	ID          string          `json:"id"`
	Path        string          `json:"path"`
	Key         string          `json:"key"`
	Action      models.Action   `json:"action"`
	IsCreated   bool            `json:"is_created"`
	IsUpdated   bool            `json:"is_updated"`
	IsDeleted   bool            `json:"is_deleted"`
	IsRenamed   bool            `json:"is_renamed"`
	Author      string          `json:"author,omitempty"`
	RenamedFrom string          `json:"renamed_from,omitempty"`
	Identity    models.Identity `json:"identity,omitempty"`
	ObservedAt  time.Time       `json:"observed_at"`
	DeliveredAt time.Time       `json:"delivered_at"`
	BatchID     string          `json:"batch_id,omitempty"`
}

// NewChangeMessage builds the message for one change.
func NewChangeMessage(path string, rec models.ChangeRecord, batchID string, now time.Time) *ChangeMessage {
	return &ChangeMessage{
		ID:          uuid.NewString(),
		Path:        path,
		Key:         models.PathKey(path),
		Action:      rec.Action,
		IsCreated:   rec.IsCreated(),
		IsUpdated:   rec.IsUpdated(),
		IsDeleted:   rec.IsDeleted(),
		IsRenamed:   rec.IsRenamed(),
		Author:      rec.Author,
		RenamedFrom: rec.RenamedFrom,
		Identity:    rec.Identity,
		ObservedAt:  rec.ObservedAt,
		DeliveredAt: now,
		BatchID:     batchID,
	}
}

// Topic returns the subject the message is published on.
func (m *ChangeMessage) Topic(prefix string) string {
	return prefix + "." + string(m.Action)
}

// Marshal serializes the message.
func (m *ChangeMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// UnmarshalChangeMessage parses a message payload.
func UnmarshalChangeMessage(data []byte) (*ChangeMessage, error) {
	var m ChangeMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
