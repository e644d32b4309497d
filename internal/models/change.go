// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package models

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Action is the normalized kind of a tracked change.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionRemove Action = "remove"
	ActionRename Action = "rename"
)

// Valid reports whether a is one of the four known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionRemove, ActionRename:
		return true
	}
	return false
}

// Flags records the cumulative history of a change record.
// A record that was created and then written to keeps FlagCreated.
type Flags uint8

const (
	FlagCreated Flags = 1 << iota
	FlagUpdated
	FlagDeleted
	FlagRenamed
)

// Apply folds an action into the flag set.
//
// create clears FlagUpdated and sets FlagCreated; update sets FlagUpdated
// without touching FlagCreated; remove and rename set their own bit.
func (f Flags) Apply(a Action) Flags {
	switch a {
	case ActionCreate:
		return (f &^ FlagUpdated) | FlagCreated
	case ActionUpdate:
		return f | FlagUpdated
	case ActionRemove:
		return f | FlagDeleted
	case ActionRename:
		return f | FlagRenamed
	}
	return f
}

// Has reports whether every bit in mask is set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// String renders the set bits as "created|updated" style text.
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	names := make([]string, 0, 4)
	if f.Has(FlagCreated) {
		names = append(names, "created")
	}
	if f.Has(FlagUpdated) {
		names = append(names, "updated")
	}
	if f.Has(FlagDeleted) {
		names = append(names, "deleted")
	}
	if f.Has(FlagRenamed) {
		names = append(names, "renamed")
	}
	return strings.Join(names, "|")
}

// Identity is a filesystem-assigned file id (inode number or NTFS file index).
// The zero value means the identity could not be read.
type Identity uint64

// ChangeRecord is one tracked change for a single path.
//
// Records are owned by the correlation engine until delivery; subscribers
// receive a copy and may keep it.
type ChangeRecord struct {
	// Path is the path as last observed, in its original casing.
	Path string

	// Identity is zero when the file was already gone when first observed.
	Identity Identity

	// ObservedAt is the time of the last mutation applied to the record.
	ObservedAt time.Time

	Action Action
	Flags  Flags

	// Author is "DOMAIN\user", or empty when the change is unattributed.
	Author string

	// RenamedFrom is the previous path of a renamed file.
	RenamedFrom string
}

// Set assigns the action and folds it into the sticky flags.
func (r *ChangeRecord) Set(a Action) {
	r.Action = a
	r.Flags = r.Flags.Apply(a)
}

func (r *ChangeRecord) IsCreated() bool { return r.Flags.Has(FlagCreated) }
func (r *ChangeRecord) IsUpdated() bool { return r.Flags.Has(FlagUpdated) }
func (r *ChangeRecord) IsDeleted() bool { return r.Flags.Has(FlagDeleted) }
func (r *ChangeRecord) IsRenamed() bool { return r.Flags.Has(FlagRenamed) }

// Attributed reports whether an audit event supplied the acting account.
func (r *ChangeRecord) Attributed() bool { return r.Author != "" }

// changeRecordJSON is the wire form of ChangeRecord. The flag bitset is
// expanded into the four booleans consumers expect.
type changeRecordJSON struct {
	Path        string    `json:"path"`
	Identity    Identity  `json:"identity,omitempty"`
	ObservedAt  time.Time `json:"observed_at"`
	Action      Action    `json:"action"`
	IsCreated   bool      `json:"is_created"`
	IsUpdated   bool      `json:"is_updated"`
	IsDeleted   bool      `json:"is_deleted"`
	IsRenamed   bool      `json:"is_renamed"`
	Author      string    `json:"author,omitempty"`
	RenamedFrom string    `json:"renamed_from,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r ChangeRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(changeRecordJSON{
		Path:        r.Path,
		Identity:    r.Identity,
		ObservedAt:  r.ObservedAt,
		Action:      r.Action,
		IsCreated:   r.IsCreated(),
		IsUpdated:   r.IsUpdated(),
		IsDeleted:   r.IsDeleted(),
		IsRenamed:   r.IsRenamed(),
		Author:      r.Author,
		RenamedFrom: r.RenamedFrom,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ChangeRecord) UnmarshalJSON(data []byte) error {
	var w changeRecordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var f Flags
	if w.IsCreated {
		f |= FlagCreated
	}
	if w.IsUpdated {
		f |= FlagUpdated
	}
	if w.IsDeleted {
		f |= FlagDeleted
	}
	if w.IsRenamed {
		f |= FlagRenamed
	}
	*r = ChangeRecord{
		Path:        w.Path,
		Identity:    w.Identity,
		ObservedAt:  w.ObservedAt,
		Action:      w.Action,
		Flags:       f,
		Author:      w.Author,
		RenamedFrom: w.RenamedFrom,
	}
	return nil
}

// PathKey folds a path into the case-insensitive key used for correlation.
// The audit log and the watcher may report different casing for one file.
func PathKey(path string) string {
	return strings.ToLower(path)
}
