// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package models

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestFlagsApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		actions []Action
		want    Flags
	}{
		{"create", []Action{ActionCreate}, FlagCreated},
		{"update", []Action{ActionUpdate}, FlagUpdated},
		{"create then update stays created", []Action{ActionCreate, ActionUpdate}, FlagCreated | FlagUpdated},
		{"update then create clears updated", []Action{ActionUpdate, ActionCreate}, FlagCreated},
		{"remove", []Action{ActionRemove}, FlagDeleted},
		{"rename", []Action{ActionRename}, FlagRenamed},
		{"create rename remove", []Action{ActionCreate, ActionRename, ActionRemove}, FlagCreated | FlagRenamed | FlagDeleted},
		{"unknown action ignored", []Action{"chmod"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Flags
			for _, a := range tt.actions {
				f = f.Apply(a)
			}
			if f != tt.want {
				t.Errorf("Apply(%v) = %v, want %v", tt.actions, f, tt.want)
			}
		})
	}
}

func TestFlagsString(t *testing.T) {
	t.Parallel()

	if got := Flags(0).String(); got != "none" {
		t.Errorf("String() = %q, want none", got)
	}
	if got := (FlagCreated | FlagRenamed).String(); got != "created|renamed" {
		t.Errorf("String() = %q, want created|renamed", got)
	}
}

func TestChangeRecordSet(t *testing.T) {
	t.Parallel()

	var r ChangeRecord
	r.Set(ActionCreate)
	r.Set(ActionUpdate)

	if r.Action != ActionUpdate {
		t.Errorf("Action = %s, want update", r.Action)
	}
	if !r.IsCreated() || !r.IsUpdated() {
		t.Errorf("flags = %v, want created|updated", r.Flags)
	}
	if r.IsDeleted() || r.IsRenamed() {
		t.Errorf("unexpected flags %v", r.Flags)
	}
}

func TestChangeRecordJSON(t *testing.T) {
	t.Parallel()

	rec := ChangeRecord{
		Path:        `C:\data\b.txt`,
		Identity:    10,
		ObservedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Action:      ActionRename,
		Flags:       FlagCreated | FlagRenamed,
		Author:      `DOM\bob`,
		RenamedFrom: `C:\data\a.txt`,
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"is_created":true`, `"is_updated":false`, `"is_renamed":true`, `"action":"rename"`} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded record %s missing %s", s, want)
		}
	}

	var back ChangeRecord
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != rec {
		t.Errorf("decoded %+v, want %+v", back, rec)
	}
}

func TestPathKey(t *testing.T) {
	t.Parallel()

	if got := PathKey(`C:\Data\A.TXT`); got != `c:\data\a.txt` {
		t.Errorf("PathKey = %q", got)
	}
}
