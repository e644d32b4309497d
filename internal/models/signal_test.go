// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package models

import (
	"testing"

	"github.com/goccy/go-json"
)

func TestParseAccessMask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    AccessMask
		wantErr bool
	}{
		{"0x2", AccessWriteData, false},
		{"0x10000", AccessDelete, false},
		{"0X10000", AccessDelete, false},
		{"65536", AccessDelete, false},
		{" 0x2 ", AccessWriteData, false},
		{"", 0, false},
		{"0xZZ", 0, true},
		{"write", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAccessMask(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAccessMask(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseAccessMask(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAccessMaskUnmarshal(t *testing.T) {
	t.Parallel()

	var ev SecurityEvent
	if err := json.Unmarshal([]byte(`{"EventID":4663,"AccessMask":"0x10000"}`), &ev); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if ev.AccessMask != AccessDelete {
		t.Errorf("AccessMask = %v, want %v", ev.AccessMask, AccessDelete)
	}

	if err := json.Unmarshal([]byte(`{"EventID":4663,"AccessMask":2}`), &ev); err != nil {
		t.Fatalf("Unmarshal numeric: %v", err)
	}
	if ev.AccessMask != AccessWriteData {
		t.Errorf("AccessMask = %v, want %v", ev.AccessMask, AccessWriteData)
	}
}

func TestSecurityEventAccount(t *testing.T) {
	t.Parallel()

	ev := SecurityEvent{SubjectDomainName: "DOM", SubjectUserName: "bob"}
	if got := ev.Account(); got != `DOM\bob` {
		t.Errorf("Account() = %q", got)
	}
}
