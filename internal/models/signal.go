// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// FileSignal is one raw notification from the filesystem watcher.
// Kind is ActionUpdate or ActionRemove; the engine normalizes it.
type FileSignal struct {
	Kind Action
	Path string
}

// Security audit event ids handled by the correlator.
const (
	// EventObjectAccess is "An attempt was made to access an object".
	EventObjectAccess = 4663
	// EventDeleteIntent is "The handle to an object was deleted", raised for
	// remote and administrative deletes.
	EventDeleteIntent = 4659
)

// Access mask bits carried by EventObjectAccess.
const (
	AccessWriteData AccessMask = 0x2
	AccessDelete    AccessMask = 0x10000
)

// AccessMask is the access right recorded by an object access event.
// Exports render it as a hex string ("0x2") or as a plain number; both decode.
type AccessMask uint32

// String renders the mask in the "0x..." form used by the Windows event log.
func (m AccessMask) String() string {
	return "0x" + strconv.FormatUint(uint64(m), 16)
}

// MarshalJSON implements json.Marshaler.
func (m AccessMask) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *AccessMask) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := ParseAccessMask(s)
		if err != nil {
			return err
		}
		*m = v
		return nil
	}
	var n uint32
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("access mask: %w", err)
	}
	*m = AccessMask(n)
	return nil
}

// ParseAccessMask parses a mask in hex ("0x10000") or decimal ("65536") form.
func ParseAccessMask(s string) (AccessMask, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("access mask %q: %w", s, err)
	}
	return AccessMask(v), nil
}

// SecurityEvent is the subset of a Security log entry the correlator needs.
type SecurityEvent struct {
	EventID int `json:"EventID"`

	// Details is false when the entry carried no event data payload.
	Details bool `json:"-"`

	ObjectName        string     `json:"ObjectName"`
	AccessMask        AccessMask `json:"AccessMask"`
	SubjectDomainName string     `json:"SubjectDomainName"`
	SubjectUserName   string     `json:"SubjectUserName"`
}

// Account returns the acting account as "DOMAIN\user", or "" when the event
// names no subject.
func (e SecurityEvent) Account() string {
	if e.SubjectDomainName == "" && e.SubjectUserName == "" {
		return ""
	}
	return e.SubjectDomainName + `\` + e.SubjectUserName
}

// DirEntry is one entry of the startup enumeration.
type DirEntry struct {
	Path     string
	Identity Identity
	IsDir    bool
}
