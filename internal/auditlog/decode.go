// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package auditlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/tomtom215/fswho/internal/models"
)

var (
	// ErrNoDetails marks an event that carried an event id but no event data.
	// Decode still returns the event so the correlator can account for it.
	ErrNoDetails = errors.New("audit event has no event data")

	// ErrNotEvent is returned for JSON documents without an event id.
	ErrNotEvent = errors.New("document is not a security event")
)

// eventData is the EventData block of a Security log entry.
type eventData struct {
	ObjectName        string            `json:"ObjectName"`
	AccessMask        models.AccessMask `json:"AccessMask"`
	SubjectDomainName string            `json:"SubjectDomainName"`
	SubjectUserName   string            `json:"SubjectUserName"`
}

// document accepts both export shapes:
//
//	{"EventID":4663,"ObjectName":"C:\\x","AccessMask":"0x2",...}
//	{"EventID":4663,"EventData":{"ObjectName":...}}
//	{"winlog":{"event_id":"4663","event_data":{"ObjectName":...}}}
type document struct {
	EventID   flexInt    `json:"EventID"`
	EventData *eventData `json:"EventData"`

	ObjectName        *string           `json:"ObjectName"`
	AccessMask        models.AccessMask `json:"AccessMask"`
	SubjectDomainName string            `json:"SubjectDomainName"`
	SubjectUserName   string            `json:"SubjectUserName"`

	Winlog *struct {
		EventID   flexInt    `json:"event_id"`
		EventData *eventData `json:"event_data"`
	} `json:"winlog"`
}

// flexInt decodes a number or a numeric string.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("event id %q: %w", s, err)
		}
		*f = flexInt(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// Decode parses one exported event. An event without event data is returned
// together with ErrNoDetails.
func Decode(data []byte) (models.SecurityEvent, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return models.SecurityEvent{}, fmt.Errorf("decode audit event: %w", err)
	}

	var (
		ev   models.SecurityEvent
		body *eventData
	)
	switch {
	case doc.Winlog != nil && doc.Winlog.EventID != 0:
		ev.EventID = int(doc.Winlog.EventID)
		body = doc.Winlog.EventData
	case doc.EventID != 0:
		ev.EventID = int(doc.EventID)
		body = doc.EventData
		if body == nil && doc.ObjectName != nil {
			body = &eventData{
				ObjectName:        *doc.ObjectName,
				AccessMask:        doc.AccessMask,
				SubjectDomainName: doc.SubjectDomainName,
				SubjectUserName:   doc.SubjectUserName,
			}
		}
	default:
		return models.SecurityEvent{}, ErrNotEvent
	}

	if body == nil {
		return ev, ErrNoDetails
	}
	ev.Details = true
	ev.ObjectName = body.ObjectName
	ev.AccessMask = body.AccessMask
	ev.SubjectDomainName = body.SubjectDomainName
	ev.SubjectUserName = body.SubjectUserName
	return ev, nil
}

// Filter admits events by id, like an event-id filtered log subscription.
type Filter struct {
	ids map[int]struct{}
}

// NewFilter admits the given event ids.
func NewFilter(ids ...int) Filter {
	f := Filter{ids: make(map[int]struct{}, len(ids))}
	for _, id := range ids {
		f.ids[id] = struct{}{}
	}
	return f
}

// DefaultFilter admits object access (4663) and delete intent (4659).
func DefaultFilter() Filter {
	return NewFilter(models.EventObjectAccess, models.EventDeleteIntent)
}

// Allow reports whether id is admitted. The zero Filter admits everything.
func (f Filter) Allow(id int) bool {
	if f.ids == nil {
		return true
	}
	_, ok := f.ids[id]
	return ok
}

// Stats counts the outcome of reading a stream of events.
type Stats struct {
	Lines     int `json:"lines"`
	Events    int `json:"events"`
	NoDetails int `json:"no_details"`
	Filtered  int `json:"filtered"`
	Malformed int `json:"malformed"`
}

// maxLine bounds a single exported event.
const maxLine = 1 << 20

// Scan reads newline-delimited events from r until EOF, calling emit for each
// admitted event. Malformed lines are counted and skipped; onError, if set,
// sees each of them.
func Scan(r io.Reader, filter Filter, emit func(models.SecurityEvent), onError func(line int, err error)) (Stats, error) {
	var st Stats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		st.Lines++
		st.handle(sc.Bytes(), filter, emit, func(err error) {
			if onError != nil {
				onError(st.Lines, err)
			}
		})
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read audit events: %w", err)
	}
	return st, nil
}

func (st *Stats) handle(line []byte, filter Filter, emit func(models.SecurityEvent), onError func(error)) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	ev, err := Decode(line)
	switch {
	case errors.Is(err, ErrNoDetails):
		st.NoDetails++
	case err != nil:
		st.Malformed++
		onError(err)
		return
	}
	if !filter.Allow(ev.EventID) {
		st.Filtered++
		return
	}
	st.Events++
	emit(ev)
}
