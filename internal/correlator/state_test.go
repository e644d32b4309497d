// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package correlator

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/fswho/internal/metrics"
	"github.com/tomtom215/fswho/internal/models"
)

func TestEndToEndWriteAttribution(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\a.txt`, 10)
	e := newTestEngine(t, fs, nil)
	e.index.Set(10, `C:\data\a.txt`)

	rec := newRecorder()
	e.OnChange(rec)

	e.applySignal(update(`C:\data\a.txt`))
	if got := e.pending[`c:\data\a.txt`].Action; got != models.ActionUpdate {
		t.Fatalf("pending action = %s, want update (identity already indexed)", got)
	}

	e.applyAudit(access(`C:\data\a.txt`, models.AccessWriteData, "bob"))
	if _, ok := e.pending[`c:\data\a.txt`]; ok {
		t.Fatal("record still pending after write audit")
	}

	e.deliver(context.Background())

	got := rec.deliveries()
	if len(got) != 1 {
		t.Fatalf("got %d deliveries, want 1", len(got))
	}
	d := got[0]
	if d.path != `c:\data\a.txt` {
		t.Errorf("path = %q", d.path)
	}
	if d.rec.Action != models.ActionUpdate || !d.rec.IsUpdated() || d.rec.IsCreated() {
		t.Errorf("record = %+v (flags %v)", d.rec, d.rec.Flags)
	}
	if d.rec.Author != `DOM\bob` {
		t.Errorf("author = %q, want DOM\\bob", d.rec.Author)
	}
	if len(e.flush) != 0 {
		t.Errorf("flush table not drained: %d", len(e.flush))
	}
}

func TestNewFileUpdateBecomesCreate(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\new.txt`, 11)
	e := newTestEngine(t, fs, nil)

	e.applySignal(update(`C:\data\new.txt`))

	r := e.pending[`c:\data\new.txt`]
	if r.Action != models.ActionCreate {
		t.Errorf("action = %s, want create", r.Action)
	}
	if r.Flags != models.FlagCreated {
		t.Errorf("flags = %v, want created only", r.Flags)
	}
	if p, ok := e.index.Lookup(11); !ok || p != `C:\data\new.txt` {
		t.Errorf("index[11] = %q, %v", p, ok)
	}
}

func TestCreateThenUpdateStaysCreated(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\doc.txt`, 12)
	e := newTestEngine(t, fs, nil)

	e.applySignal(update(`C:\data\doc.txt`))
	e.applySignal(update(`C:\data\doc.txt`))

	r := e.pending[`c:\data\doc.txt`]
	if !r.IsCreated() {
		t.Errorf("created flag lost: %v", r.Flags)
	}
	if !r.IsUpdated() {
		t.Errorf("expected updated flag after second write: %v", r.Flags)
	}
}

func TestRepeatedSignalIsIdempotent(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\a.txt`, 10)
	e := newTestEngine(t, fs, nil)
	e.index.Set(10, `C:\data\a.txt`)

	for i := 0; i < 5; i++ {
		e.applySignal(update(`C:\data\a.txt`))
		r := e.pending[`c:\data\a.txt`]
		if r.Action != models.ActionUpdate {
			t.Fatalf("signal %d: action = %s, want update", i, r.Action)
		}
		if r.Flags != models.FlagUpdated {
			t.Fatalf("signal %d: flags = %v", i, r.Flags)
		}
	}
	if e.index.Len() != 1 {
		t.Errorf("index len = %d, want 1", e.index.Len())
	}
}

func TestRemoveSkipsIdentityRead(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	e := newTestEngine(t, fs, nil)

	e.applySignal(remove(`C:\data\gone.txt`))

	r := e.pending[`c:\data\gone.txt`]
	if r.Identity != 0 {
		t.Errorf("identity = %d, want absent", r.Identity)
	}
	if r.Action != models.ActionRemove || !r.IsDeleted() {
		t.Errorf("record = %+v", r)
	}
	if fs.reads != 0 {
		t.Errorf("identity read %d times for a remove", fs.reads)
	}
}

func TestRecreatedPathReadsIdentity(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	e := newTestEngine(t, fs, nil)

	e.applySignal(remove(`C:\data\x.txt`))
	fs.put(`C:\data\x.txt`, 40)
	e.applySignal(update(`C:\data\x.txt`))

	r := e.pending[`c:\data\x.txt`]
	if r.Identity != 40 {
		t.Fatalf("identity = %d, want 40", r.Identity)
	}
	if !r.IsDeleted() || !r.IsCreated() {
		t.Errorf("flags = %v, want deleted|created", r.Flags)
	}
}

func TestRenameCarriesHistory(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\A.txt`, 20)
	e := newTestEngine(t, fs, nil)

	e.applySignal(update(`C:\data\A.txt`))
	fs.rename(`C:\data\A.txt`, `C:\data\B.txt`)
	e.applySignal(update(`C:\data\B.txt`))

	if _, ok := e.pending[`c:\data\a.txt`]; ok {
		t.Error("rename source still pending")
	}
	if _, ok := e.ignore[`c:\data\a.txt`]; !ok {
		t.Error("rename source not in ignore set")
	}

	b := e.pending[`c:\data\b.txt`]
	if b.Action != models.ActionRename || !b.IsRenamed() {
		t.Errorf("action = %s flags = %v, want rename", b.Action, b.Flags)
	}
	if b.RenamedFrom != `C:\data\A.txt` {
		t.Errorf("renamedFrom = %q", b.RenamedFrom)
	}
	if !b.IsCreated() {
		t.Errorf("created flag not carried: %v", b.Flags)
	}
	if p, _ := e.index.Lookup(20); p != `C:\data\B.txt` {
		t.Errorf("index[20] = %q", p)
	}
}

func TestRenameChainKeepsOriginalSource(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\a.txt`, 21)
	e := newTestEngine(t, fs, nil)
	e.index.Set(21, `C:\data\a.txt`)

	e.applySignal(update(`C:\data\a.txt`))
	fs.rename(`C:\data\a.txt`, `C:\data\b.txt`)
	e.applySignal(update(`C:\data\b.txt`))
	fs.rename(`C:\data\b.txt`, `C:\data\c.txt`)
	e.applySignal(update(`C:\data\c.txt`))

	c := e.pending[`c:\data\c.txt`]
	if c.RenamedFrom != `C:\data\a.txt` {
		t.Errorf("renamedFrom = %q, want original source", c.RenamedFrom)
	}
	if len(e.pending) != 1 {
		t.Errorf("pending = %d records, want 1", len(e.pending))
	}
}

func TestDuplicateSignalOnRenameSourceIsSuppressed(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\A.txt`, 22)
	e := newTestEngine(t, fs, nil)
	e.index.Set(22, `C:\data\A.txt`)
	rec := newRecorder()
	e.OnChange(rec)

	e.applySignal(update(`C:\data\A.txt`))
	fs.rename(`C:\data\A.txt`, `C:\data\B.txt`)
	e.applySignal(update(`C:\data\B.txt`))

	// Late duplicate for the source, then the audit log confirms it.
	e.applySignal(remove(`C:\data\A.txt`))
	e.applyAudit(access(`C:\data\A.txt`, models.AccessDelete, "bob"))

	if _, ok := e.ignore[`c:\data\a.txt`]; ok {
		t.Error("ignore entry not consumed")
	}
	if _, ok := e.pending[`c:\data\a.txt`]; ok {
		t.Error("duplicate record for rename source survived")
	}
	if _, ok := e.flush[`c:\data\a.txt`]; ok {
		t.Error("rename source flushed")
	}

	e.deliver(context.Background())
	if n := len(rec.deliveries()); n != 0 {
		t.Errorf("got %d deliveries, want 0", n)
	}
}

// An editor's atomic save moves the original aside and renames the temp
// file onto its path before the audit log confirms the first rename.
func TestNewFileAtRenameSourceIsDelivered(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\A.txt`, 10)
	fs.put(`C:\data\A.tmp`, 11)
	clock := newFakeClock()
	e := newTestEngine(t, fs, clock)
	e.index.Set(10, `C:\data\A.txt`)
	rec := newRecorder()
	e.OnChange(rec)

	e.applySignal(update(`C:\data\A.tmp`))
	e.applySignal(update(`C:\data\A.txt`))
	fs.rename(`C:\data\A.txt`, `C:\data\A.txt~`)
	e.applySignal(update(`C:\data\A.txt~`))
	fs.rename(`C:\data\A.tmp`, `C:\data\A.txt`)
	e.applySignal(update(`C:\data\A.txt`))

	e.applyAudit(access(`C:\data\A.txt`, models.AccessDelete, "bob"))

	if _, ok := e.ignore[`c:\data\a.txt`]; ok {
		t.Error("ignore entry not consumed")
	}
	if r, ok := e.pending[`c:\data\a.txt`]; !ok || r.Identity != 11 {
		t.Fatalf("new file at rename source dropped: %+v", r)
	}

	clock.Advance(e.cfg.Timeout + time.Second)
	e.sweep()
	e.deliver(context.Background())

	got := map[string]models.ChangeRecord{}
	for _, d := range rec.deliveries() {
		got[d.path] = d.rec
	}
	if len(got) != 2 {
		t.Fatalf("delivered %v, want a.txt and a.txt~", got)
	}
	if r := got[`c:\data\a.txt`]; r.Action != models.ActionRename || r.RenamedFrom != `C:\data\A.tmp` {
		t.Errorf("a.txt = %s from %q, want rename from A.tmp", r.Action, r.RenamedFrom)
	}
	if r := got[`c:\data\a.txt~`]; r.RenamedFrom != `C:\data\A.txt` {
		t.Errorf("a.txt~ renamedFrom = %q", r.RenamedFrom)
	}
}

func TestSweepAtIgnoredPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		reuse       bool // a different file takes the source path
		wantFlushed bool
		wantIgnore  bool
	}{
		{name: "new file is delivered", reuse: true, wantFlushed: true, wantIgnore: true},
		{name: "late duplicate is swallowed", reuse: false, wantFlushed: false, wantIgnore: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := newFakeFS()
			fs.put(`C:\data\A.txt`, 40)
			clock := newFakeClock()
			e := newTestEngine(t, fs, clock)
			e.index.Set(40, `C:\data\A.txt`)

			e.applySignal(update(`C:\data\A.txt`))
			fs.rename(`C:\data\A.txt`, `C:\data\B.txt`)
			e.applySignal(update(`C:\data\B.txt`))
			if tt.reuse {
				fs.put(`C:\data\A.txt`, 41)
				e.applySignal(update(`C:\data\A.txt`))
			} else {
				e.applySignal(remove(`C:\data\A.txt`))
			}

			clock.Advance(e.cfg.Timeout + time.Second)
			e.sweep()

			if _, ok := e.flush[`c:\data\b.txt`]; !ok {
				t.Error("rename target not flushed")
			}
			if _, ok := e.flush[`c:\data\a.txt`]; ok != tt.wantFlushed {
				t.Errorf("source path flushed = %v, want %v", ok, tt.wantFlushed)
			}
			if _, ok := e.pending[`c:\data\a.txt`]; ok {
				t.Error("source path still pending after sweep")
			}
			if _, ok := e.ignore[`c:\data\a.txt`]; ok != tt.wantIgnore {
				t.Errorf("ignore entry kept = %v, want %v", ok, tt.wantIgnore)
			}
		})
	}
}

func TestAuditScopeBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		root string
		path string
		want bool
	}{
		{root: `C:\data`, path: `C:\data`, want: true},
		{root: `C:\data`, path: `C:\DATA\a.txt`, want: true},
		{root: `C:\data`, path: `C:\database\a.txt`, want: false},
		{root: `C:\data`, path: `C:\dat`, want: false},
		{root: `C:\data\`, path: `C:\data\sub\a.txt`, want: true},
		{root: `C:\data\`, path: `C:\data2\a.txt`, want: false},
		{root: `/srv/share`, path: `/srv/share/a.txt`, want: true},
		{root: `/srv/share`, path: `/srv/shared/a.txt`, want: false},
	}

	for _, tt := range tests {
		e := newTestEngine(t, newFakeFS(), nil, func(c *Config) { c.Root = tt.root })
		if got := e.inScope(models.PathKey(tt.path)); got != tt.want {
			t.Errorf("root %q: inScope(%q) = %v, want %v", tt.root, tt.path, got, tt.want)
		}
	}
}

func TestAuditOutsideRootIsNotAnomaly(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newFakeFS(), nil, func(c *Config) { c.AnomalyLogRate = 1 })

	e.applyAudit(access(`C:\database\x.txt`, models.AccessDelete, "bob"))
	if _, ok := e.anomaly["unknown_path"]; ok {
		t.Error("out-of-scope event reported as an unknown path")
	}

	e.applyAudit(access(`C:\data\x.txt`, models.AccessDelete, "bob"))
	if _, ok := e.anomaly["unknown_path"]; !ok {
		t.Error("in-scope event without a record not reported")
	}
}

func TestAnomalyRateIsPerKind(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newFakeFS(), nil, func(c *Config) { c.AnomalyLogRate = 0.001 })

	for i := 0; i < 15; i++ {
		e.warnAnomaly("unknown_path", `c:\data\x`, "test")
	}
	if e.suppressed != 5 {
		t.Fatalf("suppressed = %d, want 5 past the burst", e.suppressed)
	}

	e.warnAnomaly("rename_after_delete", `c:\data\y`, "test")
	if e.suppressed != 5 {
		t.Errorf("suppressed = %d; a different kind was rate limited", e.suppressed)
	}
}

func TestRenameAfterDeleteIsAnomaly(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\moved.txt`, 30)
	e := newTestEngine(t, fs, nil)
	e.index.Set(30, `C:\data\orig.txt`)

	before := testutil.ToFloat64(metrics.Anomalies.WithLabelValues("rename_after_delete"))
	e.applySignal(update(`C:\data\moved.txt`))

	r := e.pending[`c:\data\moved.txt`]
	if r.Action != models.ActionRename {
		t.Errorf("action = %s, want rename", r.Action)
	}
	if r.RenamedFrom != `C:\data\orig.txt` {
		t.Errorf("renamedFrom = %q, want source path", r.RenamedFrom)
	}
	if _, ok := e.ignore[`c:\data\orig.txt`]; ok {
		t.Error("ignore entry added without a pending source")
	}
	if got := testutil.ToFloat64(metrics.Anomalies.WithLabelValues("rename_after_delete")) - before; got < 1 {
		t.Error("anomaly not counted")
	}
}

func TestCaseOnlyRenameKeepsAction(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\Readme.md`, 31)
	e := newTestEngine(t, fs, nil)
	e.index.Set(31, `C:\data\README.md`)

	e.applySignal(update(`C:\data\Readme.md`))

	r := e.pending[`c:\data\readme.md`]
	if r.Action != models.ActionUpdate {
		t.Errorf("action = %s, want update", r.Action)
	}
	if p, _ := e.index.Lookup(31); p != `C:\data\Readme.md` {
		t.Errorf("index path = %q, want new casing", p)
	}
}

func TestAuditMatching(t *testing.T) {
	t.Parallel()

	type setup func(e *Engine, fs *fakeFS)

	pending := func(path string, id models.Identity) setup {
		return func(e *Engine, fs *fakeFS) {
			fs.put(path, id)
			e.index.Set(id, path)
			e.applySignal(update(path))
		}
	}
	flushed := func(path, author string) setup {
		return func(e *Engine, _ *fakeFS) {
			e.flush[models.PathKey(path)] = &models.ChangeRecord{Path: path, Action: models.ActionUpdate, Author: author}
		}
	}

	tests := []struct {
		name       string
		setup      setup
		event      models.SecurityEvent
		wantFlush  bool
		wantAuthor string
	}{
		{
			name:       "write with pending record",
			setup:      pending(`C:\data\a.txt`, 1),
			event:      access(`C:\data\a.txt`, models.AccessWriteData, "bob"),
			wantFlush:  true,
			wantAuthor: `DOM\bob`,
		},
		{
			name:      "write without record",
			event:     access(`C:\data\a.txt`, models.AccessWriteData, "bob"),
			wantFlush: false,
		},
		{
			name:       "write matches case-insensitively",
			setup:      pending(`C:\data\a.txt`, 1),
			event:      access(`C:\DATA\A.TXT`, models.AccessWriteData, "bob"),
			wantFlush:  true,
			wantAuthor: `DOM\bob`,
		},
		{
			name:       "delete with pending record",
			setup:      pending(`C:\data\a.txt`, 1),
			event:      access(`C:\data\a.txt`, models.AccessDelete, "eve"),
			wantFlush:  true,
			wantAuthor: `DOM\eve`,
		},
		{
			name:      "delete without record reports anomaly only",
			event:     access(`C:\data\a.txt`, models.AccessDelete, "eve"),
			wantFlush: false,
		},
		{
			name:       "read supplies missing author",
			setup:      pending(`C:\data\a.txt`, 1),
			event:      access(`C:\data\a.txt`, 0x1, "amy"),
			wantFlush:  true,
			wantAuthor: `DOM\amy`,
		},
		{
			name:      "read without record is no phantom",
			event:     access(`C:\data\a.txt`, 0x1, "amy"),
			wantFlush: false,
		},
		{
			name:       "read does not replace author",
			setup:      flushed(`C:\data\a.txt`, `DOM\bob`),
			event:      access(`C:\data\a.txt`, 0x80, "amy"),
			wantFlush:  true,
			wantAuthor: `DOM\bob`,
		},
		{
			name:       "read fills author on flushed record",
			setup:      flushed(`C:\data\a.txt`, ""),
			event:      access(`C:\data\a.txt`, 0x80, "amy"),
			wantFlush:  true,
			wantAuthor: `DOM\amy`,
		},
		{
			name:  "delete intent event",
			setup: pending(`C:\data\a.txt`, 1),
			event: models.SecurityEvent{
				EventID: models.EventDeleteIntent, Details: true, ObjectName: `C:\data\a.txt`,
				SubjectDomainName: "DOM", SubjectUserName: "admin",
			},
			wantFlush:  true,
			wantAuthor: `DOM\admin`,
		},
		{
			name:      "outside root",
			setup:     pending(`C:\data\a.txt`, 1),
			event:     access(`D:\other\a.txt`, models.AccessWriteData, "bob"),
			wantFlush: false,
		},
		{
			name:  "missing details",
			setup: pending(`C:\data\a.txt`, 1),
			event: models.SecurityEvent{
				EventID: models.EventObjectAccess, ObjectName: `C:\data\a.txt`, AccessMask: models.AccessWriteData,
			},
			wantFlush: false,
		},
		{
			name:      "unrelated event id",
			setup:     pending(`C:\data\a.txt`, 1),
			event:     models.SecurityEvent{EventID: 4656, Details: true, ObjectName: `C:\data\a.txt`},
			wantFlush: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := newFakeFS()
			e := newTestEngine(t, fs, nil)
			if tt.setup != nil {
				tt.setup(e, fs)
			}

			e.applyAudit(tt.event)

			r, ok := e.flush[`c:\data\a.txt`]
			if ok != tt.wantFlush {
				t.Fatalf("flushed = %v, want %v", ok, tt.wantFlush)
			}
			if ok && r.Author != tt.wantAuthor {
				t.Errorf("author = %q, want %q", r.Author, tt.wantAuthor)
			}
			if ok {
				if _, still := e.pending[`c:\data\a.txt`]; still {
					t.Error("record in both pending and flush")
				}
			}
		})
	}
}

func TestSweepFlushesStaleRecordsUnattributed(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	fs.put(`C:\data\a.txt`, 10)
	clock := newFakeClock()
	e := newTestEngine(t, fs, clock)
	e.index.Set(10, `C:\data\a.txt`)

	e.applySignal(update(`C:\data\a.txt`))

	clock.Advance(4 * time.Minute)
	e.applySignal(update(`C:\data\b.txt`))
	e.sweep()
	if len(e.flush) != 0 {
		t.Fatalf("flushed before timeout: %d", len(e.flush))
	}

	clock.Advance(time.Minute + time.Second)
	e.sweep()

	r, ok := e.flush[`c:\data\a.txt`]
	if !ok {
		t.Fatal("stale record not flushed")
	}
	if r.Author != "" {
		t.Errorf("author = %q, want unattributed", r.Author)
	}
	if _, ok := e.pending[`c:\data\b.txt`]; !ok {
		t.Error("fresh record flushed early")
	}
}

func TestSweepExpiresIgnoreEntries(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	e := newTestEngine(t, newFakeFS(), clock)
	e.ignore[`c:\data\old.txt`] = ignoreEntry{at: clock.Now(), identity: 5}

	clock.Advance(e.cfg.Timeout + time.Second)
	e.sweep()

	if len(e.ignore) != 0 {
		t.Errorf("ignore set = %v, want empty", e.ignore)
	}
}

func TestPruneOnDelete(t *testing.T) {
	t.Parallel()

	fs := newFakeFS()
	e := newTestEngine(t, fs, nil, func(c *Config) { c.PruneOnDelete = true })
	e.index.Set(50, `C:\data\doomed.txt`)

	e.applySignal(remove(`C:\data\doomed.txt`))
	e.applyAudit(access(`C:\data\doomed.txt`, models.AccessDelete, "bob"))
	e.deliver(context.Background())

	if _, ok := e.index.Lookup(50); ok {
		t.Error("identity of deleted file still indexed")
	}
}

func TestDeletedIdentityKeptByDefault(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, newFakeFS(), nil)
	e.index.Set(50, `C:\data\doomed.txt`)

	e.applySignal(remove(`C:\data\doomed.txt`))
	e.applyAudit(access(`C:\data\doomed.txt`, models.AccessDelete, "bob"))
	e.deliver(context.Background())

	if _, ok := e.index.Lookup(50); !ok {
		t.Error("identity pruned without PruneOnDelete")
	}
}
