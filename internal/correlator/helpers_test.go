// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package correlator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/models"
)

const testRoot = `C:\data`

// fakeFS answers identity reads from a mutable path -> identity table.
type fakeFS struct {
	mu    sync.Mutex
	ids   map[string]models.Identity
	reads int
}

func newFakeFS() *fakeFS {
	return &fakeFS{ids: make(map[string]models.Identity)}
}

func (f *fakeFS) put(path string, id models.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[path] = id
}

func (f *fakeFS) del(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, path)
}

func (f *fakeFS) rename(from, to string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[to] = f.ids[from]
	delete(f.ids, from)
}

func (f *fakeFS) read(path string) (models.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	id, ok := f.ids[path]
	if !ok {
		return 0, errors.New("file not found")
	}
	return id, nil
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type delivery struct {
	batch string
	path  string
	rec   models.ChangeRecord
}

// recorder is a Subscriber that remembers every delivery.
type recorder struct {
	mu   sync.Mutex
	got  []delivery
	seen chan struct{}
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan struct{}, 1024)}
}

func (r *recorder) Deliver(ctx context.Context, path string, rec models.ChangeRecord) error {
	r.mu.Lock()
	r.got = append(r.got, delivery{batch: logging.CorrelationIDFromContext(ctx), path: path, rec: rec})
	r.mu.Unlock()
	r.seen <- struct{}{}
	return nil
}

func (r *recorder) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]delivery, len(r.got))
	copy(out, r.got)
	return out
}

// wait blocks until n deliveries were seen or the timeout passes.
func (r *recorder) wait(t *testing.T, n int, timeout time.Duration) []delivery {
	t.Helper()
	deadline := time.After(timeout)
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-deadline:
			t.Fatalf("timed out after %d of %d deliveries", i, n)
		}
	}
	return r.deliveries()
}

// newTestEngine builds an engine over a fake filesystem and clock. Logging
// is discarded.
func newTestEngine(t *testing.T, fs *fakeFS, clock *fakeClock, mutate ...func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Root = testRoot
	cfg.AnomalyLogRate = 0
	for _, m := range mutate {
		m(&cfg)
	}

	opts := []Option{
		WithIdentityReader(fs.read),
		WithLogger(logging.NewTestLogger(io.Discard)),
	}
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}

	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func update(path string) models.FileSignal {
	return models.FileSignal{Kind: models.ActionUpdate, Path: path}
}

func remove(path string) models.FileSignal {
	return models.FileSignal{Kind: models.ActionRemove, Path: path}
}

func access(path string, mask models.AccessMask, user string) models.SecurityEvent {
	return models.SecurityEvent{
		EventID:           models.EventObjectAccess,
		Details:           true,
		ObjectName:        path,
		AccessMask:        mask,
		SubjectDomainName: "DOM",
		SubjectUserName:   user,
	}
}
