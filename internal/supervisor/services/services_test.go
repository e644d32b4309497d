// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/fswho/internal/correlator"
)

// Interface checks.
var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*ListenerService)(nil)
	_ suture.Service = (*FuncService)(nil)
	_ fmt.Stringer   = (*ListenerService)(nil)
)

type mockHTTPServer struct {
	listenErr  error
	block      bool
	shutdowns  atomic.Int32
	listenings atomic.Int32
	stopCh     chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.listenings.Add(1)
	if m.listenErr != nil {
		return m.listenErr
	}
	if m.block {
		<-m.stopCh
		return http.ErrServerClosed
	}
	return nil
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	if m.shutdowns.Add(1) == 1 {
		close(m.stopCh)
	}
	return nil
}

func TestHTTPServerService(t *testing.T) {
	t.Parallel()

	t.Run("graceful shutdown on cancel", func(t *testing.T) {
		t.Parallel()
		srv := newMockHTTPServer()
		srv.block = true
		svc := NewHTTPServerService(srv, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		time.Sleep(20 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Serve = %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return")
		}
		if srv.shutdowns.Load() != 1 {
			t.Errorf("Shutdown called %d times", srv.shutdowns.Load())
		}
	})

	t.Run("listen failure is returned", func(t *testing.T) {
		t.Parallel()
		srv := newMockHTTPServer()
		srv.listenErr = errors.New("address already in use")
		svc := NewHTTPServerService(srv, 0)

		err := svc.Serve(context.Background())
		if !errors.Is(err, srv.listenErr) {
			t.Errorf("Serve = %v, want wrapped listen error", err)
		}
		if svc.shutdownTimeout != 10*time.Second {
			t.Errorf("default shutdownTimeout = %v", svc.shutdownTimeout)
		}
	})

	t.Run("name", func(t *testing.T) {
		t.Parallel()
		if got := NewHTTPServerService(newMockHTTPServer(), 0).String(); got != "http-server" {
			t.Errorf("String = %q", got)
		}
	})
}

type fakeListener struct {
	serves  atomic.Int32
	stopped atomic.Bool
	stopCh  chan struct{}
	fail    error
}

func newFakeListener() *fakeListener {
	return &fakeListener{stopCh: make(chan struct{})}
}

func (f *fakeListener) Serve(ctx context.Context) error {
	f.serves.Add(1)
	if f.stopped.Load() {
		return correlator.ErrStopped
	}
	if f.fail != nil {
		return f.fail
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopCh:
		return correlator.ErrStopped
	}
}

func (f *fakeListener) Stop() error {
	if f.stopped.CompareAndSwap(false, true) {
		close(f.stopCh)
	}
	return nil
}

func TestListenerServiceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fail    error
		stopped bool
		want    error
	}{
		{"source failure restarts", errors.New("audit source: gone"), false, nil},
		{"stopped is terminal", nil, true, suture.ErrDoNotRestart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := newFakeListener()
			l.fail = tt.fail
			if tt.stopped {
				_ = l.Stop()
			}
			err := NewListenerService(l).Serve(context.Background())

			want := tt.want
			if want == nil {
				want = tt.fail
			}
			if !errors.Is(err, want) {
				t.Errorf("Serve = %v, want %v", err, want)
			}
		})
	}
}

func TestListenerServiceNotRestartedAfterStop(t *testing.T) {
	t.Parallel()

	l := newFakeListener()
	svc := NewListenerService(l)
	sup := suture.New("test", suture.Spec{FailureBackoff: 10 * time.Millisecond})
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := sup.ServeBackground(ctx)

	deadline := time.Now().Add(time.Second)
	for l.serves.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if n := l.serves.Load(); n != 1 {
		t.Errorf("Serve called %d times, want 1", n)
	}
	cancel()
	<-errCh
}

func TestFuncService(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	svc := NewFuncService("audit-trail-cleanup", func(ctx context.Context) error {
		calls.Add(1)
		<-ctx.Done()
		return ctx.Err()
	})
	if svc.String() != "audit-trail-cleanup" {
		t.Errorf("String = %q", svc.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Serve = %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d", calls.Load())
	}
}
