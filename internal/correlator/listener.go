// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package correlator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/fswho/internal/models"
)

// Watcher delivers raw filesystem signals for a recursive root.
// Run blocks until ctx is cancelled, Close is called or the watch fails.
type Watcher interface {
	Run(ctx context.Context, emit func(models.FileSignal)) error
	Close() error
}

// AuditSource delivers Security audit events (4663 and 4659).
// Run blocks until ctx is cancelled, Close is called or the source fails.
type AuditSource interface {
	Run(ctx context.Context, emit func(models.SecurityEvent)) error
	Close() error
}

// Enumerator lists the root once at startup to seed the inode index.
// Per-entry failures are the enumerator's to log; an error return means the
// walk could not be performed at all.
type Enumerator interface {
	Enumerate(ctx context.Context, root string, fn func(models.DirEntry)) error
}

// Listener runs an Engine together with the collaborators that feed it.
type Listener struct {
	engine  *Engine
	watcher Watcher
	audit   AuditSource
	enum    Enumerator

	seeded atomic.Bool
	stop   sync.Once
}

// NewListener wires engine to its sources. audit and enum may be nil: without
// an audit source every change is eventually delivered unattributed.
func NewListener(engine *Engine, watcher Watcher, audit AuditSource, enum Enumerator) *Listener {
	return &Listener{
		engine:  engine,
		watcher: watcher,
		audit:   audit,
		enum:    enum,
	}
}

// Engine returns the wrapped engine.
func (l *Listener) Engine() *Engine {
	return l.engine
}

// OnChange registers a subscriber on the engine.
func (l *Listener) OnChange(s Subscriber) {
	l.engine.OnChange(s)
}

// Serve seeds the index (first call only) and then runs the engine, the
// watcher and the audit source until one of them fails or ctx ends.
// It returns ErrStopped after Stop.
func (l *Listener) Serve(ctx context.Context) error {
	if l.engine.isStopped() {
		return ErrStopped
	}

	if l.enum != nil && !l.seeded.Load() {
		if err := l.seed(ctx); err != nil {
			return err
		}
		l.seeded.Store(true)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.engine.Run(gctx)
	})
	g.Go(func() error {
		if err := l.watcher.Run(gctx, l.engine.HandleSignal); err != nil {
			return fmt.Errorf("filesystem watcher: %w", err)
		}
		return nil
	})
	if l.audit != nil {
		g.Go(func() error {
			if err := l.audit.Run(gctx, l.engine.HandleAudit); err != nil {
				return fmt.Errorf("audit source: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if l.engine.isStopped() {
		return ErrStopped
	}
	if err == nil || errors.Is(err, context.Canceled) {
		return ctx.Err()
	}
	return err
}

func (l *Listener) seed(ctx context.Context) error {
	start := time.Now()
	seeded := 0
	err := l.enum.Enumerate(ctx, l.engine.Root(), func(ent models.DirEntry) {
		if ent.Identity == 0 {
			return
		}
		l.engine.Seed(ent.Identity, ent.Path)
		seeded++
	})
	if err != nil {
		return fmt.Errorf("enumerate %s: %w", l.engine.Root(), err)
	}
	l.engine.logger.Info().
		Str("root", l.engine.Root()).
		Int("seeded", seeded).
		Dur("duration", time.Since(start)).
		Msg("inode index seeded")
	return nil
}

// Stop stops the engine and closes the watcher and audit source.
// Pending records are dropped. Stop is idempotent.
func (l *Listener) Stop() error {
	var err error
	l.stop.Do(func() {
		l.engine.Stop()
		var errs []error
		if cerr := l.watcher.Close(); cerr != nil {
			errs = append(errs, fmt.Errorf("close watcher: %w", cerr))
		}
		if l.audit != nil {
			if cerr := l.audit.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close audit source: %w", cerr))
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

// String implements fmt.Stringer for supervisor logs.
func (l *Listener) String() string {
	return "correlation-listener"
}
