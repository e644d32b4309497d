// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

// Package fswatch turns fsnotify events for a directory tree into the raw
// change signals the correlator consumes.
//
// fsnotify watches single directories, so the tree is walked at startup and
// every directory created later is added as it appears. Entries inside a new
// directory may have been written before its watch was in place; they are
// reported as updates when the directory is added.
//
// Event mapping:
//
//	Create, Write, Chmod -> update
//	Remove, Rename       -> remove (the new name arrives as a Create)
package fswatch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/metrics"
	"github.com/tomtom215/fswho/internal/models"
)

// ErrNotDirectory is returned by New when the root is not a directory.
var ErrNotDirectory = errors.New("watch root is not a directory")

// Config configures a Watcher.
type Config struct {
	Root   string
	Ignore []string
}

// Watcher is a recursive fsnotify watcher. It implements the correlator's
// Watcher interface.
type Watcher struct {
	root    string
	ignore  *Matcher
	fsw     *fsnotify.Watcher
	logger  zerolog.Logger
	done    chan struct{}
	closeMu sync.Once
}

// New validates the root and creates the underlying fsnotify watcher.
// Watches are added when Run starts.
func New(cfg Config) (*Watcher, error) {
	info, err := os.Stat(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", cfg.Root, ErrNotDirectory)
	}

	ignore, err := NewMatcher(cfg.Root, cfg.Ignore)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &Watcher{
		root:   filepath.Clean(cfg.Root),
		ignore: ignore,
		fsw:    fsw,
		logger: logging.WithComponent("fswatch"),
		done:   make(chan struct{}),
	}, nil
}

// Ignored reports whether path matches an ignore pattern.
func (w *Watcher) Ignored(path string) bool {
	return w.ignore.Match(path)
}

// Run adds watches for the tree and forwards signals to emit until ctx is
// cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context, emit func(models.FileSignal)) error {
	n, err := w.addTree(w.root, nil)
	if err != nil {
		return err
	}
	w.logger.Info().Str("root", w.root).Int("directories", n).Msg("watching")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev, emit)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			metrics.WatchErrors.Inc()
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Error().Err(err).Msg("event queue overflowed; changes were lost")
				continue
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

// Close stops Run and releases the watches. It is idempotent.
func (w *Watcher) Close() error {
	var err error
	w.closeMu.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) handle(ev fsnotify.Event, emit func(models.FileSignal)) {
	if ev.Name == "" || w.ignore.Match(ev.Name) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// fsnotify drops watches of removed directories itself.
		emit(models.FileSignal{Kind: models.ActionRemove, Path: ev.Name})
	case ev.Has(fsnotify.Create):
		emit(models.FileSignal{Kind: models.ActionUpdate, Path: ev.Name})
		if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
			if _, err := w.addTree(ev.Name, emit); err != nil {
				w.logger.Warn().Err(err).Str("path", ev.Name).Msg("cannot watch new directory")
			}
		}
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		emit(models.FileSignal{Kind: models.ActionUpdate, Path: ev.Name})
	}
}

// addTree watches dir and every directory below it. When emit is non-nil,
// entries found below dir are reported as updates.
func (w *Watcher) addTree(dir string, emit func(models.FileSignal)) (int, error) {
	added := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
			return nil
		}
		if path != dir && w.ignore.Match(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if emit != nil && path != dir {
			emit(models.FileSignal{Kind: models.ActionUpdate, Path: path})
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsw.Add(path); err != nil {
			metrics.WatchErrors.Inc()
			w.logger.Warn().Err(err).Str("path", path).Msg("cannot add watch")
			return nil
		}
		added++
		return nil
	})
	if err != nil {
		return added, fmt.Errorf("watch %s: %w", dir, err)
	}
	return added, nil
}
