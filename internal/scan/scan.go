// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

// Package scan enumerates a directory tree once, yielding each entry with
// its file identity. It seeds the correlator's inode index at startup.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/tomtom215/fswho/internal/identity"
	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/metrics"
	"github.com/tomtom215/fswho/internal/models"
)

// Stats summarizes one enumeration.
type Stats struct {
	Entries int `json:"entries"`
	Dirs    int `json:"dirs"`
	Errors  int `json:"errors"`
}

// IdentityFunc reads a file identity. It is identity.Read outside tests.
type IdentityFunc func(path string) (models.Identity, error)

// Scanner walks trees. The zero value is not usable; use New.
type Scanner struct {
	identify IdentityFunc
	skip     func(path string) bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithIdentityFunc replaces the identity reader.
func WithIdentityFunc(fn IdentityFunc) Option {
	return func(s *Scanner) { s.identify = fn }
}

// WithSkip excludes paths for which skip returns true. A skipped directory is
// not descended into.
func WithSkip(skip func(path string) bool) Option {
	return func(s *Scanner) { s.skip = skip }
}

// New returns a Scanner.
func New(opts ...Option) *Scanner {
	s := &Scanner{identify: identity.Read}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enumerate calls fn for every entry below root, root excluded, in lexical
// order. Entries that cannot be read are logged and counted and the walk
// continues; an error is returned only if root itself is unreadable or ctx
// is cancelled.
func (s *Scanner) Enumerate(ctx context.Context, root string, fn func(models.DirEntry)) (Stats, error) {
	var st Stats
	log := logging.Ctx(ctx).With().Str("component", "scan").Str("root", root).Logger()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			if path == root {
				return err
			}
			st.Errors++
			metrics.ScanEntries.WithLabelValues("error").Inc()
			log.Warn().Err(err).Str("path", path).Msg("cannot read entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}
		if s.skip != nil && s.skip(path) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		id, ierr := s.identify(path)
		if ierr != nil {
			st.Errors++
			metrics.ScanEntries.WithLabelValues("error").Inc()
			log.Debug().Err(ierr).Str("path", path).Msg("no identity for entry")
		}
		if d.IsDir() {
			st.Dirs++
		}
		st.Entries++
		metrics.ScanEntries.WithLabelValues("ok").Inc()
		fn(models.DirEntry{Path: path, Identity: id, IsDir: d.IsDir()})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return st, err
		}
		return st, fmt.Errorf("walk %s: %w", root, err)
	}

	log.Debug().
		Int("entries", st.Entries).
		Int("dirs", st.Dirs).
		Int("errors", st.Errors).
		Msg("enumeration complete")
	return st, nil
}

// Enumerator adapts a Scanner to the correlator's seeding interface.
type Enumerator struct {
	*Scanner
}

// Enumerate discards the statistics.
func (e Enumerator) Enumerate(ctx context.Context, root string, fn func(models.DirEntry)) error {
	_, err := e.Scanner.Enumerate(ctx, root, fn)
	return err
}
