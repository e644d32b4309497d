// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package auditlog

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/metrics"
	"github.com/tomtom215/fswho/internal/models"
)

// FileConfig configures a FileSource.
type FileConfig struct {
	// Path is the NDJSON export being appended to by the log shipper.
	Path string

	// FromStart replays the existing content instead of starting at the end.
	FromStart bool

	// PollInterval rechecks the file when no notification arrives. Zero means
	// one second.
	PollInterval time.Duration

	Filter Filter
}

// FileSource follows a growing NDJSON export of Security events, like tail -F.
// A truncated file is read again from the start; a replaced file (rotation)
// is reopened.
type FileSource struct {
	cfg    FileConfig
	logger zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once

	// Owned by Run.
	f       *os.File
	r       *bufio.Reader
	offset  int64
	partial []byte
	stats   Stats
}

// NewFileSource returns a source for cfg. The file need not exist yet.
func NewFileSource(cfg FileConfig) *FileSource {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &FileSource{
		cfg:    cfg,
		logger: logging.WithComponent("auditlog").With().Str("path", cfg.Path).Logger(),
		done:   make(chan struct{}),
	}
}

// Run follows the file until ctx is cancelled or Close is called.
func (s *FileSource) Run(ctx context.Context, emit func(models.SecurityEvent)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create audit file watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so rotation and late creation are seen.
	if err := w.Add(filepath.Dir(s.cfg.Path)); err != nil {
		return fmt.Errorf("watch audit directory: %w", err)
	}
	defer s.closeFile()

	if err := s.open(!s.cfg.FromStart); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	s.logger.Info().Bool("from_start", s.cfg.FromStart).Msg("following audit export")

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.readAvailable(emit)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.cfg.Path) {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				s.reopen()
			}
			s.readAvailable(emit)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(err).Msg("audit file watch error")
		case <-ticker.C:
			s.checkRotation()
			s.readAvailable(emit)
		}
	}
}

// Close stops Run. It is idempotent.
func (s *FileSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Stats returns the counters accumulated so far. It must not be called
// concurrently with Run.
func (s *FileSource) Stats() Stats {
	return s.stats
}

func (s *FileSource) open(atEnd bool) error {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("open audit export: %w", err)
	}
	var off int64
	if atEnd {
		if off, err = f.Seek(0, io.SeekEnd); err != nil {
			_ = f.Close()
			return fmt.Errorf("seek audit export: %w", err)
		}
	}
	s.f = f
	s.r = bufio.NewReaderSize(f, 64*1024)
	s.offset = off
	s.partial = s.partial[:0]
	return nil
}

func (s *FileSource) closeFile() {
	if s.f != nil {
		_ = s.f.Close()
		s.f = nil
		s.r = nil
	}
}

// reopen switches to whatever file now lives at Path, reading it from the
// start. A missing file is picked up again on its Create.
func (s *FileSource) reopen() {
	s.closeFile()
	if err := s.open(false); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn().Err(err).Msg("cannot reopen audit export")
	}
}

// checkRotation detects replacement and truncation that produced no event.
func (s *FileSource) checkRotation() {
	if s.f == nil {
		s.reopen()
		return
	}
	cur, err := s.f.Stat()
	if err != nil {
		s.reopen()
		return
	}
	onDisk, err := os.Stat(s.cfg.Path)
	if err != nil {
		return
	}
	if !os.SameFile(cur, onDisk) {
		s.logger.Info().Msg("audit export rotated")
		s.reopen()
	}
}

func (s *FileSource) readAvailable(emit func(models.SecurityEvent)) {
	if s.f == nil {
		return
	}
	if info, err := s.f.Stat(); err == nil && info.Size() < s.offset {
		s.logger.Info().Int64("size", info.Size()).Int64("offset", s.offset).Msg("audit export truncated")
		if _, err := s.f.Seek(0, io.SeekStart); err == nil {
			s.r.Reset(s.f)
			s.offset = 0
			s.partial = s.partial[:0]
		}
	}

	for {
		chunk, err := s.r.ReadBytes('\n')
		s.offset += int64(len(chunk))
		if len(chunk) > 0 {
			s.partial = append(s.partial, chunk...)
		}
		if err != nil {
			// Incomplete trailing line; wait for the rest.
			if len(s.partial) > maxLine {
				s.stats.Malformed++
				metrics.AuditDecodeErrors.WithLabelValues("file").Inc()
				s.partial = s.partial[:0]
			}
			return
		}

		line := bytes.TrimSpace(s.partial)
		s.stats.Lines++
		s.stats.handle(line, s.cfg.Filter, emit, func(err error) {
			metrics.AuditDecodeErrors.WithLabelValues("file").Inc()
			s.logger.Debug().Err(err).Int("line", s.stats.Lines).Msg("skipping malformed audit line")
		})
		s.partial = s.partial[:0]
	}
}
