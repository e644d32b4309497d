// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package correlator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/fswho/internal/logging"
	"github.com/tomtom215/fswho/internal/metrics"
	"github.com/tomtom215/fswho/internal/models"
)

var (
	// ErrStopped is returned by Run after Stop has been called.
	ErrStopped = errors.New("correlator: engine stopped")

	// ErrRunning is returned when Run is called while another Run is active.
	ErrRunning = errors.New("correlator: engine already running")

	// ErrNotRunning is returned by Stats when no Run loop is serving requests.
	ErrNotRunning = errors.New("correlator: engine not running")
)

// Config tunes the Engine.
type Config struct {
	// Root is the watched directory. Audit events for paths outside it
	// (case-insensitive, on a path separator boundary) are ignored.
	Root string

	// Debounce is the quiet window before a flush batch is delivered.
	Debounce time.Duration

	// SweepInterval is the period of the unattributed-timeout sweeper.
	SweepInterval time.Duration

	// Timeout is how long a record may stay pending before it is delivered
	// without an author.
	Timeout time.Duration

	// IndexMaxEntries bounds the inode index with an LRU when > 0.
	IndexMaxEntries int

	// PruneOnDelete drops the identity of a path once a pure delete for it
	// has been delivered.
	PruneOnDelete bool

	// AnomalyLogRate caps anomaly warnings per second for each anomaly kind
	// (burst 10).
	// Zero disables the cap.
	AnomalyLogRate float64
}

// DefaultConfig returns the stock timings: 1ms debounce, 30s sweep, 5m timeout.
func DefaultConfig() Config {
	return Config{
		Debounce:       time.Millisecond,
		SweepInterval:  30 * time.Second,
		Timeout:        5 * time.Minute,
		AnomalyLogRate: 5,
	}
}

// Validate checks that the timings are usable.
func (c Config) Validate() error {
	if c.Root == "" {
		return errors.New("correlator: root is required")
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("correlator: debounce must be positive, got %s", c.Debounce)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("correlator: sweep interval must be positive, got %s", c.SweepInterval)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("correlator: timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// IdentityReader returns the identity of the file at path without following
// symlinks.
type IdentityReader func(path string) (models.Identity, error)

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now. Tests use it to age records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIdentityReader sets how identities are read for new records.
func WithIdentityReader(r IdentityReader) Option {
	return func(e *Engine) { e.identify = r }
}

// WithLogger replaces the component logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Stats is a snapshot of the engine tables.
type Stats struct {
	Pending     int `json:"pending"`
	Flush       int `json:"flush"`
	Ignore      int `json:"ignore"`
	Index       int `json:"index"`
	Inbox       int `json:"inbox"`
	Subscribers int `json:"subscribers"`
}

// Engine is the correlation engine. All table state is confined to the
// goroutine running Run; the exported methods only enqueue work for it.
type Engine struct {
	cfg      Config
	rootKey  string
	now      func() time.Time
	identify IdentityReader
	logger   zerolog.Logger

	inbox   *inbox
	running atomic.Bool
	stopped chan struct{}
	stop    sync.Once

	runMu   sync.Mutex
	runDone chan struct{}

	subMu sync.RWMutex
	subs  []Subscriber

	// Owned by the Run goroutine.
	index      *Index
	pending    map[string]*models.ChangeRecord
	flush      map[string]*models.ChangeRecord
	ignore     map[string]ignoreEntry
	debounce   *time.Timer
	anomaly    map[string]*rate.Limiter
	suppressed int
}

// ignoreEntry marks a rename source path. Only a record without an identity,
// or one still carrying the moved file's identity, is a duplicate of it.
type ignoreEntry struct {
	at       time.Time
	identity models.Identity
}

// New builds an Engine. It does not start processing until Run is called.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	index, err := NewIndex(cfg.IndexMaxEntries)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		rootKey: strings.TrimRight(models.PathKey(cfg.Root), `\/`),
		now:     time.Now,
		identify: func(string) (models.Identity, error) {
			return 0, errors.New("no identity reader configured")
		},
		logger:   logging.WithComponent("correlator"),
		inbox:    newInbox(),
		stopped:  make(chan struct{}),
		index:    index,
		pending:  make(map[string]*models.ChangeRecord),
		flush:    make(map[string]*models.ChangeRecord),
		ignore:   make(map[string]ignoreEntry),
		debounce: time.NewTimer(time.Hour),
		anomaly:  make(map[string]*rate.Limiter),
	}
	e.debounce.Stop()

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Root returns the watched root as configured.
func (e *Engine) Root() string {
	return e.cfg.Root
}

// HandleSignal enqueues a raw filesystem signal. It never blocks.
func (e *Engine) HandleSignal(sig models.FileSignal) {
	if e.isStopped() {
		return
	}
	e.inbox.push(func() { e.applySignal(sig) })
}

// HandleAudit enqueues a security audit event. It never blocks.
func (e *Engine) HandleAudit(ev models.SecurityEvent) {
	if e.isStopped() {
		return
	}
	e.inbox.push(func() { e.applyAudit(ev) })
}

// Seed records a known identity/path pair from the startup enumeration.
func (e *Engine) Seed(id models.Identity, path string) {
	if e.isStopped() || id == 0 {
		return
	}
	e.inbox.push(func() { e.index.Set(id, path) })
}

// Stats asks the owner goroutine for a snapshot of the tables.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	e.runMu.Lock()
	done := e.runDone
	e.runMu.Unlock()
	if done == nil {
		return Stats{}, ErrNotRunning
	}

	reply := make(chan Stats, 1)
	e.inbox.push(func() {
		reply <- Stats{
			Pending:     len(e.pending),
			Flush:       len(e.flush),
			Ignore:      len(e.ignore),
			Index:       e.index.Len(),
			Inbox:       e.inbox.len(),
			Subscribers: len(e.subscribers()),
		}
	})

	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-e.stopped:
		return Stats{}, ErrStopped
	case <-done:
		return Stats{}, ErrNotRunning
	}
}

// Run processes queued work and timer firings until ctx is cancelled or Stop
// is called. Table state survives a cancelled Run, so a supervisor may call
// Run again; after Stop it returns ErrStopped immediately.
func (e *Engine) Run(ctx context.Context) error {
	if e.isStopped() {
		return ErrStopped
	}
	done, err := e.beginRun()
	if err != nil {
		return err
	}
	defer e.endRun(done)

	sweep := time.NewTicker(e.cfg.SweepInterval)
	defer sweep.Stop()
	defer e.debounce.Stop()

	// A batch left over from a previous Run still has to go out.
	if len(e.flush) > 0 {
		e.debounce.Reset(e.cfg.Debounce)
	}

	e.logger.Info().
		Str("root", e.cfg.Root).
		Dur("debounce", e.cfg.Debounce).
		Dur("sweep_interval", e.cfg.SweepInterval).
		Dur("timeout", e.cfg.Timeout).
		Msg("correlation engine started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Int("pending", len(e.pending)).Int("flush", len(e.flush)).Msg("correlation engine stopped")
			return ctx.Err()
		case <-e.stopped:
			return ErrStopped
		case <-e.inbox.ready:
			for _, fn := range e.inbox.drain() {
				fn()
			}
		case <-e.debounce.C:
			e.deliver(ctx)
		case <-sweep.C:
			e.sweep()
		}
	}
}

// beginRun claims the run loop. The returned channel is closed when that
// Run returns.
func (e *Engine) beginRun() (chan struct{}, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.runDone != nil {
		return nil, ErrRunning
	}
	e.runDone = make(chan struct{})
	e.running.Store(true)
	return e.runDone, nil
}

func (e *Engine) endRun(done chan struct{}) {
	e.runMu.Lock()
	e.runDone = nil
	e.running.Store(false)
	e.runMu.Unlock()
	close(done)
}

// Stop shuts the engine down. Pending and queued records are dropped, the
// subscriber list is cleared and Run returns. Stop is idempotent.
func (e *Engine) Stop() {
	e.stop.Do(func() {
		close(e.stopped)
		e.subMu.Lock()
		e.subs = nil
		e.subMu.Unlock()
		e.logger.Info().Msg("correlation engine stop requested")
	})
}

func (e *Engine) isStopped() bool {
	select {
	case <-e.stopped:
		return true
	default:
		return false
	}
}

func (e *Engine) armDebounce() {
	e.debounce.Reset(e.cfg.Debounce)
}

func (e *Engine) reportSizes() {
	metrics.SetTableSizes(len(e.pending), len(e.flush), e.index.Len())
}

// warnAnomaly logs a correlation anomaly unless the log rate cap for its kind
// is exceeded. Suppressed warnings are summarized by the sweeper.
func (e *Engine) warnAnomaly(kind, path, msg string) {
	metrics.RecordAnomaly(kind)
	if e.cfg.AnomalyLogRate > 0 {
		lim, ok := e.anomaly[kind]
		if !ok {
			lim = rate.NewLimiter(rate.Limit(e.cfg.AnomalyLogRate), 10)
			e.anomaly[kind] = lim
		}
		if !lim.Allow() {
			e.suppressed++
			return
		}
	}
	e.logger.Warn().Str("anomaly", kind).Str("path", path).Msg(msg)
}
