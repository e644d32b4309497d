// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for BadgerDB storage. Events are keyed by delivery time so
// iteration order is chronological; the id index points back at that key.
const (
	eventKeyPrefix   = "event:"
	eventIDKeyPrefix = "event_id:"
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Empty means in-memory.
	Path string

	// Retention is the TTL applied to every saved event. Zero keeps events
	// until Delete removes them.
	Retention time.Duration

	SyncWrites bool
}

// BadgerStore implements Store using BadgerDB for durable storage.
type BadgerStore struct {
	db        *badger.DB
	retention time.Duration
	owned     bool
}

// OpenBadgerStore opens (or creates) the database at cfg.Path.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites

	// Reduce logging verbosity
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open audit BadgerDB: %w", err)
	}
	return &BadgerStore{db: db, retention: cfg.Retention, owned: true}, nil
}

// NewBadgerStore uses an already open database. Close does not close it.
func NewBadgerStore(db *badger.DB, retention time.Duration) *BadgerStore {
	return &BadgerStore{db: db, retention: retention}
}

// Close closes the database if the store opened it.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}

func eventKey(ts time.Time, id string) []byte {
	// Zero-padded so lexical order is time order.
	return []byte(eventKeyPrefix + fmt.Sprintf("%020d", ts.UnixNano()) + ":" + id)
}

// Save persists an audit event.
func (s *BadgerStore) Save(_ context.Context, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	key := eventKey(event.Timestamp, event.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, data)
		idx := badger.NewEntry([]byte(eventIDKeyPrefix+event.ID), key)
		if s.retention > 0 {
			e = e.WithTTL(s.retention)
			idx = idx.WithTTL(s.retention)
		}
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("set audit event: %w", err)
		}
		if err := txn.SetEntry(idx); err != nil {
			return fmt.Errorf("set audit event index: %w", err)
		}
		return nil
	})
}

// Get retrieves an event by ID.
func (s *BadgerStore) Get(_ context.Context, id string) (*Event, error) {
	var event Event

	err := s.db.View(func(txn *badger.Txn) error {
		idx, err := txn.Get([]byte(eventIDKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("get audit event index: %w", err)
		}
		key, err := idx.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("get audit event: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &event)
		})
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// scan visits events newest first until fn returns false.
func (s *BadgerStore) scan(fn func(*Event) bool) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(eventKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key of the prefix.
		for it.Seek([]byte(eventKeyPrefix + "~")); it.Valid(); it.Next() {
			var event Event
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &event)
			})
			if err != nil {
				continue
			}
			if !fn(&event) {
				return nil
			}
		}
		return nil
	})
}

// Query retrieves events matching the filter, newest first.
func (s *BadgerStore) Query(_ context.Context, filter QueryFilter) ([]Event, error) {
	var results []Event
	skipped := 0

	err := s.scan(func(event *Event) bool {
		if !filter.Matches(event) {
			return true
		}
		if skipped < filter.Offset {
			skipped++
			return true
		}
		results = append(results, *event)
		return filter.Limit <= 0 || len(results) < filter.Limit
	})
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return results, nil
}

// Count returns the number of events matching the filter.
func (s *BadgerStore) Count(_ context.Context, filter QueryFilter) (int64, error) {
	var count int64
	err := s.scan(func(event *Event) bool {
		if filter.Matches(event) {
			count++
		}
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}

// Delete removes events older than the given time. TTL expiry makes this a
// no-op when a retention is configured, but it also serves stores without one.
func (s *BadgerStore) Delete(_ context.Context, olderThan time.Time) (int64, error) {
	cutoff := string(eventKey(olderThan, ""))
	var (
		keys [][]byte
		ids  []string
	)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(eventKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if string(key) >= cutoff {
				break
			}
			keys = append(keys, key)
			ids = append(ids, idFromKey(key))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan audit events: %w", err)
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("delete audit event: %w", err)
		}
		if err := wb.Delete([]byte(eventIDKeyPrefix + ids[i])); err != nil {
			return 0, fmt.Errorf("delete audit event index: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush audit deletes: %w", err)
	}
	return int64(len(keys)), nil
}

// idFromKey returns the id part of an event key.
func idFromKey(key []byte) string {
	rest := key[len(eventKeyPrefix):]
	// 20 timestamp digits, then ':'.
	if len(rest) < 21 {
		return ""
	}
	if _, err := strconv.ParseInt(string(rest[:20]), 10, 64); err != nil {
		return ""
	}
	return string(rest[21:])
}
