// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package correlator

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tomtom215/fswho/internal/models"
)

// Index maps a file identity to the path it was last observed at.
//
// By default nothing is ever evicted, so an identity stays resolvable for the
// life of the process. A positive size bounds the index with an LRU.
// Index is not safe for concurrent use; the Engine owns it.
type Index struct {
	entries entryStore
	byPath  map[string]models.Identity
}

type entryStore interface {
	get(id models.Identity) (string, bool)
	add(id models.Identity, path string)
	remove(id models.Identity)
	len() int
}

// NewIndex returns an unbounded index when maxEntries <= 0.
func NewIndex(maxEntries int) (*Index, error) {
	idx := &Index{byPath: make(map[string]models.Identity)}
	if maxEntries <= 0 {
		idx.entries = mapStore{}
		return idx, nil
	}

	c, err := lru.NewWithEvict[models.Identity, string](maxEntries, idx.evicted)
	if err != nil {
		return nil, fmt.Errorf("create inode index: %w", err)
	}
	idx.entries = lruStore{c: c}
	return idx, nil
}

// Lookup returns the last known path for id.
func (x *Index) Lookup(id models.Identity) (string, bool) {
	return x.entries.get(id)
}

// Set records that id now lives at path.
func (x *Index) Set(id models.Identity, path string) {
	if prev, ok := x.entries.get(id); ok {
		x.unlinkPath(models.PathKey(prev), id)
	}
	x.entries.add(id, path)
	x.byPath[models.PathKey(path)] = id
}

// PruneKey drops the identity whose last known path has the given key.
// It reports whether an entry was removed.
func (x *Index) PruneKey(key string) bool {
	id, ok := x.byPath[key]
	if !ok {
		return false
	}
	delete(x.byPath, key)
	if p, ok := x.entries.get(id); ok && models.PathKey(p) == key {
		x.entries.remove(id)
		return true
	}
	return false
}

// Len returns the number of tracked identities.
func (x *Index) Len() int {
	return x.entries.len()
}

func (x *Index) unlinkPath(key string, id models.Identity) {
	if cur, ok := x.byPath[key]; ok && cur == id {
		delete(x.byPath, key)
	}
}

func (x *Index) evicted(id models.Identity, path string) {
	x.unlinkPath(models.PathKey(path), id)
}

type mapStore map[models.Identity]string

func (m mapStore) get(id models.Identity) (string, bool) {
	p, ok := m[id]
	return p, ok
}

func (m mapStore) add(id models.Identity, path string) { m[id] = path }
func (m mapStore) remove(id models.Identity)           { delete(m, id) }
func (m mapStore) len() int                            { return len(m) }

type lruStore struct {
	c *lru.Cache[models.Identity, string]
}

func (s lruStore) get(id models.Identity) (string, bool) { return s.c.Get(id) }
func (s lruStore) add(id models.Identity, path string)   { s.c.Add(id, path) }
func (s lruStore) remove(id models.Identity)             { s.c.Remove(id) }
func (s lruStore) len() int                              { return s.c.Len() }
