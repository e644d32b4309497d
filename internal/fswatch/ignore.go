// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package fswatch

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher decides whether a path below the root is excluded from watching.
// Patterns use forward slashes and are matched case-insensitively against
// both the root-relative path and the base name, so "*.tmp" and
// "build/**" both work.
type Matcher struct {
	root     string
	patterns []glob.Glob
}

// NewMatcher compiles patterns. Blank lines and #-comments are skipped.
func NewMatcher(root string, patterns []string) (*Matcher, error) {
	m := &Matcher{root: filepath.Clean(root)}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		g, err := glob.Compile(strings.ToLower(filepath.ToSlash(p)), '/')
		if err != nil {
			return nil, fmt.Errorf("compile ignore pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Match reports whether path is ignored. A nil Matcher ignores nothing.
func (m *Matcher) Match(path string) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil {
		rel = path
	}
	rel = strings.ToLower(filepath.ToSlash(rel))
	base := strings.ToLower(filepath.Base(path))
	for _, g := range m.patterns {
		if g.Match(rel) || g.Match(base) {
			return true
		}
	}
	return false
}
