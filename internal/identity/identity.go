// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

// Package identity reads the stable, rename-surviving identity of a file:
// the inode number on Unix and the NTFS file index on Windows.
package identity

import (
	"errors"
	"fmt"

	"github.com/tomtom215/fswho/internal/models"
)

// ErrNoIdentity is returned when the filesystem reports a zero identity,
// which some network and FAT volumes do for every file.
var ErrNoIdentity = errors.New("filesystem reports no file identity")

// Read returns the identity of the file at path without following a final
// symlink or reparse point.
func Read(path string) (models.Identity, error) {
	id, err := read(path)
	if err != nil {
		return 0, fmt.Errorf("read identity of %s: %w", path, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("read identity of %s: %w", path, ErrNoIdentity)
	}
	return id, nil
}
