// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

//go:build !windows

package identity

import (
	"golang.org/x/sys/unix"

	"github.com/tomtom215/fswho/internal/models"
)

func read(path string) (models.Identity, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, err
	}
	return models.Identity(st.Ino), nil
}
