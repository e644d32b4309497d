// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

// Command fswhoctl inspects the inputs and output of fswho: it enumerates a
// tree the way the daemon seeds its inode index, decodes Security event
// exports the way the audit source reads them, and queries the change trail
// of a running daemon.
package main

import (
	"os"

	"github.com/tomtom215/fswho/internal/logging"
)

var version = "dev"

func main() {
	logging.Init(logging.Config{Level: "warn", Format: "console"})
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
