// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/fswho/internal/logging"
)

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "fswhoctl",
		Short:         "Inspect fswho inputs and its change trail",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				logging.SetLevel("debug")
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newScanCmd(), newDecodeCmd(), newChangesCmd())
	return root
}
