// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/fswho/internal/fswatch"
	"github.com/tomtom215/fswho/internal/models"
	"github.com/tomtom215/fswho/internal/scan"
)

type scanEntry struct {
	Path     string `json:"path"`
	Identity uint64 `json:"identity"`
	Dir      bool   `json:"dir,omitempty"`
}

func newScanCmd() *cobra.Command {
	var (
		ignore   []string
		asJSON   bool
		dirsOnly bool
	)

	cmd := &cobra.Command{
		Use:   "scan <root>",
		Short: "List the files and identities the daemon would seed",
		Long: `Enumerate root the way fswho seeds its inode index at startup.

Each line shows a file identity and path. Directories are listed without an
identity. --ignore takes the same glob patterns as watch.ignore.

Examples:
  fswhoctl scan /srv/share
  fswhoctl scan --ignore '*.tmp' --ignore 'cache/**' --json /srv/share`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			matcher, err := fswatch.NewMatcher(root, ignore)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			var writeErr error
			st, err := scan.New(scan.WithSkip(matcher.Match)).Enumerate(ctx, root, func(e models.DirEntry) {
				if writeErr != nil || (dirsOnly && !e.IsDir) {
					return
				}
				if asJSON {
					writeErr = enc.Encode(scanEntry{Path: e.Path, Identity: uint64(e.Identity), Dir: e.IsDir})
					return
				}
				if e.IsDir {
					_, writeErr = fmt.Fprintf(out, "%20s  %s\n", "-", e.Path)
					return
				}
				_, writeErr = fmt.Fprintf(out, "%20d  %s\n", uint64(e.Identity), e.Path)
			})
			if err != nil {
				return err
			}
			if writeErr != nil {
				return writeErr
			}
			if !asJSON {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d entries, %d directories, %d unreadable\n", st.Entries, st.Dirs, st.Errors)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&ignore, "ignore", nil, "glob pattern to skip (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "write one JSON object per entry")
	cmd.Flags().BoolVar(&dirsOnly, "dirs", false, "list directories only")
	return cmd
}
