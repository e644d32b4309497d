// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/fswho/internal/auditlog"
	"github.com/tomtom215/fswho/internal/models"
)

type decodedEvent struct {
	EventID    int    `json:"event_id"`
	Object     string `json:"object"`
	Account    string `json:"account,omitempty"`
	AccessMask string `json:"access_mask"`
	Write      bool   `json:"write"`
	Delete     bool   `json:"delete"`
}

func newDecodeCmd() *cobra.Command {
	var (
		eventIDs []int
		all      bool
		quiet    bool
	)

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a Security event export",
		Long: `Read newline-delimited Security events the way the file audit source
does and print what the correlator would see. With no file, or "-", events
are read from standard input.

Examples:
  fswhoctl decode security.jsonl
  fswhoctl decode --all --quiet < security.jsonl`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			filter := auditlog.DefaultFilter()
			switch {
			case all:
				filter = auditlog.Filter{}
			case len(eventIDs) > 0:
				filter = auditlog.NewFilter(eventIDs...)
			}

			out := cmd.OutOrStdout()
			errOut := cmd.ErrOrStderr()
			enc := json.NewEncoder(out)
			var writeErr error

			st, err := auditlog.Scan(r, filter, func(ev models.SecurityEvent) {
				if quiet || writeErr != nil {
					return
				}
				writeErr = enc.Encode(decodedEvent{
					EventID:    ev.EventID,
					Object:     ev.ObjectName,
					Account:    ev.Account(),
					AccessMask: ev.AccessMask.String(),
					Write:      ev.AccessMask&models.AccessWriteData != 0,
					Delete:     ev.AccessMask&models.AccessDelete != 0,
				})
			}, func(line int, err error) {
				fmt.Fprintf(errOut, "line %d: %v\n", line, err)
			})
			if err != nil {
				return err
			}
			if writeErr != nil {
				return writeErr
			}

			fmt.Fprintf(errOut, "%d lines: %d events, %d filtered, %d without details, %d malformed\n",
				st.Lines, st.Events, st.Filtered, st.NoDetails, st.Malformed)
			return nil
		},
	}

	cmd.Flags().IntSliceVar(&eventIDs, "event-id", nil, "event ids to admit (default 4663,4659)")
	cmd.Flags().BoolVar(&all, "all", false, "admit every event id")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the summary")
	return cmd
}
