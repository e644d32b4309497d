// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/fswho/internal/api"
	"github.com/tomtom215/fswho/internal/models"
)

type changesOptions struct {
	server  string
	path    string
	author  string
	action  string
	batch   string
	since   time.Duration
	limit   int
	offset  int
	asJSON  bool
	timeout time.Duration
}

// changesEnvelope is models.APIResponse with a typed payload.
type changesEnvelope struct {
	Status string              `json:"status"`
	Data   api.ChangesResponse `json:"data"`
	Error  *models.APIError    `json:"error,omitempty"`
}

func newChangesCmd() *cobra.Command {
	opts := changesOptions{}

	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Query the change trail of a running daemon",
		Long: `List recorded changes, newest first, from the fswho HTTP API.

Examples:
  fswhoctl changes --author 'CORP\alice' --since 1h
  fswhoctl changes --path /srv/share/finance --action remove --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			resp, err := fetchChanges(ctx, http.DefaultClient, opts, time.Now())
			if err != nil {
				return err
			}
			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			return printChanges(cmd.OutOrStdout(), resp)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.server, "server", "http://127.0.0.1:8470", "fswho base URL")
	f.StringVar(&opts.path, "path", "", "only changes below this path")
	f.StringVar(&opts.author, "author", "", `only changes by this account (DOMAIN\user)`)
	f.StringVar(&opts.action, "action", "", "create, update, remove or rename")
	f.StringVar(&opts.batch, "batch", "", "only changes delivered in this batch")
	f.DurationVar(&opts.since, "since", 0, "only changes newer than this age")
	f.IntVar(&opts.limit, "limit", 50, "maximum number of changes")
	f.IntVar(&opts.offset, "offset", 0, "skip this many changes")
	f.BoolVar(&opts.asJSON, "json", false, "print the raw response")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func changesURL(opts changesOptions, now time.Time) (string, error) {
	base, err := url.Parse(strings.TrimRight(opts.server, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid --server: %w", err)
	}
	base.Path += "/api/v1/changes"

	q := url.Values{}
	set := func(key, val string) {
		if val != "" {
			q.Set(key, val)
		}
	}
	set("path", opts.path)
	set("author", opts.author)
	set("action", opts.action)
	set("batch", opts.batch)
	if opts.since > 0 {
		q.Set("since", now.Add(-opts.since).UTC().Format(time.RFC3339))
	}
	q.Set("limit", strconv.Itoa(opts.limit))
	if opts.offset > 0 {
		q.Set("offset", strconv.Itoa(opts.offset))
	}
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func fetchChanges(ctx context.Context, client *http.Client, opts changesOptions, now time.Time) (*api.ChangesResponse, error) {
	target, err := changesURL(opts, now)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", opts.server, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var env changesEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if env.Error != nil {
		return nil, fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.Status)
	}
	return &env.Data, nil
}

func printChanges(w io.Writer, resp *api.ChangesResponse) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tAUTHOR\tPATH")
	for i := range resp.Changes {
		ev := &resp.Changes[i]
		path := ev.Target.Path
		var meta struct {
			RenamedFrom string `json:"renamed_from"`
		}
		if len(ev.Metadata) > 0 && json.Unmarshal(ev.Metadata, &meta) == nil && meta.RenamedFrom != "" {
			path = meta.RenamedFrom + " -> " + path
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			ev.ObservedAt.Local().Format(time.DateTime), ev.Action, ev.Actor.ID, path)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	p := resp.Pagination
	if p.HasMore {
		_, err := fmt.Fprintf(w, "showing %d of %d; use --offset %d for more\n", len(resp.Changes), p.Total, p.Offset+len(resp.Changes))
		return err
	}
	return nil
}
