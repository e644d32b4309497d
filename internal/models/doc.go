// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

/*
Package models defines the data shared between the watcher, the audit
sources, the correlation engine and its consumers.

Inputs:

  - FileSignal: a path-level notification from the filesystem watcher
  - SecurityEvent: an object-access record from the security audit channel
  - DirEntry: one entry of the startup enumeration

Output:

  - ChangeRecord: one pending or delivered change, with its accumulated
    action flags, author and rename source

Paths are compared through PathKey, which lowercases them; the original
spelling is kept for display. The API envelope types (APIResponse,
APIError, PaginationInfo) also live here so handlers and clients agree
on the wire shape.
*/
package models
