// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

/*
Package correlator attributes filesystem changes to the account that made them.

Two independent, lossy streams feed the Engine: raw change signals from a
filesystem watcher ("update" or "remove" on a path) and Security audit events
(object access 4663 and delete-intent 4659) carrying the acting account. The
Engine joins them on the case-folded path and on file identity (inode).

# State

Four structures are owned by the goroutine running Engine.Run and are never
touched from anywhere else:

  - the inode Index, identity -> last observed path, seeded at startup
  - pending, path -> record still waiting for an audit event
  - flush, path -> record attributed (or timed out) and queued for delivery
  - ignore, consume-once set of rename source paths

Callers hand work to the owner through HandleSignal, HandleAudit and Seed,
which append to an unbounded inbox and never block.

# Record lifecycle

A raw signal creates or refreshes a pending record. The record's identity is
looked up in the Index: an unknown identity on an update is a create, the
same identity under a different path is a rename (history and author of the
source record carry over and the source path is put in the ignore set), and
the same path keeps the raw action. Sticky flags (models.Flags) remember
that a file was created even if later writes report updates.

An audit event moves a record from pending to flush and sets its author:

  - 4663 with WriteData (0x2): only if a record exists
  - 4663 with DELETE (0x10000): always
  - 4663 with any other right: only fills a missing author
  - 4659: always

An audit event for a rename source path consumes its ignore entry instead.
A record at that path is discarded only when it is the late duplicate for
the moved file (no identity and a remove, or the moved identity); a new file
that took the path stays pending.

# Timers

Every successful flush re-arms a short debounce timer (1ms by default).
When it fires the flush table is swapped for an empty one and every record
is handed to each subscriber in registration order. A subscriber that
returns an error or panics is logged and skipped.

A sweeper ticks independently (30s by default) and flushes, without an
author, any pending record older than the timeout (5m by default), except a
stale late duplicate at a rename source path, which is discarded. It also
expires ignore entries that were never consumed.

# Listener

Listener wires an Engine to its collaborators: a Watcher, an optional
AuditSource and an optional Enumerator used once to seed the Index. Its
Serve method runs all of them under one errgroup and is suitable for use as
a suture service.
*/
package correlator
