// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

// Package audit keeps a queryable trail of attributed filesystem changes.
//
// Every change the correlator delivers becomes one Event:
//
//	file.created   a new file appeared
//	file.updated   an existing file was written
//	file.deleted   a file was removed
//	file.renamed   a file was moved; metadata.renamed_from holds the source
//
// The actor is the account that made the change. A change whose author never
// appeared in the Security log is recorded with the "unattributed" actor and
// warning severity.
//
// # Architecture
//
//	Recorder.Deliver() -> Logger.Log() -> Event Buffer (chan) -> Async Writer -> Store
//
// Delivery runs on the correlator's goroutine, so Log never blocks: when the
// buffer is full the event is dropped and counted.
//
// # Stores
//
//   - MemoryStore: bounded, in-process; for development and tests
//   - BadgerStore: durable, with per-entry TTL retention
//
// # Export
//
// JSONExporter and CEFExporter render query results for download and for
// SIEM ingestion respectively.
package audit
