// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

// Command fswho watches a directory tree and reports every file change with
// the account that made it.
//
// # Startup
//
//  1. Configuration: defaults, config.yaml, environment (koanf)
//  2. Logging: zerolog, level and format from configuration
//  3. Sources: filesystem watcher, Security audit source (file tail or
//     NATS), directory enumerator for seeding the inode index
//  4. Correlation engine and its listener
//  5. Subscribers: change log, audit trail, NATS publisher, live stream
//  6. HTTP API on server.host:server.port
//  7. Supervisor tree; SIGINT/SIGTERM stop it
//
// # Example
//
//	export WATCH_ROOT='D:\Shares\Finance'
//	export AUDIT_LOG_PATH='C:\ProgramData\fswho\security.jsonl'
//	export TRAIL_STORE=badger TRAIL_PATH='C:\ProgramData\fswho\trail'
//	fswho
//
// Without an audit source (AUDIT_SOURCE=none) changes are still reported,
// with an empty author, once the correlation timeout passes.
package main
