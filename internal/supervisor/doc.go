// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

/*
Package supervisor runs the fswho services under a suture v4 tree.

Services are grouped into three layers so that a failing layer restarts
without taking the others with it:

	RootSupervisor ("fswho")
	├── IngestSupervisor ("ingest-layer")
	│   └── correlation-listener (watcher, audit source, engine)
	├── DeliverySupervisor ("delivery-layer")
	│   ├── change-publisher (if publish.enabled)
	│   ├── audit-trail-cleanup (if audit_trail.enabled)
	│   ├── websocket-hub
	│   └── websocket-relay (if server.relay_subject is set)
	└── APISupervisor ("api-layer")
	    ├── http-server
	    └── config-watcher (if a config file was loaded)

Supervisor events (start, failure, backoff, restart) are logged through
sutureslog, which writes to the zerolog-backed slog handler from the
logging package.

A service that returns suture.ErrDoNotRestart is removed from its layer. The
correlation listener uses this once it has been stopped, because a stopped
engine cannot be run again.
*/
package supervisor
