// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

/*
Package websocket streams delivered changes to browser and CLI clients.

The Hub is a correlator subscriber: every delivered change becomes a
"change" message broadcast to all connected clients. A Relay feeds a Hub
from the message bus instead, so an instance that does not watch the
filesystem itself can still serve the live stream.

	┌──────────┐      ┌──────────┐
	│  Engine  │ ───▶ │   Hub    │ ◀─── Relay (bus)
	└──────────┘      └────┬─────┘
	                       │
	          ┌────────────┼────────────┐
	          │            │            │
	       Client1      Client2      Client3

Each client has two goroutines:
  - readPump: reads from the connection and answers "ping" messages
  - writePump: writes queued messages and sends protocol pings

Message types:

  - change: one delivered change (publish.ChangeMessage)
  - ping / pong: application level keepalive

Slow clients whose send buffer fills are disconnected rather than
allowed to stall the broadcast.
*/
package websocket
