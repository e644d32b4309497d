// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

/*
Package services adapts fswho components to suture.Service.

Components that already expose Serve(ctx) error and String() (the websocket
hub and relay, the change publisher) are added to the tree directly. This
package covers the rest:

  - ListenerService runs the correlation listener and turns its terminal
    stop into suture.ErrDoNotRestart.
  - HTTPServerService turns ListenAndServe/Shutdown into Serve.
  - FuncService names a plain func(ctx) error, used for audit trail
    retention and the config file watcher.
*/
package services
