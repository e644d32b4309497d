// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

/*
Package middleware provides HTTP middleware shared by the API routes.

  - RequestID: reuses or generates an X-Request-ID and puts it, with a
    fresh correlation ID, into the logging context
  - PrometheusMetrics: counts requests and observes latency per route
    pattern, so /api/v1/changes/{id} is one series rather than one per ID

Both are func(http.Handler) http.Handler and plug directly into chi's Use.
*/
package middleware
