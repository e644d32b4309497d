// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

/*
Package api serves the HTTP surface of a running fswho instance using the chi
router.

Routes:

	GET /api/v1/health               engine table sizes and stream clients
	GET /api/v1/changes              query the change trail
	GET /api/v1/changes/export       download the trail as JSON or CEF
	GET /api/v1/changes/{id}         one trail entry
	GET /api/v1/ws                   live change stream (websocket)
	GET /metrics                     prometheus exposition

Query parameters for /changes and /changes/export:

	path    path prefix, case-insensitive
	author  account, e.g. CORP\alice, case-insensitive
	action  create | update | remove | rename
	batch   delivery batch ID
	search  substring of the description or path
	since   RFC3339 lower bound
	until   RFC3339 upper bound
	limit   1..1000 (list only, default 100)
	offset  0..1000000 (list only)

JSON responses use the models.APIResponse envelope. Every /api/v1 route is
rate limited per client IP with httprate, and CORS is applied globally so
preflight requests are answered.
*/
package api
