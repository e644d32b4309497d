// fswho - Filesystem Change Attribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fswho

// Package metrics holds the Prometheus collectors exported on /metrics.
//
// Collectors are package-level and registered with the default registry
// through promauto; callers use the Record helpers rather than touching the
// vectors directly so label values stay consistent.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fswho"

var (
	// Correlation engine

	FSSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fs_signals_total",
			Help:      "Raw filesystem signals applied by the correlation engine",
		},
		[]string{"kind"},
	)

	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_total",
			Help:      "Security audit events seen by the correlation engine, by outcome",
		},
		[]string{"event_id", "outcome"}, // outcome: flushed, no_details, out_of_scope, no_record, ignored
	)

	Flushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Records moved to the flush table",
		},
		[]string{"source"}, // audit, timeout
	)

	IgnoreConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ignore_consumed_total",
			Help:      "Flush signals swallowed by the rename ignore set",
		},
	)

	Anomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Correlation anomalies (logged, non-fatal)",
		},
		[]string{"kind"}, // rename_after_delete, unknown_path
	)

	Timeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unattributed_timeouts_total",
			Help:      "Pending records force-flushed without an author by the sweeper",
		},
	)

	Batches = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_batch_size",
			Help:      "Number of changes delivered per debounce batch",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		},
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Changes delivered to subscribers",
		},
		[]string{"action", "attributed"},
	)

	SubscriberFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_failures_total",
			Help:      "Subscriber deliveries that returned an error or panicked",
		},
		[]string{"subscriber"},
	)

	PendingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_records",
			Help:      "Records waiting for audit attribution",
		},
	)

	FlushRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "flush_records",
			Help:      "Records queued for the next delivery batch",
		},
	)

	IndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inode_index_entries",
			Help:      "Identities tracked by the inode index",
		},
	)

	// Adapters

	ScanEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_entries_total",
			Help:      "Entries visited by the startup enumeration",
		},
		[]string{"result"}, // seeded, error
	)

	WatchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_errors_total",
			Help:      "Errors reported by the filesystem watcher",
		},
	)

	AuditDecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_decode_errors_total",
			Help:      "Audit log documents that could not be decoded",
		},
		[]string{"source"}, // file, bus
	)

	// Delivery sinks

	PublishResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Change messages published to the message bus",
		},
		[]string{"result"}, // ok, error, breaker_open
	)

	AuditTrailWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_trail_writes_total",
			Help:      "Audit trail events written, dropped or failed",
		},
		[]string{"result"}, // ok, dropped, error
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected live change stream clients",
		},
	)

	// HTTP API

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "HTTP API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "HTTP API request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordSignal counts one raw filesystem signal.
func RecordSignal(kind string) {
	FSSignals.WithLabelValues(kind).Inc()
}

// RecordAuditEvent counts one audit event with its outcome.
func RecordAuditEvent(eventID int, outcome string) {
	AuditEvents.WithLabelValues(strconv.Itoa(eventID), outcome).Inc()
}

// RecordFlush counts a record moving to the flush table.
func RecordFlush(source string) {
	Flushes.WithLabelValues(source).Inc()
}

// RecordAnomaly counts a logged correlation anomaly.
func RecordAnomaly(kind string) {
	Anomalies.WithLabelValues(kind).Inc()
}

// RecordDelivery counts one delivered change.
func RecordDelivery(action string, attributed bool) {
	Deliveries.WithLabelValues(action, strconv.FormatBool(attributed)).Inc()
}

// RecordBatch observes the size of one debounce batch.
func RecordBatch(size int) {
	Batches.Observe(float64(size))
}

// RecordSubscriberFailure counts a failed subscriber delivery.
func RecordSubscriberFailure(name string) {
	SubscriberFailures.WithLabelValues(name).Inc()
}

// SetTableSizes publishes the current engine table sizes.
func SetTableSizes(pending, flush, index int) {
	PendingRecords.Set(float64(pending))
	FlushRecords.Set(float64(flush))
	IndexEntries.Set(float64(index))
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	APIRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
