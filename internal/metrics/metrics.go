// Umbra - Privacy-Preserving Analytics Event Ingestion
// Copyright 2026 A. Velier (avelier)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avelier/umbra

// Package metrics provides Prometheus instrumentation for the ingestion
// pipeline: identity subsystem cache efficiency, salt store activity,
// event throughput, NATS publishing, DuckDB query performance, and the
// HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Identity subsystem metrics
	IdentityComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_computations_total",
			Help: "Total identity computations by resolution path",
		},
		[]string{"path"}, // "session_cache", "salt_cache", "salt_store"
	)

	IdentityFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "identity_failures_total",
			Help: "Total identity computations that failed due to salt store errors",
		},
	)

	SaltsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "identity_salts_created_total",
			Help: "Total daily salts inserted into the salt store",
		},
	)

	HashDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "identity_hash_duration_seconds",
			Help:    "Duration of pseudonymous identity hash computation",
			Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01},
		},
	)

	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_ingested_total",
			Help: "Total events accepted by the ingestion endpoint",
		},
		[]string{"app_id"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_rejected_total",
			Help: "Total events rejected during validation or identity resolution",
		},
		[]string{"reason"}, // "validation", "identity", "decode"
	)

	EventWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_warnings_total",
			Help: "Total non-fatal enrichment warnings (malformed secondary fields, geoip misses)",
		},
		[]string{"field"},
	)

	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// NATS metrics
	NATSPublishes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_publishes_total",
			Help: "Total events published to NATS JetStream",
		},
	)

	NATSPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Total NATS publish failures (including circuit breaker rejections)",
		},
	)

	NATSConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_consumed_total",
			Help: "Total events consumed from NATS into the analytics store",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests by endpoint, method, and status",
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// GeoIP metrics
	GeoIPLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geoip_lookups_total",
			Help: "Total GeoIP lookups by provider and outcome",
		},
		[]string{"provider", "outcome"}, // outcome: "hit", "miss", "error", "cached"
	)
)

// RecordDBQuery records the duration of a database query.
func RecordDBQuery(operation, table string, start time.Time) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// RecordDBError records a database query error.
func RecordDBError(operation, table string) {
	DBQueryErrors.WithLabelValues(operation, table).Inc()
}

// RecordAPIRequest records an API request with its status code and duration.
func RecordAPIRequest(endpoint, method string, status int, start time.Time) {
	APIRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(endpoint, method).Observe(time.Since(start).Seconds())
}

// RecordNATSPublish records a successful NATS publish.
func RecordNATSPublish() {
	NATSPublishes.Inc()
}

// RecordNATSPublishError records a failed NATS publish.
func RecordNATSPublishError() {
	NATSPublishErrors.Inc()
}
