// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package metrics holds the Prometheus instruments for ingestion, storage,
// delivery and the ops API. Everything registers on the default registry
// through promauto and is served at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog ingestion
	PollTicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onsale_poll_ticks_total",
			Help: "Poll ticks per region by result (success, transient, config, rate_limited)",
		},
		[]string{"region", "result"},
	)

	PollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onsale_poll_duration_seconds",
			Help:    "Wall time of a complete poll tick",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"region"},
	)

	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onsale_catalog_requests_total",
			Help: "Catalog API page requests by HTTP status class",
		},
		[]string{"status"},
	)

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onsale_events_ingested_total",
			Help: "Upsert results per region (inserted, updated, unchanged)",
		},
		[]string{"region", "result"},
	)

	MalformedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onsale_malformed_records_total",
			Help: "Catalog records skipped because they could not be normalized",
		},
		[]string{"region"},
	)

	// Delivery
	DeliveryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onsale_delivery_outcomes_total",
			Help: "Delivery outcomes per pairing (confirmed, retryable, terminal, deferred)",
		},
		[]string{"pairing", "outcome"},
	)

	DeliveryExhausted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "onsale_delivery_exhausted_total",
			Help: "Events that reached the delivery attempt cap without confirmation",
		},
	)

	DispatchTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onsale_dispatch_tick_duration_seconds",
			Help:    "Wall time of a dispatch tick",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pairing"},
	)

	DispatchCandidates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "onsale_dispatch_candidates",
			Help: "Candidates selected on the most recent tick",
		},
		[]string{"pairing"},
	)

	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onsale_escalations_total",
			Help: "Failures escalated to process-level alerting",
		},
		[]string{"source", "kind"},
	)

	LinkChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onsale_link_checks_total",
			Help: "Supplementary link detection results (found, none, error)",
		},
		[]string{"result"},
	)

	Reminders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onsale_reminders_total",
			Help: "Reminder sends by result (sent, retryable, deferred, terminal, unrouted)",
		},
		[]string{"result"},
	)

	// Storage
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onsale_store_query_duration_seconds",
			Help:    "Event store operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"engine", "operation"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onsale_store_query_errors_total",
			Help: "Event store operation failures",
		},
		[]string{"engine", "operation"},
	)

	// Circuit breakers
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through a circuit breaker by result (success, failure, rejected)",
		},
		[]string{"name", "result"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Ops API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "onsale_api_requests_total",
			Help: "Ops API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "onsale_api_request_duration_seconds",
			Help:    "Ops API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordStoreQuery observes one store call.
func RecordStoreQuery(engine, operation string, start time.Time, err error) {
	StoreQueryDuration.WithLabelValues(engine, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(engine, operation).Inc()
	}
}

// RecordPollTick observes a finished poll tick.
func RecordPollTick(region, result string, duration time.Duration) {
	PollTicks.WithLabelValues(region, result).Inc()
	PollDuration.WithLabelValues(region).Observe(duration.Seconds())
}

// RecordCatalogStatus buckets an HTTP status into 2xx/4xx/5xx, or "error"
// when the request never produced a response.
func RecordCatalogStatus(status int) {
	CatalogRequests.WithLabelValues(statusClass(status)).Inc()
}

// RecordDeliveryOutcome counts one delivery result.
func RecordDeliveryOutcome(pairing, outcome string) {
	DeliveryOutcomes.WithLabelValues(pairing, outcome).Inc()
}

// RecordDispatchTick observes a finished dispatch tick.
func RecordDispatchTick(pairing string, candidates int, duration time.Duration) {
	DispatchCandidates.WithLabelValues(pairing).Set(float64(candidates))
	DispatchTickDuration.WithLabelValues(pairing).Observe(duration.Seconds())
}

// RecordAPIRequest observes one ops API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func statusClass(status int) string {
	switch {
	case status <= 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
