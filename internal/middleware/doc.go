// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

/*
Package middleware provides the infrastructure middleware mounted on the ops
HTTP server.

  - RequestID: X-Request-ID propagation and logging context
  - PrometheusMetrics: request count and latency labelled by route pattern

Both have the chi signature func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
