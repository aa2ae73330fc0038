// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

/*
Package api serves the operator HTTP surface of the pipeline.

Routes:

	GET  /healthz                       liveness
	GET  /readyz                        store reachability
	GET  /metrics                       Prometheus exposition
	GET  /swagger/*                     Swagger UI over docs.SwaggerInfo
	GET  /api/v1/regions                configured regions
	GET  /api/v1/pollers                per-region poller status
	GET  /api/v1/events?status=&limit=  events by delivery status
	GET  /api/v1/events?upcoming=true   next sales to open (&notable=)
	GET  /api/v1/artists?notable=       artists, optionally notable only
	PUT  /api/v1/artists/{id}/notable   set notability (bearer token)
	PUT  /api/v1/events/{id}/reminder   schedule a reminder, ?lead= (bearer token)
	DEL  /api/v1/events/{id}/reminder   clear it (bearer token)

Every JSON response uses the APIResponse envelope:

	{"status":"success","data":...,"metadata":{"timestamp":"..."}}
	{"status":"error","error":{"code":"VALIDATION_ERROR","message":"..."},...}

The dead-letter view is GET /api/v1/events?status=suppressed (terminal
failures) and status=exhausted (attempt cap reached).

The docs subpackage holds the swag spec; regenerate it with swag init
after changing a route's annotations.
*/
package api
