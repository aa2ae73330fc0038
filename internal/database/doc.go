// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package database is the event store: artists, venues, events with their
// delivery bookkeeping, and per-region poller state.
//
// Two engines implement Store with identical semantics:
//
//   - Postgres (jackc/pgx pool) for shared deployments where several
//     processes poll and dispatch against one database.
//   - DuckDB (duckdb-go, database/sql) for single-process deployments and
//     tests, usually with Path ":memory:".
//
// The invariants both engines keep:
//
//   - Events are unique by catalog id. Re-ingesting an event updates its
//     catalog fields and never touches delivery state.
//   - A delivery attempt is recorded with an optimistic check on the
//     attempt counter and confirmed flag. A lost race records nothing.
//   - Confirmed events are never selected again.
//
// Every query records onsale_store_query_duration_seconds labelled by engine
// and operation.
package database
