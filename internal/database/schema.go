// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package database

// Engine names, also used as the "engine" metric label.
const (
	EnginePostgres = "postgres"
	EngineDuckDB   = "duckdb"
)

// postgresSchema is applied in order; every statement is idempotent.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS artists (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		notable    BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS venues (
		id      TEXT PRIMARY KEY,
		name    TEXT NOT NULL,
		city    TEXT NOT NULL,
		state   TEXT NOT NULL,
		country TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL,
		artist_id           TEXT,
		venue_id            TEXT NOT NULL,
		event_date          TIMESTAMPTZ,
		sale_start          TIMESTAMPTZ NOT NULL,
		url                 TEXT NOT NULL,
		image_url           TEXT,
		region              TEXT NOT NULL,
		supplementary_url   TEXT,
		link_checked_at     TIMESTAMPTZ,
		confirmed_sent      BOOLEAN NOT NULL DEFAULT FALSE,
		attempt_count       INTEGER NOT NULL DEFAULT 0,
		last_attempt_at     TIMESTAMPTZ,
		last_error          TEXT,
		next_attempt_at     TIMESTAMPTZ,
		delivery_status     TEXT NOT NULL DEFAULT 'pending',
		external_message_id TEXT,
		presales            TEXT,
		reminder_at         TIMESTAMPTZ,
		first_seen_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_delivery ON events (confirmed_sent, attempt_count)`,
	`CREATE INDEX IF NOT EXISTS idx_events_sale_start ON events (sale_start)`,
	`CREATE INDEX IF NOT EXISTS idx_events_status ON events (delivery_status)`,
	`ALTER TABLE events ADD COLUMN IF NOT EXISTS presales TEXT`,
	`ALTER TABLE events ADD COLUMN IF NOT EXISTS reminder_at TIMESTAMPTZ`,
	`CREATE INDEX IF NOT EXISTS idx_events_reminder ON events (reminder_at) WHERE reminder_at IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS poller_state (
		region          TEXT PRIMARY KEY,
		status          TEXT NOT NULL,
		last_request_at TIMESTAMPTZ,
		last_success_at TIMESTAMPTZ,
		events_returned INTEGER NOT NULL DEFAULT 0,
		new_events      INTEGER NOT NULL DEFAULT 0,
		error_message   TEXT
	)`,
}

// duckdbSchema mirrors postgresSchema. Timestamps are stored as UTC
// TIMESTAMP so no ICU extension is needed. There are no secondary indexes:
// DuckDB rewrites an UPDATE of an indexed column as delete+insert, and the
// delivery columns change on every attempt.
var duckdbSchema = []string{
	`CREATE TABLE IF NOT EXISTS artists (
		id         VARCHAR PRIMARY KEY,
		name       VARCHAR NOT NULL,
		notable    BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS venues (
		id      VARCHAR PRIMARY KEY,
		name    VARCHAR NOT NULL,
		city    VARCHAR NOT NULL,
		state   VARCHAR NOT NULL,
		country VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id                  VARCHAR PRIMARY KEY,
		name                VARCHAR NOT NULL,
		artist_id           VARCHAR,
		venue_id            VARCHAR NOT NULL,
		event_date          TIMESTAMP,
		sale_start          TIMESTAMP NOT NULL,
		url                 VARCHAR NOT NULL,
		image_url           VARCHAR,
		region              VARCHAR NOT NULL,
		supplementary_url   VARCHAR,
		link_checked_at     TIMESTAMP,
		confirmed_sent      BOOLEAN NOT NULL DEFAULT FALSE,
		attempt_count       INTEGER NOT NULL DEFAULT 0,
		last_attempt_at     TIMESTAMP,
		last_error          VARCHAR,
		next_attempt_at     TIMESTAMP,
		delivery_status     VARCHAR NOT NULL DEFAULT 'pending',
		external_message_id VARCHAR,
		presales            VARCHAR,
		reminder_at         TIMESTAMP,
		first_seen_at       TIMESTAMP NOT NULL DEFAULT current_timestamp,
		updated_at          TIMESTAMP NOT NULL DEFAULT current_timestamp
	)`,
	`ALTER TABLE events ADD COLUMN IF NOT EXISTS presales VARCHAR`,
	`ALTER TABLE events ADD COLUMN IF NOT EXISTS reminder_at TIMESTAMP`,
	`CREATE TABLE IF NOT EXISTS poller_state (
		region          VARCHAR PRIMARY KEY,
		status          VARCHAR NOT NULL,
		last_request_at TIMESTAMP,
		last_success_at TIMESTAMP,
		events_returned INTEGER NOT NULL DEFAULT 0,
		new_events      INTEGER NOT NULL DEFAULT 0,
		error_message   VARCHAR
	)`,
}
