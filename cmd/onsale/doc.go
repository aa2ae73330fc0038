// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

/*
Command onsale polls the Ticketmaster Discovery API for newly announced
on-sales, stores them once per event id and posts each one to Discord exactly
once.

Usage:

	onsale run                       # supervised pollers, dispatch, reminders, link checks and ops API
	onsale poll --region east --once # one ingestion tick per region, then exit
	onsale dispatch --once           # one delivery tick per pairing, then exit
	onsale reminders --once          # send the reminders that are due, then exit
	onsale linkcheck --once          # one supplementary link pass
	onsale migrate                   # apply the event store schema
	onsale regions                   # list registered regions
	onsale events --status suppressed
	onsale events --upcoming [--notable]
	onsale remind G5vYZ9fX1a2b3 [--lead 6h] [--clear]
	onsale artists list --notable
	onsale artists notable K8vZ917Gku7 [--off]
	onsale token alice               # mint an ops API bearer token

Configuration comes from defaults, an optional YAML file (--config or
CONFIG_PATH) and environment variables, in increasing priority. The most
common variables:

	TICKETMASTER_API_KEY    Discovery API key
	DISCORD_BOT_TOKEN       bot token used for channel posts
	DISCORD_CHANNEL_ID      channel for notable artists
	DISCORD_CHANNEL_ID_TWO  channel for everything else
	EUROPEAN_CHANNEL        notable artists in European regions
	EUROPEAN_CHANNEL_TWO    everything else in European regions
	DATABASE_DRIVER         postgres or duckdb
	DATABASE_URL            postgres connection string
	DUCKDB_PATH             duckdb file when DATABASE_DRIVER=duckdb
	API_JWT_SECRET          enables mutating ops API routes

In --once mode the exit status is non-zero when any tick failed or any
failure was escalated.
*/
package main
