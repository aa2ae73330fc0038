// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package catalog ingests newly announced on-sales from the Ticketmaster
// Discovery API.
//
// Each region gets one Poller. A tick asks for events whose on-sale date
// was announced since the region's last successful tick, pages through the
// result within the configured caps, normalizes every record into a
// models.Event and upserts it. Records that fail normalization are counted
// and skipped; any other failure aborts the tick and leaves the watermark in
// place so the next tick retries the same window.
//
// Regions with a rotation set (comedy, theatre and film share one arts
// region) cycle through their classification variants, one per tick.
//
// The HTTP client is rate limited with golang.org/x/time/rate and wrapped by
// CircuitBreakerClient so a catalog outage stops hammering the API.
package catalog
