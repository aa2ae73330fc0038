// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package reminder posts a countdown message ahead of an event's sale.
//
// An operator schedules a reminder with Schedule, which stores reminder_at
// Lead before the earliest upcoming presale, or before the general sale
// when there is none. The Worker sends every reminder due within its
// lookahead to the channel of the first pairing whose criteria cover the
// event, then either moves reminder_at to a follow-up FollowUp before the
// general sale or clears it.
//
// The store update is conditional on the reminder_at value the worker
// read, so a reminder rescheduled while its send was in flight is kept.
package reminder
