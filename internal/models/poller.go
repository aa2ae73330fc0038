// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package models

import "time"

// PollerStatus values stored in poller_state.status.
const (
	PollerRunning = "running"
	PollerError   = "error"
)

// PollerState is the per-region status row. LastSuccessAt doubles as the
// "new since last successful poll" watermark.
type PollerState struct {
	Region         string     `json:"region"`
	Status         string     `json:"status"`
	LastRequestAt  *time.Time `json:"last_request_at,omitempty"`
	LastSuccessAt  *time.Time `json:"last_success_at,omitempty"`
	EventsReturned int        `json:"events_returned"`
	NewEvents      int        `json:"new_events"`
	ErrorMessage   string     `json:"error_message,omitempty"`
}
