// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package models

import "time"

// OutcomeKind is the classified result of one delivery attempt.
type OutcomeKind int

const (
	// OutcomeConfirmed: the platform returned a message id.
	OutcomeConfirmed OutcomeKind = iota + 1
	// OutcomeRetryable: transport, 5xx, rate limit or authorization failure.
	OutcomeRetryable
	// OutcomeTerminal: the payload itself can never be delivered.
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Outcome is what the delivery engine hands to the store.
type Outcome struct {
	Kind       OutcomeKind
	ExternalID string
	Err        error
	// RetryAfter is the platform supplied backoff for rate limiting; zero
	// means the event is eligible again on the next tick.
	RetryAfter time.Duration
}

// Confirmed builds a confirmed outcome for the platform message id.
func Confirmed(externalID string) Outcome {
	return Outcome{Kind: OutcomeConfirmed, ExternalID: externalID}
}

// Retryable builds a retryable outcome.
func Retryable(err error, retryAfter time.Duration) Outcome {
	return Outcome{Kind: OutcomeRetryable, Err: err, RetryAfter: retryAfter}
}

// Terminal builds a terminal outcome.
func Terminal(err error) Outcome {
	return Outcome{Kind: OutcomeTerminal, Err: err}
}

// ErrorText is the value written to last_error.
func (o Outcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}
