// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package faults defines the closed set of failure kinds shared by the
// catalog pollers and the delivery engine. Each kind has exactly one
// handling policy:
//
//	Configuration     fatal at startup, escalated at runtime
//	TransientNetwork  logged, next natural cycle retries
//	RateLimit         retried after the platform supplied delay
//	MalformedRecord   single record skipped, batch continues
//	TerminalPayload   event suppressed permanently
//	AttemptsExhausted surfaced to operators, delivery state untouched
package faults

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies a failure class.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindTransientNetwork
	KindRateLimit
	KindMalformedRecord
	KindTerminalPayload
	KindAttemptsExhausted
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindTransientNetwork:
		return "transient_network"
	case KindRateLimit:
		return "rate_limit"
	case KindMalformedRecord:
		return "malformed_record"
	case KindTerminalPayload:
		return "terminal_payload"
	case KindAttemptsExhausted:
		return "attempts_exhausted"
	default:
		return "unknown"
	}
}

// ErrUnknownRegion is wrapped by the ConfigurationError returned for an
// unregistered region id.
var ErrUnknownRegion = errors.New("unknown region")

// ConfigurationError signals an operator-fixable misconfiguration. Auth is
// set when the cause was an authorization rejection by a remote API.
type ConfigurationError struct {
	Message string
	Auth    bool
	Cause   error
}

// NewConfigurationError wraps cause.
func NewConfigurationError(message string, cause error) *ConfigurationError {
	return &ConfigurationError{Message: message, Cause: cause}
}

func (e *ConfigurationError) Error() string { return format("configuration error", e.Message, e.Cause) }
func (e *ConfigurationError) Unwrap() error { return e.Cause }

// TransientNetworkError covers transport failures, timeouts and 5xx
// responses from either the catalog or the messaging platform.
type TransientNetworkError struct {
	Message    string
	StatusCode int
	Cause      error
}

// NewTransientNetworkError wraps cause. statusCode is 0 for transport errors.
func NewTransientNetworkError(message string, statusCode int, cause error) *TransientNetworkError {
	return &TransientNetworkError{Message: message, StatusCode: statusCode, Cause: cause}
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode != 0 {
		return format("transient network error", fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode), e.Cause)
	}
	return format("transient network error", e.Message, e.Cause)
}
func (e *TransientNetworkError) Unwrap() error { return e.Cause }

// RateLimitError carries the delay requested by the remote side.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
	Global     bool
}

// NewRateLimitError builds a RateLimitError.
func NewRateLimitError(message string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{Message: message, RetryAfter: retryAfter}
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s (retry after %s)", e.Message, e.RetryAfter)
}

// MalformedRecordError marks a single catalog record that could not be
// normalized.
type MalformedRecordError struct {
	RecordID string
	Reason   string
}

// NewMalformedRecordError builds a MalformedRecordError.
func NewMalformedRecordError(recordID, reason string) *MalformedRecordError {
	return &MalformedRecordError{RecordID: recordID, Reason: reason}
}

func (e *MalformedRecordError) Error() string {
	if e.RecordID == "" {
		return "malformed record: " + e.Reason
	}
	return fmt.Sprintf("malformed record %s: %s", e.RecordID, e.Reason)
}

// TerminalPayloadError marks a message that can never be delivered because
// of the event data itself.
type TerminalPayloadError struct {
	Message string
	Cause   error
}

// NewTerminalPayloadError wraps cause.
func NewTerminalPayloadError(message string, cause error) *TerminalPayloadError {
	return &TerminalPayloadError{Message: message, Cause: cause}
}

func (e *TerminalPayloadError) Error() string {
	return format("terminal payload error", e.Message, e.Cause)
}
func (e *TerminalPayloadError) Unwrap() error { return e.Cause }

// AttemptsExhaustedWarning is reported when a retryable failure pushes an
// event to the attempt cap. It is informational: the event keeps
// confirmed_sent=false and simply stops being selected.
type AttemptsExhaustedWarning struct {
	EventID   string
	Attempts  int
	LastError string
}

func (e *AttemptsExhaustedWarning) Error() string {
	return fmt.Sprintf("delivery attempts exhausted for event %s after %d attempts: %s", e.EventID, e.Attempts, e.LastError)
}

// KindOf classifies err by walking its chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var (
		cfgErr     *ConfigurationError
		netErr     *TransientNetworkError
		rateErr    *RateLimitError
		recErr     *MalformedRecordError
		payloadErr *TerminalPayloadError
		exhausted  *AttemptsExhaustedWarning
	)

	switch {
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &rateErr):
		return KindRateLimit
	case errors.As(err, &payloadErr):
		return KindTerminalPayload
	case errors.As(err, &recErr):
		return KindMalformedRecord
	case errors.As(err, &exhausted):
		return KindAttemptsExhausted
	case errors.As(err, &netErr):
		return KindTransientNetwork
	default:
		return KindUnknown
	}
}

// Escalates reports whether err must reach process-level alerting rather
// than being handled per item.
func Escalates(err error) bool {
	return KindOf(err) == KindConfiguration
}

// RetryAfter extracts the delay carried by a RateLimitError in err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.RetryAfter, true
	}
	return 0, false
}

func format(prefix, message string, cause error) string {
	switch {
	case message == "" && cause == nil:
		return prefix
	case cause == nil:
		return prefix + ": " + message
	case message == "":
		return prefix + ": " + cause.Error()
	default:
		return prefix + ": " + message + ": " + cause.Error()
	}
}
