// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package delivery formats events as channel messages, sends them and
// turns the platform's answer into a models.Outcome.
//
// Channel implementations report failures as faults errors:
//
//	*faults.RateLimitError         retry after the platform's delay
//	*faults.TransientNetworkError  transport, timeout or 5xx
//	*faults.ConfigurationError     bad token or unknown channel
//	*faults.TerminalPayloadError   the platform rejected the payload
//
// Engine maps those onto Confirmed, Retryable or Terminal and records the
// attempt in the store.
package delivery

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/onsale/internal/breaker"
	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/models"
)

// Channel sends one message to a target (a channel id) and returns the
// platform-issued message id.
type Channel interface {
	// Name identifies the channel in logs.
	Name() string

	// Send delivers msg. A nil error with an empty id is not a
	// confirmation.
	Send(ctx context.Context, target string, msg *Message) (string, error)
}

// Throttler is implemented by channels that track rate limits per target.
// The engine asks before sending so a blocked target costs no attempt.
type Throttler interface {
	BlockedFor(target string) time.Duration
}

// BlockedFor asks ch how long target stays rate limited. Channels that do
// not track limits report zero.
func BlockedFor(ch Channel, target string) time.Duration {
	if t, ok := ch.(Throttler); ok {
		return t.BlockedFor(target)
	}
	return 0
}

// Classify maps a Send result onto an Outcome.
func Classify(externalID string, err error) models.Outcome {
	if err == nil {
		if externalID == "" {
			return models.Retryable(faults.NewTransientNetworkError("send returned no message id", 0, nil), 0)
		}
		return models.Confirmed(externalID)
	}

	switch faults.KindOf(err) {
	case faults.KindTerminalPayload:
		return models.Terminal(err)
	case faults.KindRateLimit:
		wait, _ := faults.RetryAfter(err)
		return models.Retryable(err, wait)
	default:
		// Configuration, transient and anything unclassified: the event is
		// not at fault, so it stays eligible.
		return models.Retryable(err, 0)
	}
}

// CircuitBreakerChannel guards a Channel with a breaker. Only transient
// failures count against it; a rate limit or a rejected payload says
// nothing about the platform's health.
type CircuitBreakerChannel struct {
	channel Channel
	cb      *gobreaker.CircuitBreaker[string]
}

// NewCircuitBreakerChannel wraps channel.
func NewCircuitBreakerChannel(channel Channel, name string) *CircuitBreakerChannel {
	return &CircuitBreakerChannel{
		channel: channel,
		cb: breaker.New[string](name, breaker.Settings{
			MaxRequests: 1,
			Timeout:     time.Minute,
			IsSuccessful: func(err error) bool {
				return err == nil || faults.KindOf(err) != faults.KindTransientNetwork
			},
		}),
	}
}

// Name implements Channel.
func (c *CircuitBreakerChannel) Name() string { return c.channel.Name() }

// BlockedFor implements Throttler for the wrapped channel.
func (c *CircuitBreakerChannel) BlockedFor(target string) time.Duration {
	return BlockedFor(c.channel, target)
}

// Send implements Channel.
func (c *CircuitBreakerChannel) Send(ctx context.Context, target string, msg *Message) (string, error) {
	id, err := breaker.Execute(c.cb, func() (string, error) {
		return c.channel.Send(ctx, target, msg)
	})
	if err != nil && breaker.IsRejected(err) {
		return "", faults.NewTransientNetworkError("discord circuit open", 0, err)
	}
	return id, err
}
