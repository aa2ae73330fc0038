// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/logging"
	"github.com/tomtom215/onsale/internal/metrics"
	"github.com/tomtom215/onsale/internal/models"
)

// AttemptStore is the subset of database.Store the engine needs.
type AttemptStore interface {
	DeliveryState(ctx context.Context, eventID string) (models.DeliveryState, error)
	RecordDeliveryAttempt(ctx context.Context, eventID string, expectedAttempts int, outcome models.Outcome, maxAttempts int) (database.RecordResult, error)
}

// RegionLookup resolves presentation settings for an event's region.
type RegionLookup interface {
	Get(id string) (config.RegionConfig, error)
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	MaxAttempts int
	// SendTimeout bounds one Send. The send is detached from the caller's
	// cancellation so a shutdown does not abandon a request mid-flight.
	SendTimeout time.Duration
}

// ProcessResult reports what Process did with one candidate.
type ProcessResult struct {
	// Skipped is true when the delivery state changed since selection and
	// nothing was sent.
	Skipped bool
	// Deferred is true when the target was still rate limited. Nothing was
	// sent and no attempt was recorded.
	Deferred   bool
	RetryAfter time.Duration
	Outcome    models.Outcome
	Record     database.RecordResult
}

// RateLimited reports whether the target cannot take more sends right
// now, either because Process deferred or because the send hit a limit.
func (r ProcessResult) RateLimited() bool {
	if r.Deferred {
		return true
	}
	return r.Outcome.Kind == models.OutcomeRetryable && faults.KindOf(r.Outcome.Err) == faults.KindRateLimit
}

// Engine delivers one event at a time and records the attempt.
type Engine struct {
	channel   Channel
	store     AttemptStore
	regions   RegionLookup
	escalator faults.Escalator
	cfg       EngineConfig
	logger    zerolog.Logger
}

// NewEngine builds an engine. A nil escalator falls back to
// faults.LogEscalator.
func NewEngine(channel Channel, store AttemptStore, regions RegionLookup, escalator faults.Escalator, cfg EngineConfig) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if escalator == nil {
		escalator = faults.LogEscalator{}
	}
	return &Engine{
		channel:   channel,
		store:     store,
		regions:   regions,
		escalator: escalator,
		cfg:       cfg,
		logger:    logging.WithComponent("delivery"),
	}
}

// MaxAttempts returns the configured attempt cap.
func (e *Engine) MaxAttempts() int { return e.cfg.MaxAttempts }

// Message formats event the way Deliver would send it.
func (e *Engine) Message(event *models.Event) *Message {
	var region config.RegionConfig
	if e.regions != nil {
		if rc, err := e.regions.Get(event.Region); err == nil {
			region = rc
		}
	}
	return BuildMessage(event, region)
}

// Deliver formats, validates and sends event to target. It never touches
// the store.
func (e *Engine) Deliver(ctx context.Context, event *models.Event, target string) models.Outcome {
	msg := e.Message(event)
	if err := ValidateMessage(msg); err != nil {
		return models.Terminal(err)
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.SendTimeout)
	defer cancel()

	externalID, err := e.channel.Send(sendCtx, target, msg)
	if err != nil && faults.Escalates(err) {
		e.escalator.Escalate(ctx, "delivery:"+target, err)
	}
	return Classify(externalID, err)
}

// Process re-reads the delivery state, delivers when it still matches the
// snapshot in event, and records the attempt. pairing labels logs and
// metrics.
func (e *Engine) Process(ctx context.Context, event *models.Event, target, pairing string) (ProcessResult, error) {
	log := logging.CtxWith(ctx).
		Str("component", "delivery").
		Str("pairing", pairing).
		Str("event_id", event.ID).
		Logger()

	current, err := e.store.DeliveryState(ctx, event.ID)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("re-read delivery state: %w", err)
	}
	if current.ConfirmedSent || !current.SameVersion(event.Delivery) || current.AttemptCount >= e.cfg.MaxAttempts {
		log.Debug().Int("attempts", current.AttemptCount).Msg("Delivery state changed since selection, skipping")
		return ProcessResult{Skipped: true}, nil
	}
	if wait := BlockedFor(e.channel, target); wait > 0 {
		log.Debug().Dur("retry_after", wait).Msg("Target rate limited, deferring without an attempt")
		metrics.RecordDeliveryOutcome(pairing, "deferred")
		return ProcessResult{Deferred: true, RetryAfter: wait}, nil
	}

	outcome := e.Deliver(ctx, event, target)
	metrics.RecordDeliveryOutcome(pairing, outcome.Kind.String())

	rec, err := e.store.RecordDeliveryAttempt(context.WithoutCancel(ctx), event.ID, current.AttemptCount, outcome, e.cfg.MaxAttempts)
	result := ProcessResult{Outcome: outcome, Record: rec}
	if err != nil {
		// The message may already be visible; the next tick retries and
		// accepts the duplicate risk.
		log.Error().Err(err).Str("outcome", outcome.Kind.String()).Msg("Failed to record delivery attempt")
		return result, fmt.Errorf("record delivery attempt: %w", err)
	}
	if !rec.Applied {
		log.Warn().Str("outcome", outcome.Kind.String()).Msg("Delivery attempt lost the optimistic check; another worker recorded first")
		return result, nil
	}

	e.logOutcome(log, event, outcome, rec)
	return result, nil
}

func (e *Engine) logOutcome(log zerolog.Logger, event *models.Event, outcome models.Outcome, rec database.RecordResult) {
	switch outcome.Kind {
	case models.OutcomeConfirmed:
		log.Info().
			Str("event", event.Name).
			Str("message_id", outcome.ExternalID).
			Int("attempt", rec.AttemptCount).
			Msg("Event delivered")
	case models.OutcomeTerminal:
		log.Error().
			Err(outcome.Err).
			Int("attempt", rec.AttemptCount).
			Msg("Event suppressed: payload can never be delivered")
	default:
		if rec.Exhausted {
			warning := &faults.AttemptsExhaustedWarning{
				EventID:   event.ID,
				Attempts:  rec.AttemptCount,
				LastError: outcome.ErrorText(),
			}
			metrics.DeliveryExhausted.Inc()
			log.Warn().
				Err(warning).
				Str("error_kind", faults.KindAttemptsExhausted.String()).
				Msg("Delivery attempts exhausted; event left unconfirmed")
			return
		}
		ev := log.Warn().Err(outcome.Err).Int("attempt", rec.AttemptCount)
		if outcome.RetryAfter > 0 {
			ev = ev.Dur("retry_after", outcome.RetryAfter)
		}
		ev.Msg("Delivery failed, will retry")
	}
}
