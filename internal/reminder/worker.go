// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/delivery"
	"github.com/tomtom215/onsale/internal/dispatch"
	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/logging"
	"github.com/tomtom215/onsale/internal/metrics"
	"github.com/tomtom215/onsale/internal/models"
)

// Store is the subset of database.Store the worker uses.
type Store interface {
	DueReminders(ctx context.Context, dueBy time.Time, limit int) ([]models.Event, error)
	AdvanceReminder(ctx context.Context, eventID string, expected time.Time, next *time.Time) (bool, error)
}

// Config configures a Worker.
type Config struct {
	Interval time.Duration
	// Lookahead sends reminders this far before they are due.
	Lookahead time.Duration
	// FollowUp schedules a second reminder this long before the general
	// sale. Zero disables it.
	FollowUp    time.Duration
	BatchSize   int
	SendTimeout time.Duration
}

// NewConfig maps the process configuration.
func NewConfig(cfg *config.Config) Config {
	return Config{
		Interval:    cfg.Reminders.Interval,
		Lookahead:   cfg.Reminders.Lookahead,
		FollowUp:    cfg.Reminders.FollowUp,
		BatchSize:   cfg.Reminders.BatchSize,
		SendTimeout: cfg.Dispatch.SendTimeout,
	}
}

// RunResult summarizes one pass.
type RunResult struct {
	Due      int
	Sent     int
	Retried  int
	Deferred int
	Dropped  int
}

// Worker sends due reminders.
type Worker struct {
	cfg       Config
	store     Store
	channel   delivery.Channel
	regions   delivery.RegionLookup
	pairings  []dispatch.Pairing
	escalator faults.Escalator
	logger    zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a worker. Reminders go to the channel of the first of
// pairings that covers the event. A nil escalator falls back to
// faults.LogEscalator.
func NewWorker(cfg Config, store Store, channel delivery.Channel, regions delivery.RegionLookup, pairings []dispatch.Pairing, escalator faults.Escalator) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Lookahead < 0 {
		cfg.Lookahead = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if escalator == nil {
		escalator = faults.LogEscalator{}
	}
	return &Worker{
		cfg:       cfg,
		store:     store,
		channel:   channel,
		regions:   regions,
		pairings:  pairings,
		escalator: escalator,
		logger:    logging.WithComponent("reminder"),
		now:       time.Now,
	}
}

// Start runs a pass immediately and then every Interval.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info().
		Dur("interval", w.cfg.Interval).
		Dur("lookahead", w.cfg.Lookahead).
		Dur("follow_up", w.cfg.FollowUp).
		Msg("Starting reminder worker")

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop ends the loop and waits for an in-flight pass.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	close(w.stopChan)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info().Msg("Reminder worker stopped")
	return nil
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce sends one batch of due reminders.
func (w *Worker) RunOnce(ctx context.Context) RunResult {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := w.logger.With().Str("correlation_id", logging.CorrelationIDFromContext(ctx)).Logger()

	var result RunResult
	events, err := w.store.DueReminders(ctx, w.now().UTC().Add(w.cfg.Lookahead), w.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Msg("Failed to select due reminders")
		}
		return result
	}
	result.Due = len(events)

	for i := range events {
		if ctx.Err() != nil {
			break
		}
		w.remind(ctx, log, &events[i], &result)
	}

	if result.Due > 0 {
		log.Info().
			Int("due", result.Due).
			Int("sent", result.Sent).
			Int("retried", result.Retried).
			Int("deferred", result.Deferred).
			Int("dropped", result.Dropped).
			Msg("Reminder pass complete")
	}
	return result
}

func (w *Worker) remind(ctx context.Context, log zerolog.Logger, e *models.Event, result *RunResult) {
	if e.ReminderAt == nil {
		return
	}
	expected := *e.ReminderAt
	log = log.With().Str("event_id", e.ID).Logger()

	defer func() {
		if r := recover(); r != nil {
			result.Retried++
			log.Error().Interface("panic", r).Msg("Recovered from panic while sending reminder")
		}
	}()

	pairing, ok := dispatch.Route(w.pairings, e)
	if !ok {
		result.Dropped++
		metrics.Reminders.WithLabelValues("unrouted").Inc()
		log.Warn().Str("region", e.Region).Msg("No pairing covers the event, dropping reminder")
		w.advance(ctx, log, e.ID, expected, nil)
		return
	}
	if wait := delivery.BlockedFor(w.channel, pairing.ChannelID); wait > 0 {
		result.Deferred++
		metrics.Reminders.WithLabelValues("deferred").Inc()
		log.Debug().Dur("retry_after", wait).Str("pairing", pairing.Name).Msg("Channel rate limited, reminder left for the next pass")
		return
	}

	now := w.now().UTC()
	msg := delivery.BuildReminder(e, w.region(e.Region), now)
	if err := delivery.ValidateMessage(msg); err != nil {
		result.Dropped++
		metrics.Reminders.WithLabelValues("terminal").Inc()
		log.Error().Err(err).Msg("Reminder can never be delivered, dropping")
		w.advance(ctx, log, e.ID, expected, nil)
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.SendTimeout)
	defer cancel()
	id, err := w.channel.Send(sendCtx, pairing.ChannelID, msg)
	if err != nil && faults.Escalates(err) {
		w.escalator.Escalate(ctx, "reminder:"+pairing.ChannelID, err)
	}

	outcome := delivery.Classify(id, err)
	switch outcome.Kind {
	case models.OutcomeConfirmed:
		result.Sent++
		metrics.Reminders.WithLabelValues("sent").Inc()
		next := FollowUp(e, now, w.cfg.FollowUp, w.cfg.Lookahead)
		ev := log.Info().Str("pairing", pairing.Name).Str("message_id", id)
		if next != nil {
			ev = ev.Time("follow_up_at", *next)
		}
		ev.Msg("Reminder sent")
		w.advance(ctx, log, e.ID, expected, next)
	case models.OutcomeTerminal:
		result.Dropped++
		metrics.Reminders.WithLabelValues("terminal").Inc()
		log.Error().Err(outcome.Err).Msg("Reminder rejected by the platform, dropping")
		w.advance(ctx, log, e.ID, expected, nil)
	default:
		result.Retried++
		metrics.Reminders.WithLabelValues("retryable").Inc()
		ev := log.Warn().Err(outcome.Err)
		if outcome.RetryAfter > 0 {
			ev = ev.Dur("retry_after", outcome.RetryAfter)
		}
		ev.Msg("Reminder failed, will retry next pass")
	}
}

// advance writes next on a context detached from shutdown so a sent
// reminder is never sent twice.
func (w *Worker) advance(ctx context.Context, log zerolog.Logger, eventID string, expected time.Time, next *time.Time) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.SendTimeout)
	defer cancel()

	applied, err := w.store.AdvanceReminder(ctx, eventID, expected, next)
	if err != nil {
		log.Error().Err(err).Msg("Failed to update reminder")
		return
	}
	if !applied {
		log.Info().Msg("Reminder was rescheduled during the send, keeping the new time")
	}
}

func (w *Worker) region(id string) config.RegionConfig {
	if w.regions == nil {
		return config.RegionConfig{}
	}
	rc, err := w.regions.Get(id)
	if err != nil {
		return config.RegionConfig{}
	}
	return rc
}
