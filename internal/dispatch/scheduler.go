// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package dispatch runs the delivery ticks. Each pairing (a channel plus
// a selection criteria) gets its own ticker goroutine; a tick selects the
// pairing's undelivered events page by page and hands them one by one to
// the delivery engine.
//
// Tick lifecycle:
//
//	IDLE -> SELECTING -> IDLE                            no candidates
//	IDLE -> SELECTING -> DELIVERING -> SELECTING ... -> IDLE
//
// Pages are keyed on (sale_start, id), so an event that fails stays behind
// the cursor and waits for the next tick. An event is only ever processed
// by one pairing at a time. A tick stops early when its context is
// cancelled, after the current candidate has been recorded, and when the
// pairing's channel is rate limited.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/delivery"
	"github.com/tomtom215/onsale/internal/logging"
	"github.com/tomtom215/onsale/internal/metrics"
	"github.com/tomtom215/onsale/internal/models"
)

// CandidateStore is the selection half of database.Store.
type CandidateStore interface {
	FindDeliveryCandidates(ctx context.Context, q database.CandidateQuery) ([]models.Event, error)
}

// Processor delivers and records one candidate. *delivery.Engine
// implements it.
type Processor interface {
	Process(ctx context.Context, event *models.Event, target, pairing string) (delivery.ProcessResult, error)
	MaxAttempts() int
}

// Config holds scheduler settings.
type Config struct {
	// Interval between ticks of one pairing (default: 1 minute).
	Interval time.Duration

	// LinkCheckHoldOff keeps an event out of selection until the link
	// checker has looked at it or it has been known this long. Zero
	// disables the hold-off.
	LinkCheckHoldOff time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{Interval: time.Minute}
}

// TickReport summarizes one tick of one pairing.
type TickReport struct {
	Pairing    string        `json:"pairing"`
	Candidates int           `json:"candidates"`
	Confirmed  int           `json:"confirmed"`
	Retryable  int           `json:"retryable"`
	Terminal   int           `json:"terminal"`
	Skipped    int           `json:"skipped"`
	Deferred   int           `json:"deferred"`
	Errors     int           `json:"errors"`
	Duration   time.Duration `json:"duration"`
	// Err is set when selection itself failed.
	Err error `json:"-"`
}

func (r *TickReport) add(res delivery.ProcessResult) {
	if res.Skipped {
		r.Skipped++
		return
	}
	if res.Deferred {
		r.Deferred++
		return
	}
	switch res.Outcome.Kind {
	case models.OutcomeConfirmed:
		r.Confirmed++
	case models.OutcomeTerminal:
		r.Terminal++
	default:
		r.Retryable++
	}
}

// Scheduler runs one ticker per pairing.
type Scheduler struct {
	store     CandidateStore
	processor Processor
	pairings  []Pairing
	config    Config
	logger    zerolog.Logger
	now       func() time.Time

	// inFlight holds event ids currently owned by some pairing's tick.
	inFlight sync.Map

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for pairings.
func NewScheduler(store CandidateStore, processor Processor, pairings []Pairing, config Config) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	return &Scheduler{
		store:     store,
		processor: processor,
		pairings:  pairings,
		config:    config,
		logger:    logging.WithComponent("dispatch"),
		now:       time.Now,
	}
}

// Pairings returns the configured pairings.
func (s *Scheduler) Pairings() []Pairing {
	out := make([]Pairing, len(s.pairings))
	copy(out, s.pairings)
	return out
}

// Start launches one goroutine per pairing. Each ticks immediately and
// then every Interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("dispatch scheduler already running")
	}
	if len(s.pairings) == 0 {
		return errors.New("dispatch scheduler has no pairings")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Int("pairings", len(s.pairings)).
		Int("max_attempts", s.processor.MaxAttempts()).
		Msg("Starting dispatch scheduler")

	for i := range s.pairings {
		s.wg.Add(1)
		go s.run(runCtx, s.pairings[i])
	}
	return nil
}

// Stop cancels the tickers and waits for in-flight ticks to finish their
// current candidate.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info().Msg("Stopping dispatch scheduler...")
	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	s.logger.Info().Msg("Dispatch scheduler stopped")
	return nil
}

// IsRunning returns whether the scheduler is currently running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(ctx context.Context, p Pairing) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.Tick(ctx, p)
	for {
		select {
		case <-ticker.C:
			s.Tick(ctx, p)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce ticks every pairing concurrently and waits for all of them.
func (s *Scheduler) RunOnce(ctx context.Context) []TickReport {
	reports := make([]TickReport, len(s.pairings))
	var wg sync.WaitGroup
	for i := range s.pairings {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			reports[idx] = s.Tick(ctx, s.pairings[idx])
		}(i)
	}
	wg.Wait()
	return reports
}

// Tick runs one selection and delivery pass for p. It pages through every
// eligible candidate, each at most once.
func (s *Scheduler) Tick(ctx context.Context, p Pairing) (report TickReport) {
	start := time.Now()
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := logging.CtxWith(ctx).Str("component", "dispatch").Str("pairing", p.Name).Logger()

	report.Pairing = p.Name
	defer func() {
		report.Duration = time.Since(start)
		metrics.RecordDispatchTick(p.Name, report.Candidates, report.Duration)
	}()

	now := s.now()
	q := p.Query(s.processor.MaxAttempts(), now)
	if s.config.LinkCheckHoldOff > 0 {
		q.UncheckedSeenBefore = now.Add(-s.config.LinkCheckHoldOff)
	}

	for page := 0; ; page++ {
		if page > 0 && ctx.Err() != nil {
			log.Info().Int("pages", page).Msg("Tick cancelled between pages, leaving the rest for the next run")
			break
		}
		candidates, err := s.store.FindDeliveryCandidates(ctx, q)
		if err != nil {
			if ctx.Err() == nil {
				log.Error().Err(err).Int("page", page).Msg("Failed to select delivery candidates")
			}
			report.Err = err
			if page == 0 {
				return report
			}
			break
		}
		if len(candidates) == 0 {
			if page == 0 {
				log.Debug().Msg("No delivery candidates")
				return report
			}
			break
		}
		report.Candidates += len(candidates)
		log.Info().Int("candidates", len(candidates)).Int("page", page).Msg("Delivering candidates")

		if stop := s.deliverPage(ctx, log, p, candidates, &report); stop {
			break
		}
		if q.Limit <= 0 || len(candidates) < q.Limit {
			break
		}
		q.After = database.CursorOf(&candidates[len(candidates)-1])
	}

	log.Info().
		Int("candidates", report.Candidates).
		Int("confirmed", report.Confirmed).
		Int("retryable", report.Retryable).
		Int("terminal", report.Terminal).
		Int("skipped", report.Skipped).
		Int("deferred", report.Deferred).
		Int("errors", report.Errors).
		Dur("duration", time.Since(start)).
		Msg("Dispatch tick complete")
	return report
}

// deliverPage processes one page and reports whether the tick must stop.
func (s *Scheduler) deliverPage(ctx context.Context, log zerolog.Logger, p Pairing, candidates []models.Event, report *TickReport) bool {
	for i := range candidates {
		if ctx.Err() != nil {
			log.Info().Int("remaining", len(candidates)-i).Msg("Tick cancelled, leaving remaining candidates for the next run")
			return true
		}
		res, ok := s.processCandidate(ctx, log, p, &candidates[i], report)
		if ok && res.RateLimited() {
			rest := len(candidates) - i - 1
			report.Deferred += rest
			ev := log.Warn().Int("deferred", rest)
			if wait := res.RetryAfter + res.Outcome.RetryAfter; wait > 0 {
				ev = ev.Dur("retry_after", wait)
			}
			ev.Msg("Channel rate limited, leaving the pairing's remaining candidates for the next tick")
			return true
		}
	}
	return false
}

// processCandidate reports false when the candidate produced no result.
func (s *Scheduler) processCandidate(ctx context.Context, log zerolog.Logger, p Pairing, event *models.Event, report *TickReport) (res delivery.ProcessResult, ok bool) {
	if owner, busy := s.inFlight.LoadOrStore(event.ID, p.Name); busy {
		log.Debug().Str("event_id", event.ID).Interface("owner", owner).Msg("Event in flight in another pairing, skipping")
		report.Skipped++
		return res, false
	}
	defer s.inFlight.Delete(event.ID)

	defer func() {
		if r := recover(); r != nil {
			report.Errors++
			ok = false
			log.Error().
				Str("event_id", event.ID).
				Interface("panic", r).
				Msg("Recovered from panic while delivering event")
		}
	}()

	res, err := s.processor.Process(ctx, event, p.ChannelID, p.Name)
	if err != nil {
		report.Errors++
		log.Error().Err(err).Str("event_id", event.ID).Msg("Failed to process delivery candidate")
		return res, false
	}
	report.add(res)
	return res, true
}
