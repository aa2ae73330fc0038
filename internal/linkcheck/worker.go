// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package linkcheck

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/onsale/internal/logging"
	"github.com/tomtom215/onsale/internal/metrics"
	"github.com/tomtom215/onsale/internal/models"
)

// LinkStore is the subset of database.Store the worker uses.
type LinkStore interface {
	EventsNeedingLinkCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]models.Event, error)
	SetSupplementaryURL(ctx context.Context, eventID, url string, checkedAt time.Time) error
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Interval      time.Duration
	RecheckWindow time.Duration
	BatchSize     int
	// CheckTimeout bounds one event's detection and store write. Both run
	// detached from shutdown; shutdown is only observed between events.
	CheckTimeout time.Duration
}

// RunResult summarizes one pass.
type RunResult struct {
	Checked int
	Found   int
	Failed  int
}

// Worker periodically runs the detector over undelivered events that have
// no link yet and have not been checked within RecheckWindow.
type Worker struct {
	cfg      WorkerConfig
	store    LinkStore
	detector Detector
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a worker.
func NewWorker(cfg WorkerConfig, store LinkStore, detector Detector) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.RecheckWindow <= 0 {
		cfg.RecheckWindow = 48 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = time.Minute
	}
	return &Worker{
		cfg:      cfg,
		store:    store,
		detector: detector,
		logger:   logging.WithComponent("linkcheck"),
		now:      time.Now,
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
		Dur("recheck_window", w.cfg.RecheckWindow).
		Msg("Starting link check worker")

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
	w.logger.Info().Msg("Link check worker stopped")
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

// RunOnce checks one batch of events.
func (w *Worker) RunOnce(ctx context.Context) RunResult {
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := w.logger.With().Str("correlation_id", logging.CorrelationIDFromContext(ctx)).Logger()

	var result RunResult
	now := w.now().UTC()
	events, err := w.store.EventsNeedingLinkCheck(ctx, now.Add(-w.cfg.RecheckWindow), w.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to select events for link check")
		return result
	}

	for i := range events {
		if ctx.Err() != nil {
			break
		}
		w.check(ctx, log, &events[i], &result)
	}

	if result.Checked > 0 {
		log.Info().
			Int("checked", result.Checked).
			Int("found", result.Found).
			Int("failed", result.Failed).
			Msg("Link check pass complete")
	}
	return result
}

func (w *Worker) check(ctx context.Context, log zerolog.Logger, e *models.Event, result *RunResult) {
	defer func() {
		if r := recover(); r != nil {
			result.Failed++
			log.Error().Str("event_id", e.ID).Interface("panic", r).Msg("Recovered from panic in link check")
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.CheckTimeout)
	defer cancel()

	result.Checked++
	link, err := w.detector.Detect(ctx, LinkTarget{EventID: e.ID, URL: e.URL, ArtistName: e.ArtistName()})
	if err != nil {
		// Leave link_checked_at alone so the event is retried next pass.
		result.Failed++
		metrics.LinkChecks.WithLabelValues("error").Inc()
		log.Warn().Err(err).Str("event_id", e.ID).Msg("Link check failed")
		return
	}

	if err := w.store.SetSupplementaryURL(ctx, e.ID, link, w.now().UTC()); err != nil {
		result.Failed++
		metrics.LinkChecks.WithLabelValues("error").Inc()
		log.Error().Err(err).Str("event_id", e.ID).Msg("Failed to store link check result")
		return
	}

	if link == "" {
		metrics.LinkChecks.WithLabelValues("none").Inc()
		return
	}
	result.Found++
	metrics.LinkChecks.WithLabelValues("found").Inc()
	log.Info().Str("event_id", e.ID).Str("link", link).Msg("Found presale signup link")
}
