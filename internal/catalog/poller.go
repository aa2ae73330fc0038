// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/logging"
	"github.com/tomtom215/onsale/internal/metrics"
	"github.com/tomtom215/onsale/internal/models"
)

// EventStore is the subset of database.Store a poller writes to.
type EventStore interface {
	UpsertEvent(ctx context.Context, event *models.Event) (database.UpsertResult, error)
	LoadPollerState(ctx context.Context, region string) (*models.PollerState, error)
	SavePollerState(ctx context.Context, state *models.PollerState) error
}

// PollerConfig configures one region's poller.
type PollerConfig struct {
	Region           config.RegionConfig
	Interval         time.Duration
	PageSize         int
	MaxPages         int
	MaxRecords       int
	MaxRateLimitWait time.Duration
	// CallTimeout bounds each catalog request and store write. Those run on
	// a context detached from shutdown so an in-flight page is always kept.
	CallTimeout time.Duration
}

// NewPollerConfig derives a poller config from the loaded configuration.
func NewPollerConfig(cfg *config.Config, region config.RegionConfig) PollerConfig {
	return PollerConfig{
		Region:           region,
		Interval:         cfg.Poll.Interval,
		PageSize:         cfg.Poll.PageSize,
		MaxPages:         cfg.Poll.MaxPages,
		MaxRecords:       cfg.Poll.MaxRecords,
		MaxRateLimitWait: cfg.Catalog.MaxRateLimitWait,
		CallTimeout:      cfg.Catalog.Timeout,
	}
}

// TickResult summarizes one poll.
type TickResult struct {
	Variant   string
	Since     time.Time
	Pages     int
	Returned  int
	Inserted  int
	Updated   int
	Unchanged int
	Malformed int
}

// errInterrupted marks a tick cut short by shutdown between pages. The pages
// already fetched are stored but the watermark does not move.
var errInterrupted = errors.New("poll tick interrupted by shutdown")

// Poller fetches newly announced on-sales for one region on a fixed
// interval and upserts them into the store. A failed tick leaves the
// watermark where it was, so the next tick asks for the same window again.
type Poller struct {
	cfg       PollerConfig
	client    Client
	store     EventStore
	rotator   *Rotator
	escalator faults.Escalator
	logger    zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a poller. A nil escalator falls back to
// faults.LogEscalator.
func NewPoller(cfg PollerConfig, client Client, store EventStore, escalator faults.Escalator) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 199
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 5
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = 1000
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if escalator == nil {
		escalator = faults.LogEscalator{}
	}
	return &Poller{
		cfg:       cfg,
		client:    client,
		store:     store,
		rotator:   NewRotator(),
		escalator: escalator,
		logger:    logging.With().Str("component", "poller").Str("region", cfg.Region.Name).Logger(),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Region returns the region id this poller serves.
func (p *Poller) Region() string {
	return p.cfg.Region.Name
}

// Start runs a tick immediately and then every Interval until Stop or ctx
// cancellation.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.logger.Info().Dur("interval", p.cfg.Interval).Msg("Starting catalog poller")

	p.wg.Add(1)
	go p.pollLoop(ctx)
	return nil
}

// Stop ends the loop and waits for an in-flight tick to finish.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info().Msg("Catalog poller stopped")
	return nil
}

func (p *Poller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	p.runTick(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			p.runTick(ctx)
		}
	}
}

func (p *Poller) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("Recovered from panic in poll tick")
		}
	}()
	// Errors are already logged and escalated by Poll.
	_, _ = p.Poll(ctx) //nolint:errcheck // loop continues on the next interval
}

// Poll performs one tick. It is exported for `onsale poll --once`.
//
// Cancelling ctx never aborts a request or write already under way: ctx is
// only consulted before the tick and between pages.
func (p *Poller) Poll(ctx context.Context) (*TickResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = logging.ContextWithNewCorrelationID(ctx)
	log := p.logger.With().Str("correlation_id", logging.CorrelationIDFromContext(ctx)).Logger()
	tickStart := p.now().UTC()

	prev, err := p.loadState(ctx)
	if err != nil {
		err = fmt.Errorf("load poller state: %w", err)
		log.Error().Err(err).Msg("Poll tick abandoned")
		metrics.RecordPollTick(p.cfg.Region.Name, "store_error", p.now().Sub(tickStart))
		return nil, err
	}

	since := tickStart
	if prev != nil && prev.LastSuccessAt != nil {
		since = prev.LastSuccessAt.UTC()
	}

	variant := p.rotator.Next(p.cfg.Region)
	result := &TickResult{Variant: variant.Name, Since: since}

	log.Debug().Str("variant", variant.Name).Time("since", since).Msg("Poll tick started")

	err = p.fetchAll(ctx, log, variant, result)
	p.finish(ctx, log, tickStart, prev, result, err)
	return result, err
}

func (p *Poller) loadState(ctx context.Context) (*models.PollerState, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CallTimeout)
	defer cancel()
	return p.store.LoadPollerState(callCtx, p.cfg.Region.Name)
}

func (p *Poller) fetchAll(ctx context.Context, log zerolog.Logger, variant config.ClassificationVariant, result *TickResult) error {
	for page := 0; page < p.cfg.MaxPages; page++ {
		if p.cfg.PageSize*(page+1) > p.cfg.MaxRecords {
			break
		}
		if page > 0 && ctx.Err() != nil {
			return fmt.Errorf("%w after %d pages: %w", errInterrupted, page, ctx.Err())
		}

		q := Query{
			Region:  p.cfg.Region,
			Variant: variant,
			Since:   result.Since,
			Page:    page,
			Size:    p.cfg.PageSize,
		}
		resp, err := p.fetchPage(ctx, log, q)
		if err != nil {
			return err
		}
		result.Pages++
		result.Returned += len(resp.Events)

		for i := range resp.Events {
			if err := p.ingest(ctx, log, &resp.Events[i], result); err != nil {
				return err
			}
		}

		if len(resp.Events) < p.cfg.PageSize {
			break
		}
		if resp.TotalPages > 0 && page+1 >= resp.TotalPages {
			break
		}
	}
	return nil
}

// fetchPage retries once after a quota response when the requested delay
// fits within MaxRateLimitWait.
func (p *Poller) fetchPage(ctx context.Context, log zerolog.Logger, q Query) (*Page, error) {
	resp, err := p.fetchOnce(ctx, q)
	wait, limited := faults.RetryAfter(err)
	if !limited || wait > p.cfg.MaxRateLimitWait {
		return resp, err
	}

	log.Warn().Dur("retry_after", wait).Int("page", q.Page).Msg("Catalog rate limited, waiting before retry")
	if err := p.sleep(ctx, wait); err != nil {
		return nil, fmt.Errorf("%w during rate limit wait: %w", errInterrupted, err)
	}
	return p.fetchOnce(ctx, q)
}

func (p *Poller) fetchOnce(ctx context.Context, q Query) (*Page, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CallTimeout)
	defer cancel()
	return p.client.FetchPage(callCtx, q)
}

func (p *Poller) ingest(ctx context.Context, log zerolog.Logger, raw *RawEvent, result *TickResult) error {
	event, err := Normalize(raw, p.cfg.Region.Name)
	if err != nil {
		result.Malformed++
		metrics.MalformedRecords.WithLabelValues(p.cfg.Region.Name).Inc()
		log.Warn().Err(err).Str("event_id", raw.ID).Msg("Skipping malformed catalog record")
		return nil
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CallTimeout)
	defer cancel()
	res, err := p.store.UpsertEvent(callCtx, event)
	if err != nil {
		return fmt.Errorf("upsert event %s: %w", event.ID, err)
	}
	metrics.EventsIngested.WithLabelValues(p.cfg.Region.Name, res.String()).Inc()

	switch res {
	case database.UpsertInserted:
		result.Inserted++
		log.Info().Str("event_id", event.ID).Str("event", event.Name).Msg("New event stored")
	case database.UpsertUpdated:
		result.Updated++
	default:
		result.Unchanged++
	}
	return nil
}

func (p *Poller) finish(ctx context.Context, log zerolog.Logger, tickStart time.Time, prev *models.PollerState, result *TickResult, tickErr error) {
	duration := p.now().Sub(tickStart)
	state := &models.PollerState{
		Region:         p.cfg.Region.Name,
		LastRequestAt:  &tickStart,
		EventsReturned: result.Returned,
		NewEvents:      result.Inserted,
	}

	switch {
	case errors.Is(tickErr, errInterrupted):
		state.Status = models.PollerRunning
		if prev != nil {
			state.Status = prev.Status
			state.LastSuccessAt = prev.LastSuccessAt
			state.ErrorMessage = prev.ErrorMessage
		}
		log.Info().
			Int("pages", result.Pages).
			Int("new", result.Inserted).
			Msg("Poll tick interrupted by shutdown, watermark kept")
	case tickErr == nil:
		state.Status = models.PollerRunning
		state.LastSuccessAt = &tickStart
		log.Info().
			Str("variant", result.Variant).
			Int("pages", result.Pages).
			Int("returned", result.Returned).
			Int("new", result.Inserted).
			Int("updated", result.Updated).
			Int("malformed", result.Malformed).
			Dur("duration", duration).
			Msg("Poll tick complete")
	default:
		state.Status = models.PollerError
		state.ErrorMessage = tickErr.Error()
		if prev != nil {
			state.LastSuccessAt = prev.LastSuccessAt
		}
		p.reportFailure(ctx, log, tickErr)
	}
	metrics.RecordPollTick(p.cfg.Region.Name, tickResultLabel(tickErr), duration)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CallTimeout)
	defer cancel()
	if err := p.store.SavePollerState(saveCtx, state); err != nil {
		log.Error().Err(err).Msg("Failed to save poller state")
	}
}

func (p *Poller) reportFailure(ctx context.Context, log zerolog.Logger, err error) {
	switch faults.KindOf(err) {
	case faults.KindConfiguration:
		p.escalator.Escalate(ctx, "poller:"+p.cfg.Region.Name, err)
	case faults.KindRateLimit:
		log.Warn().Err(err).Msg("Poll tick abandoned: rate limit delay exceeds the wait budget")
	default:
		log.Error().Err(err).Msg("Poll tick abandoned")
	}
}

func tickResultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if errors.Is(err, errInterrupted) {
		return "interrupted"
	}
	switch faults.KindOf(err) {
	case faults.KindConfiguration:
		return "config"
	case faults.KindRateLimit:
		return "rate_limited"
	case faults.KindTransientNetwork:
		return "transient"
	default:
		return "error"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
