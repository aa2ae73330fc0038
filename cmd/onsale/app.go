// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/onsale/internal/catalog"
	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/delivery"
	"github.com/tomtom215/onsale/internal/dispatch"
	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/linkcheck"
	"github.com/tomtom215/onsale/internal/logging"
	"github.com/tomtom215/onsale/internal/reminder"
)

// app holds what every subcommand needs: validated configuration, the
// region registry and, once opened, the event store.
type app struct {
	cfg       *config.Config
	registry  *config.Registry
	store     database.Store
	escalator faults.Escalator

	// discord is shared by dispatch and reminders so both see the same
	// rate limits and breaker.
	discord delivery.Channel
}

// loadApp loads configuration and initializes logging. Configuration
// problems are fatal here, before any component starts.
func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	registry, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("invalid region registry: %w", err)
	}

	return &app{
		cfg:       cfg,
		registry:  registry,
		escalator: faults.LogEscalator{},
	}, nil
}

// openStore connects to the configured engine and applies the schema.
func (a *app) openStore(ctx context.Context) error {
	if err := a.cfg.RequireDatabase(); err != nil {
		return err
	}
	store, err := database.Open(ctx, &a.cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", a.cfg.Database.Driver, err)
	}
	a.store = store
	logging.Info().Str("engine", store.Engine()).Msg("Event store ready")
	return nil
}

func (a *app) close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close event store")
	}
}

// pollers builds one catalog poller per selected region. regionIDs
// overrides the configured poll regions when non-empty.
func (a *app) pollers(regionIDs []string) ([]*catalog.Poller, error) {
	if err := a.cfg.RequireCatalog(); err != nil {
		return nil, err
	}
	if len(regionIDs) == 0 {
		regionIDs = a.cfg.Poll.Regions
	}
	regions, err := a.registry.Select(regionIDs)
	if err != nil {
		return nil, err
	}

	// One client for every region: the limiter and breaker are shared
	// because the API key's quota is.
	var client catalog.Client = catalog.NewHTTPClient(catalog.ClientConfig{
		BaseURL:           a.cfg.Catalog.BaseURL,
		APIKey:            a.cfg.Catalog.APIKey,
		Timeout:           a.cfg.Catalog.Timeout,
		RequestsPerSecond: a.cfg.Catalog.RequestsPerSecond,
	})
	client = catalog.NewCircuitBreakerClient(client, "catalog")

	pollers := make([]*catalog.Poller, 0, len(regions))
	for _, region := range regions {
		pollers = append(pollers, catalog.NewPoller(catalog.NewPollerConfig(a.cfg, region), client, a.store, a.escalator))
	}
	return pollers, nil
}

// scheduler builds the Discord delivery engine and the pairing scheduler.
func (a *app) scheduler() (*dispatch.Scheduler, error) {
	if err := a.cfg.RequireDiscord(); err != nil {
		return nil, err
	}
	pairings, err := dispatch.PairingsFromConfig(a.cfg, a.registry)
	if err != nil {
		return nil, err
	}

	engine := delivery.NewEngine(a.discordChannel(), a.store, a.registry, a.escalator, delivery.EngineConfig{
		MaxAttempts: a.cfg.Dispatch.MaxAttempts,
		SendTimeout: a.cfg.Dispatch.SendTimeout,
	})

	schedCfg := dispatch.DefaultConfig()
	schedCfg.Interval = a.cfg.Dispatch.Interval
	if a.cfg.LinkCheck.Enabled {
		schedCfg.LinkCheckHoldOff = a.cfg.LinkCheck.HoldOff
	}
	return dispatch.NewScheduler(a.store, engine, pairings, schedCfg), nil
}

func (a *app) discordChannel() delivery.Channel {
	if a.discord == nil {
		a.discord = delivery.NewCircuitBreakerChannel(delivery.NewDiscordChannel(delivery.DiscordConfig{
			BaseURL:           a.cfg.Discord.APIBaseURL,
			BotToken:          a.cfg.Discord.BotToken,
			Timeout:           a.cfg.Discord.Timeout,
			RequestsPerSecond: a.cfg.Discord.RequestsPerSecond,
		}), "discord")
	}
	return a.discord
}

// reminderWorker builds the sale reminder worker. Reminders follow the
// dispatch pairings' routing.
func (a *app) reminderWorker() (*reminder.Worker, error) {
	if err := a.cfg.RequireDiscord(); err != nil {
		return nil, err
	}
	pairings, err := dispatch.PairingsFromConfig(a.cfg, a.registry)
	if err != nil {
		return nil, err
	}
	return reminder.NewWorker(reminder.NewConfig(a.cfg), a.store, a.discordChannel(), a.registry, pairings, a.escalator), nil
}

// linkWorker builds the supplementary signup link worker.
func (a *app) linkWorker() *linkcheck.Worker {
	detector := linkcheck.NewHTTPDetector(linkcheck.HTTPConfig{
		Timeout: a.cfg.LinkCheck.Timeout,
	})
	return linkcheck.NewWorker(linkcheck.WorkerConfig{
		Interval:      a.cfg.LinkCheck.Interval,
		RecheckWindow: a.cfg.LinkCheck.RecheckWindow,
		BatchSize:     a.cfg.LinkCheck.BatchSize,
	}, a.store, detector)
}
