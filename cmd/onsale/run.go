// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/onsale/internal/api"
	"github.com/tomtom215/onsale/internal/logging"
	"github.com/tomtom215/onsale/internal/reminder"
	"github.com/tomtom215/onsale/internal/supervisor"
	"github.com/tomtom215/onsale/internal/supervisor/services"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run pollers, dispatch, reminders, link checks and the ops API under supervision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			return a.run(cmd.Context())
		},
	}
}

func (a *app) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	logging.Info().Str("version", version).Msg("Starting onsale")

	if err := a.openStore(ctx); err != nil {
		return err
	}
	defer a.close()

	// Build every component before starting any, so a misconfiguration
	// fails the process instead of a supervised restart loop.
	pollers, err := a.pollers(nil)
	if err != nil {
		return err
	}
	scheduler, err := a.scheduler()
	if err != nil {
		return err
	}
	var reminders *reminder.Worker
	if a.cfg.Reminders.Enabled {
		if reminders, err = a.reminderWorker(); err != nil {
			return err
		}
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	for _, p := range pollers {
		tree.AddIngestService(services.NewPollerService(p, p.Region()))
		logging.Info().Str("region", p.Region()).Msg("Catalog poller added to supervisor tree")
	}

	tree.AddDeliveryService(services.NewDispatchService(scheduler))
	for _, p := range scheduler.Pairings() {
		logging.Info().Str("pairing", p.Name).Str("channel_id", p.ChannelID).Msg("Delivery pairing configured")
	}

	if reminders != nil {
		tree.AddDeliveryService(services.NewReminderService(reminders))
	}

	if a.cfg.LinkCheck.Enabled {
		tree.AddDataService(services.NewLinkCheckService(a.linkWorker()))
	}

	if a.cfg.Server.Enabled {
		server, err := api.NewServer(a.cfg.Server, a.store, a.registry, a.cfg.Reminders.Lead)
		if err != nil {
			return fmt.Errorf("failed to create ops API server: %w", err)
		}
		tree.AddAPIService(services.NewHTTPServerService(server, 0))
		logging.Info().Str("addr", server.Addr).Msg("Ops API service added")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	// The tree returns once every service has stopped or timed out.
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport() //nolint:errcheck // tree has stopped
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Onsale stopped")
	return nil
}
