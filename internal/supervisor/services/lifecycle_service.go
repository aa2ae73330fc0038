// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package services

import (
	"context"
	"fmt"

	"github.com/tomtom215/onsale/internal/logging"
)

// StartStopComponent is the lifecycle shared by *catalog.Poller,
// *dispatch.Scheduler and the reminder and link check workers.
type StartStopComponent interface {
	Start(ctx context.Context) error
	Stop() error
}

// LifecycleService adapts a StartStopComponent to suture's Serve pattern:
// Start, wait for cancellation, then Stop.
type LifecycleService struct {
	component StartStopComponent
	name      string
}

// NewLifecycleService wraps component under name.
func NewLifecycleService(component StartStopComponent, name string) *LifecycleService {
	return &LifecycleService{component: component, name: name}
}

// NewPollerService wraps the catalog poller of one region.
func NewPollerService(poller StartStopComponent, region string) *LifecycleService {
	return NewLifecycleService(poller, "poller-"+region)
}

// NewDispatchService wraps the dispatch scheduler.
func NewDispatchService(scheduler StartStopComponent) *LifecycleService {
	return NewLifecycleService(scheduler, "dispatch-scheduler")
}

// NewReminderService wraps the sale reminder worker.
func NewReminderService(worker StartStopComponent) *LifecycleService {
	return NewLifecycleService(worker, "reminder-worker")
}

// NewLinkCheckService wraps the supplementary link worker.
func NewLinkCheckService(worker StartStopComponent) *LifecycleService {
	return NewLifecycleService(worker, "linkcheck-worker")
}

// Serve implements suture.Service. A Start failure is returned so suture
// restarts the service with backoff.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}
	logging.Debug().Str("service", s.name).Msg("Service started")

	<-ctx.Done()

	if err := s.component.Stop(); err != nil {
		return fmt.Errorf("%s stop failed: %w", s.name, err)
	}
	logging.Debug().Str("service", s.name).Msg("Service stopped")
	return ctx.Err()
}

// String implements fmt.Stringer for suture's log lines.
func (s *LifecycleService) String() string {
	return s.name
}
