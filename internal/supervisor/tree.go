// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration. Zero fields take the
// values from DefaultTreeConfig.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the failure decay rate in seconds.
	FailureDecay float64

	// FailureBackoff is the wait once the threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long a service may take to stop. It must
	// exceed the slowest in-flight tick (one send timeout per pairing).
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig matches suture's own defaults, with a longer shutdown
// timeout so a dispatch tick can finish its current send.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

// SupervisorTree is the process supervision hierarchy:
//
//	onsale
//	├── data-layer      link-check worker
//	├── ingest-layer    one catalog poller per region
//	├── delivery-layer  dispatch scheduler
//	└── api-layer       ops HTTP server
//
// A poller crashing on a bad region does not stop delivery of events
// already stored, and a flapping ops server does not touch either.
type SupervisorTree struct {
	root     *suture.Supervisor
	data     *suture.Supervisor
	ingest   *suture.Supervisor
	delivery *suture.Supervisor
	api      *suture.Supervisor
	config   TreeConfig
}

// NewSupervisorTree builds the tree. Supervisor events are logged through
// logger.
func NewSupervisorTree(logger *slog.Logger, config TreeConfig) (*SupervisorTree, error) {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}

	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	rootSpec := childSpec
	rootSpec.EventHook = handler.MustHook()

	t := &SupervisorTree{
		root:     suture.New("onsale", rootSpec),
		data:     suture.New("data-layer", childSpec),
		ingest:   suture.New("ingest-layer", childSpec),
		delivery: suture.New("delivery-layer", childSpec),
		api:      suture.New("api-layer", childSpec),
		config:   config,
	}

	t.root.Add(t.data)
	t.root.Add(t.ingest)
	t.root.Add(t.delivery)
	t.root.Add(t.api)

	return t, nil
}

// Root returns the root supervisor.
func (t *SupervisorTree) Root() *suture.Supervisor {
	return t.root
}

// AddDataService adds background data maintenance such as link checking.
func (t *SupervisorTree) AddDataService(svc suture.Service) suture.ServiceToken {
	return t.data.Add(svc)
}

// AddIngestService adds a catalog poller.
func (t *SupervisorTree) AddIngestService(svc suture.Service) suture.ServiceToken {
	return t.ingest.Add(svc)
}

// AddDeliveryService adds the dispatch scheduler.
func (t *SupervisorTree) AddDeliveryService(svc suture.Service) suture.ServiceToken {
	return t.delivery.Add(svc)
}

// AddAPIService adds the ops HTTP server.
func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// removeIngestService stops and removes a poller added with AddIngestService.
func (t *SupervisorTree) removeIngestService(token suture.ServiceToken) error {
	return t.ingest.Remove(token)
}

// Serve runs the tree until ctx is canceled.
func (t *SupervisorTree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground runs the tree in a goroutine. The channel receives the
// result once the tree has stopped.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services in any layer that missed the
// shutdown timeout. suture only reports a supervisor's direct children, so
// each layer is asked separately. It blocks until the tree has stopped.
func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	var all []suture.UnstoppedService
	for _, sup := range []*suture.Supervisor{t.root, t.data, t.ingest, t.delivery, t.api} {
		report, err := sup.UnstoppedServiceReport()
		if err != nil {
			return nil, err
		}
		all = append(all, report...)
	}
	return all, nil
}
