// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package api

import (
	"context"
	"time"

	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/models"
)

// Store is the part of database.Store the ops API reads and writes.
type Store interface {
	Ping(ctx context.Context) error
	Engine() string
	ListPollerStates(ctx context.Context) ([]models.PollerState, error)
	ListEventsByStatus(ctx context.Context, status models.DeliveryStatus, limit int) ([]models.Event, error)
	ListArtists(ctx context.Context, notableOnly bool) ([]models.Artist, error)
	SetArtistNotable(ctx context.Context, artistID string, notable bool) error
	ListUpcomingEvents(ctx context.Context, q database.UpcomingQuery) ([]models.Event, error)
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	SetReminder(ctx context.Context, eventID string, at *time.Time) error
}

// RegionLister is satisfied by *config.Registry.
type RegionLister interface {
	Select(ids []string) ([]config.RegionConfig, error)
}

// Handler holds the dependencies of every route.
type Handler struct {
	store        Store
	regions      RegionLister
	startTime    time.Time
	readyTimeout time.Duration
	reminderLead time.Duration
}

// NewHandler builds a Handler. reminderLead is used when a reminder
// request names no lead.
func NewHandler(store Store, regions RegionLister, reminderLead time.Duration) *Handler {
	return &Handler{
		store:        store,
		regions:      regions,
		startTime:    time.Now(),
		readyTimeout: 2 * time.Second,
		reminderLead: reminderLead,
	}
}
