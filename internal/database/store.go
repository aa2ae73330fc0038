// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// UpsertResult reports what UpsertEvent did to the event row.
type UpsertResult int

const (
	UpsertUnchanged UpsertResult = iota
	UpsertInserted
	UpsertUpdated
)

func (r UpsertResult) String() string {
	switch r {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// CandidateQuery selects events eligible for delivery. Eligibility is always
// confirmed_sent = false, attempt_count < MaxAttempts and a next_attempt_at
// that is unset or not after Now; the remaining fields narrow it further.
type CandidateQuery struct {
	Regions        []string
	ExcludeRegions []string
	// NotableOnly: nil matches any artist, true notable only, false
	// non-notable (including events with no artist).
	NotableOnly *bool
	MaxAttempts int
	Limit       int
	Now         time.Time
	// After continues a tick's selection past the last candidate it saw,
	// in (sale_start, id) order.
	After *CandidateCursor
	// UncheckedSeenBefore holds back events that have not had a link check
	// yet until they were first seen before this instant. Zero disables it.
	UncheckedSeenBefore time.Time
}

// CandidateCursor is a position in candidate order.
type CandidateCursor struct {
	SaleStart time.Time
	ID        string
}

// CursorOf returns the cursor positioned at e.
func CursorOf(e *models.Event) *CandidateCursor {
	return &CandidateCursor{SaleStart: e.SaleStart, ID: e.ID}
}

// UpcomingQuery selects events whose public sale has not started yet,
// soonest first.
type UpcomingQuery struct {
	Now         time.Time
	NotableOnly *bool
	Limit       int
}

// RecordResult reports the effect of RecordDeliveryAttempt.
type RecordResult struct {
	// Applied is false when the optimistic check failed: another worker
	// recorded an attempt or confirmed the event first.
	Applied bool
	// Exhausted is true when this retryable attempt reached the cap.
	Exhausted    bool
	AttemptCount int
	Status       models.DeliveryStatus
}

// Store is the event store shared by pollers, dispatch and the ops API.
// Both engines give identical results for every method.
type Store interface {
	// Ingestion
	UpsertEvent(ctx context.Context, event *models.Event) (UpsertResult, error)

	// Delivery
	FindDeliveryCandidates(ctx context.Context, q CandidateQuery) ([]models.Event, error)
	DeliveryState(ctx context.Context, eventID string) (models.DeliveryState, error)
	RecordDeliveryAttempt(ctx context.Context, eventID string, expectedAttempts int, outcome models.Outcome, maxAttempts int) (RecordResult, error)

	// Operator views
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	ListEventsByStatus(ctx context.Context, status models.DeliveryStatus, limit int) ([]models.Event, error)
	ListUpcomingEvents(ctx context.Context, q UpcomingQuery) ([]models.Event, error)
	ListArtists(ctx context.Context, notableOnly bool) ([]models.Artist, error)
	SetArtistNotable(ctx context.Context, artistID string, notable bool) error

	// Supplementary links
	EventsNeedingLinkCheck(ctx context.Context, checkedBefore time.Time, limit int) ([]models.Event, error)
	SetSupplementaryURL(ctx context.Context, eventID, url string, checkedAt time.Time) error

	// Sale reminders
	SetReminder(ctx context.Context, eventID string, at *time.Time) error
	DueReminders(ctx context.Context, dueBy time.Time, limit int) ([]models.Event, error)
	AdvanceReminder(ctx context.Context, eventID string, expected time.Time, next *time.Time) (bool, error)

	// Poller bookkeeping
	LoadPollerState(ctx context.Context, region string) (*models.PollerState, error)
	SavePollerState(ctx context.Context, state *models.PollerState) error
	ListPollerStates(ctx context.Context) ([]models.PollerState, error)

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Engine() string
	Close() error
}

// Open connects to the engine named by cfg.Driver and applies the schema.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case EnginePostgres:
		store, err = NewPostgres(ctx, PostgresConfig{URL: cfg.URL, MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	case EngineDuckDB:
		store, err = NewDuckDB(DuckDBConfig{Path: cfg.Path})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		closeQuietly(store)
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return store, nil
}
