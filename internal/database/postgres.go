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

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/onsale/internal/metrics"
	"github.com/tomtom215/onsale/internal/models"
)

// PostgresConfig configures the shared store.
type PostgresConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// Postgres is the multi-process store. Every write is a single statement or
// a short transaction, so pollers and dispatchers in separate processes can
// share one database.
type Postgres struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgres opens and pings a pool.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create DB pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}
	return NewPostgresFromPool(pool), nil
}

// NewPostgresFromPool wraps an existing pool. Integration tests use it.
func NewPostgresFromPool(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool, now: time.Now}
}

// Engine implements Store.
func (p *Postgres) Engine() string { return EnginePostgres }

// Ping implements Store.
func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Migrate implements Store.
func (p *Postgres) Migrate(ctx context.Context) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "migrate", start, err) }(time.Now())

	for _, stmt := range postgresSchema {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

const pgUpsertEvent = `
INSERT INTO events (id, name, artist_id, venue_id, event_date, sale_start, url, image_url, region, presales, first_seen_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	artist_id = EXCLUDED.artist_id,
	venue_id = EXCLUDED.venue_id,
	event_date = EXCLUDED.event_date,
	sale_start = EXCLUDED.sale_start,
	url = EXCLUDED.url,
	image_url = EXCLUDED.image_url,
	region = EXCLUDED.region,
	presales = EXCLUDED.presales,
	updated_at = EXCLUDED.updated_at
WHERE (events.name, events.artist_id, events.venue_id, events.event_date, events.sale_start, events.url, events.image_url, events.region, events.presales)
	IS DISTINCT FROM
	(EXCLUDED.name, EXCLUDED.artist_id, EXCLUDED.venue_id, EXCLUDED.event_date, EXCLUDED.sale_start, EXCLUDED.url, EXCLUDED.image_url, EXCLUDED.region, EXCLUDED.presales)
RETURNING (xmax = 0)`

// UpsertEvent implements Store. The event row is written by one
// INSERT .. ON CONFLICT whose WHERE clause skips identical rows; delivery
// columns are never in its SET list.
func (p *Postgres) UpsertEvent(ctx context.Context, event *models.Event) (result UpsertResult, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "upsert_event", start, err) }(time.Now())

	now := p.now().UTC()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return UpsertUnchanged, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if event.Artist != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO artists (id, name, notable, updated_at) VALUES ($1, $2, FALSE, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at
			WHERE artists.name IS DISTINCT FROM EXCLUDED.name`,
			event.Artist.ID, event.Artist.Name, now); err != nil {
			return UpsertUnchanged, fmt.Errorf("upsert artist %s: %w", event.Artist.ID, err)
		}
	}

	if v := event.Venue; v != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO venues (id, name, city, state, country) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, city = EXCLUDED.city, state = EXCLUDED.state, country = EXCLUDED.country
			WHERE (venues.name, venues.city, venues.state, venues.country)
				IS DISTINCT FROM (EXCLUDED.name, EXCLUDED.city, EXCLUDED.state, EXCLUDED.country)`,
			v.ID, v.Name, v.City, v.State, optionalString(v.Country)); err != nil {
			return UpsertUnchanged, fmt.Errorf("upsert venue %s: %w", v.ID, err)
		}
	}

	var inserted bool
	err = tx.QueryRow(ctx, pgUpsertEvent,
		event.ID, event.Name, nullString(event.ArtistID), event.VenueID,
		nullTime(event.EventDate), event.SaleStart.UTC(), event.URL,
		nullString(event.ImageURL), event.Region, encodePresales(event.Presales), now,
	).Scan(&inserted)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		result = UpsertUnchanged
	case err != nil:
		return UpsertUnchanged, fmt.Errorf("upsert event %s: %w", event.ID, err)
	case inserted:
		result = UpsertInserted
	default:
		result = UpsertUpdated
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertUnchanged, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

// FindDeliveryCandidates implements Store.
func (p *Postgres) FindDeliveryCandidates(ctx context.Context, q CandidateQuery) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "find_candidates", start, err) }(time.Now())

	if q.Now.IsZero() {
		q.Now = p.now()
	}
	query, args := candidatesQuery(EnginePostgres, q)
	return p.queryEvents(ctx, query, args)
}

// DeliveryState implements Store.
func (p *Postgres) DeliveryState(ctx context.Context, eventID string) (state models.DeliveryState, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "delivery_state", start, err) }(time.Now())

	event, err := p.GetEvent(ctx, eventID)
	if err != nil {
		return models.DeliveryState{}, err
	}
	return event.Delivery, nil
}

// RecordDeliveryAttempt implements Store.
func (p *Postgres) RecordDeliveryAttempt(ctx context.Context, eventID string, expectedAttempts int, outcome models.Outcome, maxAttempts int) (result RecordResult, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "record_attempt", start, err) }(time.Now())

	plan := planRecord(expectedAttempts, outcome, maxAttempts, p.now())
	query, args := recordUpdateQuery(EnginePostgres, eventID, expectedAttempts, maxAttempts, plan)
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return RecordResult{}, fmt.Errorf("record delivery attempt for %s: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return RecordResult{Applied: false}, nil
	}
	return plan.result(), nil
}

// GetEvent implements Store.
func (p *Postgres) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	query, args := eventByIDQuery(EnginePostgres, eventID)
	event, err := scanEvent(p.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

// ListEventsByStatus implements Store.
func (p *Postgres) ListEventsByStatus(ctx context.Context, status models.DeliveryStatus, limit int) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "list_events", start, err) }(time.Now())

	query, args := eventsByStatusQuery(EnginePostgres, status, limit)
	return p.queryEvents(ctx, query, args)
}

// ListUpcomingEvents implements Store.
func (p *Postgres) ListUpcomingEvents(ctx context.Context, q UpcomingQuery) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "list_upcoming", start, err) }(time.Now())

	if q.Now.IsZero() {
		q.Now = p.now()
	}
	query, args := upcomingQuery(EnginePostgres, q)
	return p.queryEvents(ctx, query, args)
}

// SetReminder implements Store. A nil at clears the reminder.
func (p *Postgres) SetReminder(ctx context.Context, eventID string, at *time.Time) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "set_reminder", start, err) }(time.Now())

	tag, err := p.pool.Exec(ctx, `UPDATE events SET reminder_at = $1 WHERE id = $2`, nullTime(at), eventID)
	if err != nil {
		return fmt.Errorf("set reminder for %s: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

// DueReminders implements Store.
func (p *Postgres) DueReminders(ctx context.Context, dueBy time.Time, limit int) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "due_reminders", start, err) }(time.Now())

	query, args := dueRemindersQuery(EnginePostgres, dueBy, limit)
	return p.queryEvents(ctx, query, args)
}

// AdvanceReminder implements Store. It reports false when reminder_at no
// longer equals expected.
func (p *Postgres) AdvanceReminder(ctx context.Context, eventID string, expected time.Time, next *time.Time) (applied bool, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "advance_reminder", start, err) }(time.Now())

	query, args := advanceReminderQuery(EnginePostgres, eventID, expected, next)
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("advance reminder for %s: %w", eventID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// EventsNeedingLinkCheck implements Store.
func (p *Postgres) EventsNeedingLinkCheck(ctx context.Context, checkedBefore time.Time, limit int) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "link_candidates", start, err) }(time.Now())

	query, args := linkCheckQuery(EnginePostgres, checkedBefore, limit)
	return p.queryEvents(ctx, query, args)
}

// SetSupplementaryURL implements Store. An empty url only stamps
// link_checked_at.
func (p *Postgres) SetSupplementaryURL(ctx context.Context, eventID, url string, checkedAt time.Time) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "set_link", start, err) }(time.Now())

	tag, err := p.pool.Exec(ctx, `
		UPDATE events SET supplementary_url = COALESCE($1, supplementary_url), link_checked_at = $2
		WHERE id = $3`, optionalString(url), checkedAt.UTC(), eventID)
	if err != nil {
		return fmt.Errorf("set supplementary url for %s: %w", eventID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

// ListArtists implements Store.
func (p *Postgres) ListArtists(ctx context.Context, notableOnly bool) ([]models.Artist, error) {
	query := `SELECT id, name, notable FROM artists`
	if notableOnly {
		query += ` WHERE notable = TRUE`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list artists: %w", err)
	}
	defer rows.Close()

	var artists []models.Artist
	for rows.Next() {
		var a models.Artist
		if err := rows.Scan(&a.ID, &a.Name, &a.Notable); err != nil {
			return nil, fmt.Errorf("scan artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// SetArtistNotable implements Store.
func (p *Postgres) SetArtistNotable(ctx context.Context, artistID string, notable bool) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "set_notable", start, err) }(time.Now())

	tag, err := p.pool.Exec(ctx, `UPDATE artists SET notable = $1, updated_at = $2 WHERE id = $3`,
		notable, p.now().UTC(), artistID)
	if err != nil {
		return fmt.Errorf("set artist %s notable: %w", artistID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("artist %s: %w", artistID, ErrNotFound)
	}
	return nil
}

// LoadPollerState implements Store. It returns nil, nil for a region that
// has never been polled.
func (p *Postgres) LoadPollerState(ctx context.Context, region string) (*models.PollerState, error) {
	state, err := scanPollerState(p.pool.QueryRow(ctx, pollerStateSelect+` WHERE region = $1`, region))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load poller state %s: %w", region, err)
	}
	return &state, nil
}

// SavePollerState implements Store.
func (p *Postgres) SavePollerState(ctx context.Context, s *models.PollerState) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EnginePostgres, "save_poller_state", start, err) }(time.Now())

	_, err = p.pool.Exec(ctx, `
		INSERT INTO poller_state (region, status, last_request_at, last_success_at, events_returned, new_events, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (region) DO UPDATE SET
			status = EXCLUDED.status,
			last_request_at = EXCLUDED.last_request_at,
			last_success_at = EXCLUDED.last_success_at,
			events_returned = EXCLUDED.events_returned,
			new_events = EXCLUDED.new_events,
			error_message = EXCLUDED.error_message`,
		s.Region, s.Status, nullTime(s.LastRequestAt), nullTime(s.LastSuccessAt),
		s.EventsReturned, s.NewEvents, optionalString(s.ErrorMessage))
	if err != nil {
		return fmt.Errorf("save poller state %s: %w", s.Region, err)
	}
	return nil
}

// ListPollerStates implements Store.
func (p *Postgres) ListPollerStates(ctx context.Context) ([]models.PollerState, error) {
	rows, err := p.pool.Query(ctx, pollerStateSelect+` ORDER BY region`)
	if err != nil {
		return nil, fmt.Errorf("list poller states: %w", err)
	}
	defer rows.Close()

	var states []models.PollerState
	for rows.Next() {
		s, err := scanPollerState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan poller state: %w", err)
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

func (p *Postgres) queryEvents(ctx context.Context, query string, args []any) ([]models.Event, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
