// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/onsale/internal/metrics"
	"github.com/tomtom215/onsale/internal/models"
)

// DuckDBConfig configures the embedded store.
type DuckDBConfig struct {
	// Path is the database file, or ":memory:".
	Path string
}

// DuckDB is the embedded single-process store. Writes are serialized by
// writeMu so the check-then-write upsert and the guarded delivery update
// behave exactly like their single-statement postgres counterparts.
type DuckDB struct {
	conn    *sql.DB
	writeMu sync.Mutex
	now     func() time.Time
}

// NewDuckDB opens the database file, creating its directory if needed.
func NewDuckDB(cfg DuckDBConfig) (*DuckDB, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	dsn := path
	if path == ":memory:" {
		dsn = ""
	}
	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DuckDB{conn: conn, now: time.Now}, nil
}

// Engine implements Store.
func (d *DuckDB) Engine() string { return EngineDuckDB }

// Ping implements Store.
func (d *DuckDB) Ping(ctx context.Context) error { return d.conn.PingContext(ctx) }

// Close implements Store.
func (d *DuckDB) Close() error { return d.conn.Close() }

// Migrate implements Store.
func (d *DuckDB) Migrate(ctx context.Context) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "migrate", start, err) }(time.Now())

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	for _, stmt := range duckdbSchema {
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// eventFields are the ingestion-owned columns compared by UpsertEvent.
type eventFields struct {
	name      string
	artistID  sql.NullString
	venueID   string
	eventDate sql.NullTime
	saleStart time.Time
	url       string
	imageURL  sql.NullString
	region    string
	presales  sql.NullString
}

func fieldsOf(e *models.Event) eventFields {
	f := eventFields{
		name:      e.Name,
		venueID:   e.VenueID,
		saleStart: e.SaleStart.UTC(),
		url:       e.URL,
		region:    e.Region,
	}
	if e.ArtistID != nil {
		f.artistID = sql.NullString{String: *e.ArtistID, Valid: true}
	}
	if e.EventDate != nil {
		f.eventDate = sql.NullTime{Time: e.EventDate.UTC(), Valid: true}
	}
	if e.ImageURL != nil {
		f.imageURL = sql.NullString{String: *e.ImageURL, Valid: true}
	}
	if raw, ok := encodePresales(e.Presales).(string); ok {
		f.presales = sql.NullString{String: raw, Valid: true}
	}
	return f
}

func (f eventFields) equal(o eventFields) bool {
	sameTime := func(a, b time.Time) bool { return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond)) }
	return f.name == o.name &&
		f.artistID == o.artistID &&
		f.venueID == o.venueID &&
		f.eventDate.Valid == o.eventDate.Valid &&
		(!f.eventDate.Valid || sameTime(f.eventDate.Time, o.eventDate.Time)) &&
		sameTime(f.saleStart, o.saleStart) &&
		f.url == o.url &&
		f.imageURL == o.imageURL &&
		f.region == o.region &&
		f.presales == o.presales
}

// UpsertEvent implements Store.
func (d *DuckDB) UpsertEvent(ctx context.Context, event *models.Event) (result UpsertResult, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "upsert_event", start, err) }(time.Now())

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	now := d.now().UTC()
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return UpsertUnchanged, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if event.Artist != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO artists (id, name, notable, updated_at) VALUES (?, ?, FALSE, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
			event.Artist.ID, event.Artist.Name, now); err != nil {
			return UpsertUnchanged, fmt.Errorf("upsert artist %s: %w", event.Artist.ID, err)
		}
	}
	if v := event.Venue; v != nil {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO venues (id, name, city, state, country) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET name = excluded.name, city = excluded.city, state = excluded.state, country = excluded.country`,
			v.ID, v.Name, v.City, v.State, optionalString(v.Country)); err != nil {
			return UpsertUnchanged, fmt.Errorf("upsert venue %s: %w", v.ID, err)
		}
	}

	incoming := fieldsOf(event)
	var existing eventFields
	err = tx.QueryRowContext(ctx, `
		SELECT name, artist_id, venue_id, event_date, sale_start, url, image_url, region, presales
		FROM events WHERE id = ?`, event.ID).Scan(
		&existing.name, &existing.artistID, &existing.venueID, &existing.eventDate,
		&existing.saleStart, &existing.url, &existing.imageURL, &existing.region, &existing.presales)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx, `
			INSERT INTO events (id, name, artist_id, venue_id, event_date, sale_start, url, image_url, region, presales, first_seen_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.ID, event.Name, nullString(event.ArtistID), event.VenueID, nullTime(event.EventDate),
			event.SaleStart.UTC(), event.URL, nullString(event.ImageURL), event.Region, incoming.presales, now, now)
		if err != nil {
			return UpsertUnchanged, fmt.Errorf("insert event %s: %w", event.ID, err)
		}
		result = UpsertInserted
	case err != nil:
		return UpsertUnchanged, fmt.Errorf("read event %s: %w", event.ID, err)
	case existing.equal(incoming):
		result = UpsertUnchanged
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE events SET name = ?, artist_id = ?, venue_id = ?, event_date = ?, sale_start = ?,
				url = ?, image_url = ?, region = ?, presales = ?, updated_at = ?
			WHERE id = ?`,
			event.Name, nullString(event.ArtistID), event.VenueID, nullTime(event.EventDate), event.SaleStart.UTC(),
			event.URL, nullString(event.ImageURL), event.Region, incoming.presales, now, event.ID)
		if err != nil {
			return UpsertUnchanged, fmt.Errorf("update event %s: %w", event.ID, err)
		}
		result = UpsertUpdated
	}

	if err := tx.Commit(); err != nil {
		return UpsertUnchanged, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

// FindDeliveryCandidates implements Store.
func (d *DuckDB) FindDeliveryCandidates(ctx context.Context, q CandidateQuery) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "find_candidates", start, err) }(time.Now())

	if q.Now.IsZero() {
		q.Now = d.now()
	}
	query, args := candidatesQuery(EngineDuckDB, q)
	return d.queryEvents(ctx, query, args)
}

// DeliveryState implements Store.
func (d *DuckDB) DeliveryState(ctx context.Context, eventID string) (state models.DeliveryState, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "delivery_state", start, err) }(time.Now())

	event, err := d.GetEvent(ctx, eventID)
	if err != nil {
		return models.DeliveryState{}, err
	}
	return event.Delivery, nil
}

// RecordDeliveryAttempt implements Store.
func (d *DuckDB) RecordDeliveryAttempt(ctx context.Context, eventID string, expectedAttempts int, outcome models.Outcome, maxAttempts int) (result RecordResult, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "record_attempt", start, err) }(time.Now())

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	plan := planRecord(expectedAttempts, outcome, maxAttempts, d.now())
	query, args := recordUpdateQuery(EngineDuckDB, eventID, expectedAttempts, maxAttempts, plan)
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return RecordResult{}, fmt.Errorf("record delivery attempt for %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return RecordResult{}, fmt.Errorf("record delivery attempt for %s: %w", eventID, err)
	}
	if n == 0 {
		return RecordResult{Applied: false}, nil
	}
	return plan.result(), nil
}

// GetEvent implements Store.
func (d *DuckDB) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	query, args := eventByIDQuery(EngineDuckDB, eventID)
	event, err := scanEvent(d.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

// ListEventsByStatus implements Store.
func (d *DuckDB) ListEventsByStatus(ctx context.Context, status models.DeliveryStatus, limit int) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "list_events", start, err) }(time.Now())

	query, args := eventsByStatusQuery(EngineDuckDB, status, limit)
	return d.queryEvents(ctx, query, args)
}

// ListUpcomingEvents implements Store.
func (d *DuckDB) ListUpcomingEvents(ctx context.Context, q UpcomingQuery) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "list_upcoming", start, err) }(time.Now())

	if q.Now.IsZero() {
		q.Now = d.now()
	}
	query, args := upcomingQuery(EngineDuckDB, q)
	return d.queryEvents(ctx, query, args)
}

// SetReminder implements Store. A nil at clears the reminder.
func (d *DuckDB) SetReminder(ctx context.Context, eventID string, at *time.Time) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "set_reminder", start, err) }(time.Now())

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.conn.ExecContext(ctx, `UPDATE events SET reminder_at = ? WHERE id = ?`, nullTime(at), eventID)
	if err != nil {
		return fmt.Errorf("set reminder for %s: %w", eventID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

// DueReminders implements Store.
func (d *DuckDB) DueReminders(ctx context.Context, dueBy time.Time, limit int) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "due_reminders", start, err) }(time.Now())

	query, args := dueRemindersQuery(EngineDuckDB, dueBy, limit)
	return d.queryEvents(ctx, query, args)
}

// AdvanceReminder implements Store. It reports false when reminder_at no
// longer equals expected.
func (d *DuckDB) AdvanceReminder(ctx context.Context, eventID string, expected time.Time, next *time.Time) (applied bool, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "advance_reminder", start, err) }(time.Now())

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	query, args := advanceReminderQuery(EngineDuckDB, eventID, expected, next)
	res, err := d.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("advance reminder for %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance reminder for %s: %w", eventID, err)
	}
	return n > 0, nil
}

// EventsNeedingLinkCheck implements Store.
func (d *DuckDB) EventsNeedingLinkCheck(ctx context.Context, checkedBefore time.Time, limit int) (events []models.Event, err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "link_candidates", start, err) }(time.Now())

	query, args := linkCheckQuery(EngineDuckDB, checkedBefore, limit)
	return d.queryEvents(ctx, query, args)
}

// SetSupplementaryURL implements Store. An empty url only stamps
// link_checked_at.
func (d *DuckDB) SetSupplementaryURL(ctx context.Context, eventID, url string, checkedAt time.Time) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "set_link", start, err) }(time.Now())

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.conn.ExecContext(ctx, `
		UPDATE events SET supplementary_url = COALESCE(?, supplementary_url), link_checked_at = ?
		WHERE id = ?`, optionalString(url), checkedAt.UTC(), eventID)
	if err != nil {
		return fmt.Errorf("set supplementary url for %s: %w", eventID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return nil
}

// ListArtists implements Store.
func (d *DuckDB) ListArtists(ctx context.Context, notableOnly bool) ([]models.Artist, error) {
	query := `SELECT id, name, notable FROM artists`
	if notableOnly {
		query += ` WHERE notable = TRUE`
	}
	query += ` ORDER BY name ASC, id ASC`

	rows, err := d.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list artists: %w", err)
	}
	defer closeWithLog(rows, "rows")

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
func (d *DuckDB) SetArtistNotable(ctx context.Context, artistID string, notable bool) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "set_notable", start, err) }(time.Now())

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	res, err := d.conn.ExecContext(ctx, `UPDATE artists SET notable = ?, updated_at = ? WHERE id = ?`,
		notable, d.now().UTC(), artistID)
	if err != nil {
		return fmt.Errorf("set artist %s notable: %w", artistID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("artist %s: %w", artistID, ErrNotFound)
	}
	return nil
}

// LoadPollerState implements Store. It returns nil, nil for a region that
// has never been polled.
func (d *DuckDB) LoadPollerState(ctx context.Context, region string) (*models.PollerState, error) {
	state, err := scanPollerState(d.conn.QueryRowContext(ctx, pollerStateSelect+` WHERE region = ?`, region))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load poller state %s: %w", region, err)
	}
	return &state, nil
}

// SavePollerState implements Store.
func (d *DuckDB) SavePollerState(ctx context.Context, s *models.PollerState) (err error) {
	defer func(start time.Time) { metrics.RecordStoreQuery(EngineDuckDB, "save_poller_state", start, err) }(time.Now())

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	_, err = d.conn.ExecContext(ctx, `
		INSERT INTO poller_state (region, status, last_request_at, last_success_at, events_returned, new_events, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (region) DO UPDATE SET
			status = excluded.status,
			last_request_at = excluded.last_request_at,
			last_success_at = excluded.last_success_at,
			events_returned = excluded.events_returned,
			new_events = excluded.new_events,
			error_message = excluded.error_message`,
		s.Region, s.Status, nullTime(s.LastRequestAt), nullTime(s.LastSuccessAt),
		s.EventsReturned, s.NewEvents, optionalString(s.ErrorMessage))
	if err != nil {
		return fmt.Errorf("save poller state %s: %w", s.Region, err)
	}
	return nil
}

// ListPollerStates implements Store.
func (d *DuckDB) ListPollerStates(ctx context.Context) ([]models.PollerState, error) {
	rows, err := d.conn.QueryContext(ctx, pollerStateSelect+` ORDER BY region`)
	if err != nil {
		return nil, fmt.Errorf("list poller states: %w", err)
	}
	defer closeWithLog(rows, "rows")

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

func (d *DuckDB) queryEvents(ctx context.Context, query string, args []any) ([]models.Event, error) {
	rows, err := d.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer closeWithLog(rows, "rows")

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
