// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package database

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/onsale/internal/logging"
	"github.com/tomtom215/onsale/internal/models"
)

// queryBuilder collects bind arguments and emits the engine's placeholder
// syntax: $n for postgres, ? for duckdb.
type queryBuilder struct {
	numbered bool
	args     []any
}

func newQueryBuilder(engine string) *queryBuilder {
	return &queryBuilder{numbered: engine == EnginePostgres}
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	if b.numbered {
		return "$" + strconv.Itoa(len(b.args))
	}
	return "?"
}

func (b *queryBuilder) list(values []string) string {
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = b.arg(v)
	}
	return strings.Join(ph, ", ")
}

// eventSelect returns events joined with their artist and venue, in the
// column order scanEvent expects.
const eventSelect = `SELECT
	e.id, e.name, e.artist_id, a.name, COALESCE(a.notable, FALSE),
	e.venue_id, v.name, v.city, v.state, v.country,
	e.event_date, e.sale_start, e.url, e.image_url, e.region, e.supplementary_url,
	e.confirmed_sent, e.attempt_count, e.last_attempt_at, e.last_error,
	e.next_attempt_at, e.delivery_status, e.external_message_id,
	e.presales, e.reminder_at
FROM events e
LEFT JOIN artists a ON a.id = e.artist_id
LEFT JOIN venues v ON v.id = e.venue_id`

func candidatesQuery(engine string, q CandidateQuery) (string, []any) {
	b := newQueryBuilder(engine)
	var sb strings.Builder
	sb.WriteString(eventSelect)
	sb.WriteString("\nWHERE e.confirmed_sent = FALSE")
	sb.WriteString(" AND e.attempt_count < " + b.arg(q.MaxAttempts))
	sb.WriteString(" AND (e.next_attempt_at IS NULL OR e.next_attempt_at <= " + b.arg(q.Now.UTC()) + ")")
	if len(q.Regions) > 0 {
		sb.WriteString(" AND e.region IN (" + b.list(q.Regions) + ")")
	}
	if len(q.ExcludeRegions) > 0 {
		sb.WriteString(" AND e.region NOT IN (" + b.list(q.ExcludeRegions) + ")")
	}
	if q.NotableOnly != nil {
		sb.WriteString(" AND COALESCE(a.notable, FALSE) = " + b.arg(*q.NotableOnly))
	}
	if !q.UncheckedSeenBefore.IsZero() {
		sb.WriteString(" AND (e.link_checked_at IS NOT NULL OR e.supplementary_url IS NOT NULL OR e.first_seen_at <= " +
			b.arg(q.UncheckedSeenBefore.UTC()) + ")")
	}
	if q.After != nil {
		saleStart := b.arg(q.After.SaleStart.UTC())
		sb.WriteString(" AND (e.sale_start > " + saleStart +
			" OR (e.sale_start = " + b.arg(q.After.SaleStart.UTC()) + " AND e.id > " + b.arg(q.After.ID) + "))")
	}
	sb.WriteString("\nORDER BY e.sale_start ASC, e.id ASC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + b.arg(q.Limit))
	}
	return sb.String(), b.args
}

func eventByIDQuery(engine, eventID string) (string, []any) {
	b := newQueryBuilder(engine)
	return eventSelect + "\nWHERE e.id = " + b.arg(eventID), b.args
}

func eventsByStatusQuery(engine string, status models.DeliveryStatus, limit int) (string, []any) {
	b := newQueryBuilder(engine)
	query := eventSelect
	if status != "" {
		query += "\nWHERE e.delivery_status = " + b.arg(string(status))
	}
	query += "\nORDER BY e.sale_start DESC, e.id ASC"
	if limit > 0 {
		query += " LIMIT " + b.arg(limit)
	}
	return query, b.args
}

func upcomingQuery(engine string, q UpcomingQuery) (string, []any) {
	b := newQueryBuilder(engine)
	query := eventSelect + "\nWHERE e.sale_start >= " + b.arg(q.Now.UTC())
	if q.NotableOnly != nil {
		query += " AND COALESCE(a.notable, FALSE) = " + b.arg(*q.NotableOnly)
	}
	query += "\nORDER BY e.sale_start ASC, e.id ASC"
	if q.Limit > 0 {
		query += " LIMIT " + b.arg(q.Limit)
	}
	return query, b.args
}

func dueRemindersQuery(engine string, dueBy time.Time, limit int) (string, []any) {
	b := newQueryBuilder(engine)
	query := eventSelect + `
WHERE e.reminder_at IS NOT NULL
  AND e.reminder_at <= ` + b.arg(dueBy.UTC()) + `
ORDER BY e.reminder_at ASC, e.id ASC`
	if limit > 0 {
		query += " LIMIT " + b.arg(limit)
	}
	return query, b.args
}

// advanceReminderQuery moves reminder_at only while it still holds the
// value the reminder worker read.
func advanceReminderQuery(engine, eventID string, expected time.Time, next *time.Time) (string, []any) {
	b := newQueryBuilder(engine)
	query := `UPDATE events SET reminder_at = ` + b.arg(nullTime(next)) + `
WHERE id = ` + b.arg(eventID) + ` AND reminder_at = ` + b.arg(expected.UTC())
	return query, b.args
}

func linkCheckQuery(engine string, checkedBefore time.Time, limit int) (string, []any) {
	b := newQueryBuilder(engine)
	query := eventSelect + `
WHERE e.supplementary_url IS NULL
  AND e.confirmed_sent = FALSE
  AND (e.link_checked_at IS NULL OR e.link_checked_at < ` + b.arg(checkedBefore.UTC()) + `)
ORDER BY e.sale_start ASC, e.id ASC`
	if limit > 0 {
		query += " LIMIT " + b.arg(limit)
	}
	return query, b.args
}

// recordUpdateQuery applies plan only while the row still matches the
// version the caller read.
func recordUpdateQuery(engine, eventID string, expected, maxAttempts int, p recordPlan) (string, []any) {
	b := newQueryBuilder(engine)
	query := `UPDATE events SET
	confirmed_sent = ` + b.arg(p.confirmed) + `,
	attempt_count = ` + b.arg(p.attemptCount) + `,
	last_attempt_at = ` + b.arg(p.attemptAt) + `,
	last_error = ` + b.arg(nullString(p.lastError)) + `,
	next_attempt_at = ` + b.arg(nullTime(p.nextAttemptAt)) + `,
	delivery_status = ` + b.arg(string(p.status)) + `,
	external_message_id = COALESCE(` + b.arg(nullString(p.externalID)) + `, external_message_id)
WHERE id = ` + b.arg(eventID) + `
  AND confirmed_sent = FALSE
  AND attempt_count = ` + b.arg(expected) + `
  AND attempt_count < ` + b.arg(maxAttempts)
	return query, b.args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.Event, error) {
	var (
		e                                       models.Event
		artistID, artistName                    sql.NullString
		notable                                 bool
		venueName, city, state, country         sql.NullString
		eventDate, lastAttempt, nextAttempt     sql.NullTime
		imageURL, supplementary, lastErr, extID sql.NullString
		status                                  string
		presales                                sql.NullString
		reminderAt                              sql.NullTime
	)
	err := row.Scan(
		&e.ID, &e.Name, &artistID, &artistName, &notable,
		&e.VenueID, &venueName, &city, &state, &country,
		&eventDate, &e.SaleStart, &e.URL, &imageURL, &e.Region, &supplementary,
		&e.Delivery.ConfirmedSent, &e.Delivery.AttemptCount, &lastAttempt, &lastErr,
		&nextAttempt, &status, &extID,
		&presales, &reminderAt,
	)
	if err != nil {
		return models.Event{}, err
	}

	if artistID.Valid {
		e.ArtistID = &artistID.String
		e.Artist = &models.Artist{ID: artistID.String, Name: artistName.String, Notable: notable}
	}
	e.Venue = &models.Venue{
		ID:      e.VenueID,
		Name:    venueName.String,
		City:    city.String,
		State:   state.String,
		Country: country.String,
	}
	e.SaleStart = e.SaleStart.UTC()
	e.EventDate = timePtr(eventDate)
	e.ImageURL = stringPtr(imageURL)
	e.SupplementaryURL = stringPtr(supplementary)
	e.Delivery.LastAttemptAt = timePtr(lastAttempt)
	e.Delivery.LastError = stringPtr(lastErr)
	e.Delivery.NextAttemptAt = timePtr(nextAttempt)
	e.Delivery.Status = models.DeliveryStatus(status)
	e.Delivery.ExternalMessageID = stringPtr(extID)
	e.Presales = decodePresales(e.ID, presales)
	e.ReminderAt = timePtr(reminderAt)
	return e, nil
}

// encodePresales stores presales as a JSON array, NULL when there are none.
func encodePresales(presales []models.Presale) any {
	if len(presales) == 0 {
		return nil
	}
	raw, err := json.Marshal(presales)
	if err != nil {
		return nil
	}
	return string(raw)
}

func decodePresales(eventID string, ns sql.NullString) []models.Presale {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var presales []models.Presale
	if err := json.Unmarshal([]byte(ns.String), &presales); err != nil {
		logging.Warn().Err(err).Str("event_id", eventID).Msg("Ignoring unreadable presale data")
		return nil
	}
	return presales
}

// recordPlan is the new delivery state for one attempt.
type recordPlan struct {
	attemptCount  int
	attemptAt     time.Time
	confirmed     bool
	status        models.DeliveryStatus
	lastError     *string
	nextAttemptAt *time.Time
	externalID    *string
	exhausted     bool
}

// planRecord derives the delivery columns after an attempt. Every attempt
// counts, whatever its outcome.
func planRecord(expected int, o models.Outcome, maxAttempts int, now time.Time) recordPlan {
	now = now.UTC()
	p := recordPlan{attemptCount: expected + 1, attemptAt: now}

	switch o.Kind {
	case models.OutcomeConfirmed:
		p.confirmed = true
		p.status = models.DeliverySent
		if o.ExternalID != "" {
			id := o.ExternalID
			p.externalID = &id
		}
	case models.OutcomeTerminal:
		p.confirmed = true
		p.status = models.DeliverySuppressed
		msg := o.ErrorText()
		p.lastError = &msg
	default:
		msg := o.ErrorText()
		p.lastError = &msg
		p.status = models.DeliveryRetrying
		if o.RetryAfter > 0 {
			next := now.Add(o.RetryAfter)
			p.nextAttemptAt = &next
		}
		if p.attemptCount >= maxAttempts {
			p.status = models.DeliveryExhausted
			p.exhausted = true
		}
	}
	return p
}

func (p recordPlan) result() RecordResult {
	return RecordResult{
		Applied:      true,
		Exhausted:    p.exhausted,
		AttemptCount: p.attemptCount,
		Status:       p.status,
	}
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func optionalString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const pollerStateSelect = `SELECT region, status, last_request_at, last_success_at, events_returned, new_events, error_message FROM poller_state`

func scanPollerState(row rowScanner) (models.PollerState, error) {
	var (
		s                    models.PollerState
		lastReq, lastSuccess sql.NullTime
		errMsg               sql.NullString
	)
	if err := row.Scan(&s.Region, &s.Status, &lastReq, &lastSuccess, &s.EventsReturned, &s.NewEvents, &errMsg); err != nil {
		return models.PollerState{}, err
	}
	s.LastRequestAt = timePtr(lastReq)
	s.LastSuccessAt = timePtr(lastSuccess)
	s.ErrorMessage = errMsg.String
	return s, nil
}
