// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/onsale/internal/models"
)

// ErrSaleStarted is returned when there is nothing left to remind about.
var ErrSaleStarted = errors.New("sale has already started")

// ScheduleStore is the subset of database.Store Schedule uses.
type ScheduleStore interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	SetReminder(ctx context.Context, eventID string, at *time.Time) error
}

// Schedule stores the reminder for eventID and returns when it fires.
func Schedule(ctx context.Context, store ScheduleStore, eventID string, now time.Time, lead time.Duration) (time.Time, error) {
	e, err := store.GetEvent(ctx, eventID)
	if err != nil {
		return time.Time{}, err
	}
	at, err := Time(e, now, lead)
	if err != nil {
		return time.Time{}, fmt.Errorf("event %s: %w", eventID, err)
	}
	if err := store.SetReminder(ctx, eventID, &at); err != nil {
		return time.Time{}, err
	}
	return at, nil
}

// Time returns when the reminder for e should fire: lead before the next
// presale that opens ahead of the general sale, otherwise lead before the
// general sale. A time already past is moved to now.
func Time(e *models.Event, now time.Time, lead time.Duration) (time.Time, error) {
	target := e.SaleStart
	if p, ok := e.NextPresale(now); ok && p.Start.Before(target) {
		target = p.Start
	}
	if !target.After(now) {
		return time.Time{}, ErrSaleStarted
	}
	at := target.Add(-lead)
	if at.Before(now) {
		at = now
	}
	return at.UTC(), nil
}

// FollowUp returns the reminder to keep after one was sent at now: followUp
// before the general sale, or nil when that is not after the current
// lookahead window.
func FollowUp(e *models.Event, now time.Time, followUp, lookahead time.Duration) *time.Time {
	if followUp <= 0 {
		return nil
	}
	next := e.SaleStart.Add(-followUp).UTC()
	if !next.After(now.Add(lookahead)) {
		return nil
	}
	return &next
}
