// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/models"
)

var testNow = time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)

func TestTime(t *testing.T) {
	t.Parallel()

	sale := testNow.Add(48 * time.Hour)
	tests := []struct {
		name     string
		presales []models.Presale
		now      time.Time
		want     time.Time
		wantErr  error
	}{
		{name: "general sale", want: sale.Add(-12 * time.Hour)},
		{
			name:     "earliest presale",
			presales: []models.Presale{{Name: "Verified Fan", Start: testNow.Add(24 * time.Hour)}, {Name: "Artist", Start: testNow.Add(30 * time.Hour)}},
			want:     testNow.Add(12 * time.Hour),
		},
		{
			name:     "passed presale ignored",
			presales: []models.Presale{{Name: "Fan Club", Start: testNow.Add(-time.Hour)}},
			want:     sale.Add(-12 * time.Hour),
		},
		{
			name:     "presale after general sale ignored",
			presales: []models.Presale{{Name: "Late", Start: sale.Add(time.Hour)}},
			want:     sale.Add(-12 * time.Hour),
		},
		{name: "inside lead fires now", now: sale.Add(-2 * time.Hour), want: sale.Add(-2 * time.Hour)},
		{name: "sale started", now: sale, wantErr: ErrSaleStarted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := tt.now
			if now.IsZero() {
				now = testNow
			}
			e := &models.Event{ID: "E1", SaleStart: sale, Presales: tt.presales}
			got, err := Time(e, now, 12*time.Hour)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Time = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFollowUp(t *testing.T) {
	t.Parallel()

	sale := testNow.Add(12 * time.Hour)
	e := &models.Event{ID: "E1", SaleStart: sale}

	next := FollowUp(e, testNow, time.Hour, 5*time.Minute)
	if next == nil || !next.Equal(sale.Add(-time.Hour)) {
		t.Fatalf("FollowUp = %v, want %v", next, sale.Add(-time.Hour))
	}
	// Sent as the follow-up itself: nothing further.
	if got := FollowUp(e, sale.Add(-time.Hour-2*time.Minute), time.Hour, 5*time.Minute); got != nil {
		t.Errorf("follow-up of a follow-up = %v, want nil", got)
	}
	if got := FollowUp(e, testNow, 0, 5*time.Minute); got != nil {
		t.Errorf("disabled follow-up = %v", got)
	}
}

type scheduleStore struct {
	event *models.Event
	set   *time.Time
}

func (s *scheduleStore) GetEvent(_ context.Context, id string) (*models.Event, error) {
	if s.event == nil || s.event.ID != id {
		return nil, database.ErrNotFound
	}
	return s.event, nil
}

func (s *scheduleStore) SetReminder(_ context.Context, _ string, at *time.Time) error {
	s.set = at
	return nil
}

func TestSchedule(t *testing.T) {
	t.Parallel()

	store := &scheduleStore{event: &models.Event{ID: "E1", SaleStart: testNow.Add(24 * time.Hour)}}
	at, err := Schedule(context.Background(), store, "E1", testNow, 12*time.Hour)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !at.Equal(testNow.Add(12*time.Hour)) || store.set == nil || !store.set.Equal(at) {
		t.Errorf("at = %v, stored %v", at, store.set)
	}

	if _, err := Schedule(context.Background(), store, "missing", testNow, time.Hour); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}

	store.set = nil
	if _, err := Schedule(context.Background(), store, "E1", testNow.Add(25*time.Hour), time.Hour); !errors.Is(err, ErrSaleStarted) {
		t.Errorf("started err = %v", err)
	}
	if store.set != nil {
		t.Errorf("reminder stored for a started sale: %v", store.set)
	}
}
