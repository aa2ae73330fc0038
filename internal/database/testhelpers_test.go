// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package database

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/onsale/internal/models"
)

// testDBSemaphore keeps a single DuckDB connection alive at a time. DuckDB
// CGO calls can hang when many parallel tests hold connections.
var testDBSemaphore = make(chan struct{}, 1)

// testNow is the clock every test store starts with.
var testNow = time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)

// setupTestStore opens an in-memory DuckDB store with the schema applied.
// The semaphore is held until the test completes.
func setupTestStore(t *testing.T) *DuckDB {
	t.Helper()

	testDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-testDBSemaphore })

	type result struct {
		db  *DuckDB
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		db, err := NewDuckDB(DuckDBConfig{Path: ":memory:"})
		if err == nil {
			err = db.Migrate(context.Background())
		}
		resultCh <- result{db: db, err: err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			t.Fatalf("Failed to create test store: %v", res.err)
		}
		res.db.now = func() time.Time { return testNow }
		t.Cleanup(func() {
			if err := res.db.Close(); err != nil {
				t.Errorf("close store: %v", err)
			}
		})
		return res.db
	case <-time.After(60 * time.Second):
		t.Fatalf("Timeout: store creation took longer than 60s")
		return nil
	}
}

type eventOpt func(*models.Event)

func withArtist(id, name string) eventOpt {
	return func(e *models.Event) {
		e.Artist = &models.Artist{ID: id, Name: name}
		e.ArtistID = &e.Artist.ID
	}
}

func withoutArtist() eventOpt {
	return func(e *models.Event) {
		e.Artist = nil
		e.ArtistID = nil
	}
}

func withRegion(region string) eventOpt {
	return func(e *models.Event) { e.Region = region }
}

func withSaleStart(ts time.Time) eventOpt {
	return func(e *models.Event) { e.SaleStart = ts.UTC() }
}

func withName(name string) eventOpt {
	return func(e *models.Event) { e.Name = name }
}

func withPresales(presales ...models.Presale) eventOpt {
	return func(e *models.Event) { e.Presales = models.SortPresales(presales) }
}

// newTestEvent builds a valid event with a default artist and venue.
func newTestEvent(t *testing.T, id string, opts ...eventOpt) *models.Event {
	t.Helper()

	artist, err := models.NewArtist("K8vZ917Gku7", "Phoebe Bridgers")
	if err != nil {
		t.Fatalf("NewArtist: %v", err)
	}
	venue, err := models.NewVenue("KovZpZA7AAEA", "Paramount Theatre", "Seattle", "WA", "US")
	if err != nil {
		t.Fatalf("NewVenue: %v", err)
	}
	eventDate := testNow.Add(90 * 24 * time.Hour)
	event, err := models.NewEvent(models.EventParams{
		ID:        id,
		Name:      "Reunion Tour",
		Artist:    artist,
		Venue:     venue,
		EventDate: &eventDate,
		SaleStart: testNow.Add(24 * time.Hour),
		URL:       "https://www.ticketmaster.com/event/" + id,
		ImageURL:  "https://s1.ticketm.net/dam/a/" + id + ".jpg",
		Region:    "pnw",
	})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	for _, opt := range opts {
		opt(event)
	}
	return event
}

func mustUpsert(t *testing.T, s Store, e *models.Event) UpsertResult {
	t.Helper()
	res, err := s.UpsertEvent(context.Background(), e)
	if err != nil {
		t.Fatalf("UpsertEvent(%s): %v", e.ID, err)
	}
	return res
}

func mustGet(t *testing.T, s Store, id string) *models.Event {
	t.Helper()
	e, err := s.GetEvent(context.Background(), id)
	if err != nil {
		t.Fatalf("GetEvent(%s): %v", id, err)
	}
	return e
}

func eventIDs(events []models.Event) []string {
	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	return ids
}

func boolPtr(b bool) *bool { return &b }
