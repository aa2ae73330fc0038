// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package database

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/onsale/internal/models"
)

const testMaxAttempts = 3

func defaultCandidates() CandidateQuery {
	return CandidateQuery{MaxAttempts: testMaxAttempts, Limit: 10, Now: testNow}
}

func TestDuckDB_MigrateIsIdempotent(t *testing.T) {
	s := setupTestStore(t)

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if s.Engine() != EngineDuckDB {
		t.Errorf("Engine = %q", s.Engine())
	}
}

func TestDuckDB_UpsertEvent_Dedup(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if got := mustUpsert(t, s, newTestEvent(t, "vv1A")); got != UpsertInserted {
		t.Fatalf("first upsert = %v, want inserted", got)
	}
	if got := mustUpsert(t, s, newTestEvent(t, "vv1A")); got != UpsertUnchanged {
		t.Errorf("identical upsert = %v, want unchanged", got)
	}
	if got := mustUpsert(t, s, newTestEvent(t, "vv1A", withName("Reunion Tour 2025"))); got != UpsertUpdated {
		t.Errorf("changed upsert = %v, want updated", got)
	}

	events, err := s.ListEventsByStatus(ctx, "", 0)
	if err != nil {
		t.Fatalf("ListEventsByStatus: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d rows, want 1", len(events))
	}
	if events[0].Name != "Reunion Tour 2025" {
		t.Errorf("Name = %q", events[0].Name)
	}
}

func TestDuckDB_GetEvent_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	want := newTestEvent(t, "vv1B")
	mustUpsert(t, s, want)

	got := mustGet(t, s, "vv1B")
	if got.Name != want.Name || got.URL != want.URL || got.Region != want.Region {
		t.Errorf("scalar fields differ: %+v", got)
	}
	if !got.SaleStart.Equal(want.SaleStart) {
		t.Errorf("SaleStart = %v, want %v", got.SaleStart, want.SaleStart)
	}
	if got.EventDate == nil || !got.EventDate.Equal(*want.EventDate) {
		t.Errorf("EventDate = %v, want %v", got.EventDate, want.EventDate)
	}
	if got.Artist == nil || got.Artist.Name != "Phoebe Bridgers" || got.Artist.Notable {
		t.Errorf("Artist = %+v", got.Artist)
	}
	if got.Venue == nil || got.Venue.City != "Seattle" || got.Venue.State != "WA" || got.Venue.Country != "US" {
		t.Errorf("Venue = %+v", got.Venue)
	}
	if got.ImageURL == nil || *got.ImageURL != *want.ImageURL {
		t.Errorf("ImageURL = %v", got.ImageURL)
	}
	if got.Delivery.Status != models.DeliveryPending || got.Delivery.ConfirmedSent || got.Delivery.AttemptCount != 0 {
		t.Errorf("Delivery = %+v", got.Delivery)
	}

	_, err := s.GetEvent(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing event err = %v, want ErrNotFound", err)
	}
}

func TestDuckDB_UpsertEvent_PreservesDeliveryAndNotability(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, newTestEvent(t, "vv1C"))
	if err := s.SetArtistNotable(ctx, "K8vZ917Gku7", true); err != nil {
		t.Fatalf("SetArtistNotable: %v", err)
	}
	res, err := s.RecordDeliveryAttempt(ctx, "vv1C", 0, models.Retryable(errors.New("HTTP 503"), 0), testMaxAttempts)
	if err != nil || !res.Applied {
		t.Fatalf("RecordDeliveryAttempt = %+v, %v", res, err)
	}

	if got := mustUpsert(t, s, newTestEvent(t, "vv1C", withName("Renamed"))); got != UpsertUpdated {
		t.Fatalf("upsert = %v, want updated", got)
	}

	e := mustGet(t, s, "vv1C")
	if !e.IsNotable() {
		t.Error("re-ingestion must not reset artist notability")
	}
	if e.Delivery.AttemptCount != 1 || e.Delivery.Status != models.DeliveryRetrying {
		t.Errorf("delivery state changed by ingestion: %+v", e.Delivery)
	}
	if e.Delivery.LastError == nil || *e.Delivery.LastError != "HTTP 503" {
		t.Errorf("LastError = %v", e.Delivery.LastError)
	}
}

func TestDuckDB_FindDeliveryCandidates_OrderAndLimit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	// E2 sells first even though E1 was ingested first.
	mustUpsert(t, s, newTestEvent(t, "E1", withSaleStart(testNow.Add(48*time.Hour))))
	mustUpsert(t, s, newTestEvent(t, "E2", withSaleStart(testNow.Add(24*time.Hour))))
	mustUpsert(t, s, newTestEvent(t, "E0", withSaleStart(testNow.Add(24*time.Hour))))

	got, err := s.FindDeliveryCandidates(ctx, defaultCandidates())
	if err != nil {
		t.Fatalf("FindDeliveryCandidates: %v", err)
	}
	if want := []string{"E0", "E2", "E1"}; !reflect.DeepEqual(eventIDs(got), want) {
		t.Errorf("order = %v, want %v", eventIDs(got), want)
	}

	q := defaultCandidates()
	q.Limit = 1
	got, err = s.FindDeliveryCandidates(ctx, q)
	if err != nil {
		t.Fatalf("FindDeliveryCandidates: %v", err)
	}
	if want := []string{"E0"}; !reflect.DeepEqual(eventIDs(got), want) {
		t.Errorf("limited = %v, want %v", eventIDs(got), want)
	}
}

func TestDuckDB_FindDeliveryCandidates_SelectionIsReadOnly(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, newTestEvent(t, "vv2A"))

	for i := 0; i < 3; i++ {
		got, err := s.FindDeliveryCandidates(ctx, defaultCandidates())
		if err != nil {
			t.Fatalf("FindDeliveryCandidates: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("call %d returned %d candidates, want 1", i, len(got))
		}
	}
	if e := mustGet(t, s, "vv2A"); e.Delivery.AttemptCount != 0 {
		t.Errorf("selection changed attempt_count to %d", e.Delivery.AttemptCount)
	}
}

func TestDuckDB_FindDeliveryCandidates_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, newTestEvent(t, "notable-east", withArtist("A1", "Big Act"), withRegion("east")))
	mustUpsert(t, s, newTestEvent(t, "plain-east", withArtist("A2", "Small Act"), withRegion("east")))
	mustUpsert(t, s, newTestEvent(t, "plain-uk", withArtist("A3", "UK Act"), withRegion("uk")))
	mustUpsert(t, s, newTestEvent(t, "no-artist", withoutArtist(), withRegion("pnw")))
	if err := s.SetArtistNotable(ctx, "A1", true); err != nil {
		t.Fatalf("SetArtistNotable: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*CandidateQuery)
		want   []string
	}{
		{"all", func(*CandidateQuery) {}, []string{"no-artist", "notable-east", "plain-east", "plain-uk"}},
		{"notable only", func(q *CandidateQuery) { q.NotableOnly = boolPtr(true) }, []string{"notable-east"}},
		{"non-notable includes artistless", func(q *CandidateQuery) { q.NotableOnly = boolPtr(false) }, []string{"no-artist", "plain-east", "plain-uk"}},
		{"regions", func(q *CandidateQuery) { q.Regions = []string{"uk"} }, []string{"plain-uk"}},
		{"exclude regions", func(q *CandidateQuery) {
			q.ExcludeRegions = []string{"uk"}
			q.NotableOnly = boolPtr(false)
		}, []string{"no-artist", "plain-east"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := defaultCandidates()
			tt.modify(&q)
			got, err := s.FindDeliveryCandidates(ctx, q)
			if err != nil {
				t.Fatalf("FindDeliveryCandidates: %v", err)
			}
			// All events share one sale start, so ordering falls back to id.
			if !reflect.DeepEqual(eventIDs(got), tt.want) {
				t.Errorf("got %v, want %v", eventIDs(got), tt.want)
			}
		})
	}
}

func TestDuckDB_RecordDeliveryAttempt_Confirmed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, newTestEvent(t, "vv3A"))

	res, err := s.RecordDeliveryAttempt(ctx, "vv3A", 0, models.Confirmed("1181234567890"), testMaxAttempts)
	if err != nil {
		t.Fatalf("RecordDeliveryAttempt: %v", err)
	}
	if !res.Applied || res.Status != models.DeliverySent || res.AttemptCount != 1 {
		t.Errorf("result = %+v", res)
	}

	e := mustGet(t, s, "vv3A")
	if !e.Delivery.ConfirmedSent || e.Delivery.Status != models.DeliverySent {
		t.Errorf("delivery = %+v", e.Delivery)
	}
	if e.Delivery.ExternalMessageID == nil || *e.Delivery.ExternalMessageID != "1181234567890" {
		t.Errorf("ExternalMessageID = %v", e.Delivery.ExternalMessageID)
	}
	if e.Delivery.LastAttemptAt == nil || !e.Delivery.LastAttemptAt.Equal(testNow) {
		t.Errorf("LastAttemptAt = %v", e.Delivery.LastAttemptAt)
	}

	got, _ := s.FindDeliveryCandidates(ctx, defaultCandidates())
	if len(got) != 0 {
		t.Errorf("confirmed event still selected: %v", eventIDs(got))
	}
}

func TestDuckDB_RecordDeliveryAttempt_TerminalSuppresses(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, newTestEvent(t, "vv3B"))

	res, err := s.RecordDeliveryAttempt(ctx, "vv3B", 0, models.Terminal(errors.New("Invalid Form Body")), testMaxAttempts)
	if err != nil || !res.Applied {
		t.Fatalf("RecordDeliveryAttempt = %+v, %v", res, err)
	}

	e := mustGet(t, s, "vv3B")
	if !e.Delivery.ConfirmedSent || e.Delivery.Status != models.DeliverySuppressed {
		t.Errorf("delivery = %+v", e.Delivery)
	}
	if e.Delivery.ExternalMessageID != nil {
		t.Errorf("suppressed event has external id %q", *e.Delivery.ExternalMessageID)
	}
	if e.Delivery.LastError == nil || *e.Delivery.LastError != "Invalid Form Body" {
		t.Errorf("LastError = %v", e.Delivery.LastError)
	}

	suppressed, err := s.ListEventsByStatus(ctx, models.DeliverySuppressed, 10)
	if err != nil {
		t.Fatalf("ListEventsByStatus: %v", err)
	}
	if !reflect.DeepEqual(eventIDs(suppressed), []string{"vv3B"}) {
		t.Errorf("suppressed = %v", eventIDs(suppressed))
	}
}

func TestDuckDB_RecordDeliveryAttempt_RetryAfterDefersSelection(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, newTestEvent(t, "vv3C"))

	_, err := s.RecordDeliveryAttempt(ctx, "vv3C", 0, models.Retryable(errors.New("rate limited"), 30*time.Second), testMaxAttempts)
	if err != nil {
		t.Fatalf("RecordDeliveryAttempt: %v", err)
	}

	q := defaultCandidates()
	got, _ := s.FindDeliveryCandidates(ctx, q)
	if len(got) != 0 {
		t.Errorf("event selected before next_attempt_at: %v", eventIDs(got))
	}

	q.Now = testNow.Add(30 * time.Second)
	got, _ = s.FindDeliveryCandidates(ctx, q)
	if !reflect.DeepEqual(eventIDs(got), []string{"vv3C"}) {
		t.Errorf("event not selected once next_attempt_at passed: %v", eventIDs(got))
	}
}

func TestDuckDB_RecordDeliveryAttempt_Exhaustion(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, newTestEvent(t, "vv3D"))

	var res RecordResult
	for i := 0; i < testMaxAttempts; i++ {
		var err error
		res, err = s.RecordDeliveryAttempt(ctx, "vv3D", i, models.Retryable(fmt.Errorf("HTTP 502 #%d", i), 0), testMaxAttempts)
		if err != nil || !res.Applied {
			t.Fatalf("attempt %d: %+v, %v", i, res, err)
		}
		if wantExhausted := i == testMaxAttempts-1; res.Exhausted != wantExhausted {
			t.Errorf("attempt %d Exhausted = %v, want %v", i, res.Exhausted, wantExhausted)
		}
	}

	e := mustGet(t, s, "vv3D")
	if e.Delivery.ConfirmedSent {
		t.Error("exhausted event must keep confirmed_sent=false")
	}
	if e.Delivery.AttemptCount != testMaxAttempts || e.Delivery.Status != models.DeliveryExhausted {
		t.Errorf("delivery = %+v", e.Delivery)
	}
	got, _ := s.FindDeliveryCandidates(ctx, defaultCandidates())
	if len(got) != 0 {
		t.Errorf("exhausted event still selected: %v", eventIDs(got))
	}

	// Beyond the cap nothing is written.
	res, err := s.RecordDeliveryAttempt(ctx, "vv3D", testMaxAttempts, models.Confirmed("x"), testMaxAttempts)
	if err != nil {
		t.Fatalf("RecordDeliveryAttempt: %v", err)
	}
	if res.Applied {
		t.Error("attempt beyond the cap was applied")
	}
}

func TestDuckDB_RecordDeliveryAttempt_OptimisticCheck(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, newTestEvent(t, "vv3E"))

	first, err := s.RecordDeliveryAttempt(ctx, "vv3E", 0, models.Confirmed("111"), testMaxAttempts)
	if err != nil || !first.Applied {
		t.Fatalf("first = %+v, %v", first, err)
	}
	// A second worker read attempt_count=0 before the first one wrote.
	second, err := s.RecordDeliveryAttempt(ctx, "vv3E", 0, models.Confirmed("222"), testMaxAttempts)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Applied {
		t.Error("stale attempt was applied")
	}

	e := mustGet(t, s, "vv3E")
	if *e.Delivery.ExternalMessageID != "111" || e.Delivery.AttemptCount != 1 {
		t.Errorf("delivery = %+v", e.Delivery)
	}
}

func TestDuckDB_RecordDeliveryAttempt_Concurrent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, newTestEvent(t, "vv3F"))

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.RecordDeliveryAttempt(ctx, "vv3F", 0, models.Confirmed(fmt.Sprintf("msg-%d", i)), testMaxAttempts)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if applied != 1 {
		t.Errorf("applied = %d, want exactly 1", applied)
	}
}

func TestDuckDB_DeliveryState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	mustUpsert(t, s, newTestEvent(t, "vv4A"))

	before, err := s.DeliveryState(ctx, "vv4A")
	if err != nil {
		t.Fatalf("DeliveryState: %v", err)
	}
	if _, err := s.RecordDeliveryAttempt(ctx, "vv4A", 0, models.Retryable(errors.New("timeout"), 0), testMaxAttempts); err != nil {
		t.Fatalf("RecordDeliveryAttempt: %v", err)
	}
	after, err := s.DeliveryState(ctx, "vv4A")
	if err != nil {
		t.Fatalf("DeliveryState: %v", err)
	}
	if before.SameVersion(after) {
		t.Error("version should change after an attempt")
	}

	if _, err := s.DeliveryState(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestDuckDB_ListEventsByStatus(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, newTestEvent(t, "early", withSaleStart(testNow.Add(time.Hour))))
	mustUpsert(t, s, newTestEvent(t, "late", withSaleStart(testNow.Add(2*time.Hour))))
	if _, err := s.RecordDeliveryAttempt(ctx, "late", 0, models.Confirmed("1"), testMaxAttempts); err != nil {
		t.Fatalf("RecordDeliveryAttempt: %v", err)
	}

	tests := []struct {
		status models.DeliveryStatus
		want   []string
	}{
		{"", []string{"late", "early"}},
		{models.DeliveryPending, []string{"early"}},
		{models.DeliverySent, []string{"late"}},
		{models.DeliveryExhausted, nil},
	}
	for _, tt := range tests {
		got, err := s.ListEventsByStatus(ctx, tt.status, 0)
		if err != nil {
			t.Fatalf("ListEventsByStatus(%q): %v", tt.status, err)
		}
		ids := eventIDs(got)
		if len(ids) == 0 {
			ids = nil
		}
		if !reflect.DeepEqual(ids, tt.want) {
			t.Errorf("ListEventsByStatus(%q) = %v, want %v", tt.status, ids, tt.want)
		}
	}
}

func TestDuckDB_Artists(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, newTestEvent(t, "a1", withArtist("A2", "Zola")))
	mustUpsert(t, s, newTestEvent(t, "a2", withArtist("A1", "Adele")))

	all, err := s.ListArtists(ctx, false)
	if err != nil {
		t.Fatalf("ListArtists: %v", err)
	}
	if len(all) != 2 || all[0].Name != "Adele" || all[1].Name != "Zola" {
		t.Errorf("ListArtists = %+v", all)
	}

	if err := s.SetArtistNotable(ctx, "A2", true); err != nil {
		t.Fatalf("SetArtistNotable: %v", err)
	}
	notable, err := s.ListArtists(ctx, true)
	if err != nil {
		t.Fatalf("ListArtists: %v", err)
	}
	if len(notable) != 1 || notable[0].ID != "A2" || !notable[0].Notable {
		t.Errorf("notable = %+v", notable)
	}

	if err := s.SetArtistNotable(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing artist err = %v", err)
	}
}

func TestDuckDB_LinkCheck(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, newTestEvent(t, "l1"))
	mustUpsert(t, s, newTestEvent(t, "l2"))
	mustUpsert(t, s, newTestEvent(t, "l3"))
	if _, err := s.RecordDeliveryAttempt(ctx, "l3", 0, models.Confirmed("9"), testMaxAttempts); err != nil {
		t.Fatalf("RecordDeliveryAttempt: %v", err)
	}

	got, err := s.EventsNeedingLinkCheck(ctx, testNow, 10)
	if err != nil {
		t.Fatalf("EventsNeedingLinkCheck: %v", err)
	}
	if !reflect.DeepEqual(eventIDs(got), []string{"l1", "l2"}) {
		t.Fatalf("candidates = %v", eventIDs(got))
	}

	const vf = "https://signup.ticketmaster.com/phoebe"
	if err := s.SetSupplementaryURL(ctx, "l1", vf, testNow); err != nil {
		t.Fatalf("SetSupplementaryURL: %v", err)
	}
	// No link found: only the check time is stamped.
	if err := s.SetSupplementaryURL(ctx, "l2", "", testNow); err != nil {
		t.Fatalf("SetSupplementaryURL: %v", err)
	}

	if e := mustGet(t, s, "l1"); e.SupplementaryURL == nil || *e.SupplementaryURL != vf {
		t.Errorf("SupplementaryURL = %v", e.SupplementaryURL)
	}
	if e := mustGet(t, s, "l2"); e.SupplementaryURL != nil {
		t.Errorf("SupplementaryURL = %v, want nil", *e.SupplementaryURL)
	}

	got, _ = s.EventsNeedingLinkCheck(ctx, testNow, 10)
	if len(got) != 0 {
		t.Errorf("recently checked events returned: %v", eventIDs(got))
	}
	got, _ = s.EventsNeedingLinkCheck(ctx, testNow.Add(time.Hour), 10)
	if !reflect.DeepEqual(eventIDs(got), []string{"l2"}) {
		t.Errorf("after window = %v, want [l2]", eventIDs(got))
	}

	if err := s.SetSupplementaryURL(ctx, "missing", vf, testNow); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestDuckDB_PollerState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	state, err := s.LoadPollerState(ctx, "pnw")
	if err != nil || state != nil {
		t.Fatalf("LoadPollerState on empty store = %+v, %v", state, err)
	}

	req := testNow
	saved := &models.PollerState{
		Region:         "pnw",
		Status:         models.PollerRunning,
		LastRequestAt:  &req,
		LastSuccessAt:  &req,
		EventsReturned: 42,
		NewEvents:      3,
	}
	if err := s.SavePollerState(ctx, saved); err != nil {
		t.Fatalf("SavePollerState: %v", err)
	}

	later := testNow.Add(time.Minute)
	if err := s.SavePollerState(ctx, &models.PollerState{
		Region:        "pnw",
		Status:        models.PollerError,
		LastRequestAt: &later,
		LastSuccessAt: &req,
		ErrorMessage:  "HTTP 503",
	}); err != nil {
		t.Fatalf("SavePollerState: %v", err)
	}
	if err := s.SavePollerState(ctx, &models.PollerState{Region: "east", Status: models.PollerRunning}); err != nil {
		t.Fatalf("SavePollerState: %v", err)
	}

	got, err := s.LoadPollerState(ctx, "pnw")
	if err != nil {
		t.Fatalf("LoadPollerState: %v", err)
	}
	if got.Status != models.PollerError || got.ErrorMessage != "HTTP 503" {
		t.Errorf("state = %+v", got)
	}
	if got.LastSuccessAt == nil || !got.LastSuccessAt.Equal(req) {
		t.Errorf("LastSuccessAt = %v", got.LastSuccessAt)
	}
	if got.LastRequestAt == nil || !got.LastRequestAt.Equal(later) {
		t.Errorf("LastRequestAt = %v", got.LastRequestAt)
	}

	all, err := s.ListPollerStates(ctx)
	if err != nil {
		t.Fatalf("ListPollerStates: %v", err)
	}
	if len(all) != 2 || all[0].Region != "east" || all[1].Region != "pnw" {
		t.Errorf("ListPollerStates = %+v", all)
	}
	if all[0].LastSuccessAt != nil {
		t.Errorf("east LastSuccessAt = %v, want nil", all[0].LastSuccessAt)
	}
}

func TestDuckDB_Presales(t *testing.T) {
	s := setupTestStore(t)

	end := testNow.Add(20 * time.Hour)
	presales := []models.Presale{
		{Name: "Verified Fan Presale", Start: testNow.Add(6 * time.Hour), End: &end},
		{Name: "Artist Presale", Start: testNow.Add(2 * time.Hour)},
	}
	mustUpsert(t, s, newTestEvent(t, "p1", withPresales(presales...)))

	got := mustGet(t, s, "p1")
	if len(got.Presales) != 2 {
		t.Fatalf("Presales = %+v", got.Presales)
	}
	if got.Presales[0].Name != "Artist Presale" || !got.Presales[0].Start.Equal(testNow.Add(2*time.Hour)) {
		t.Errorf("first presale = %+v", got.Presales[0])
	}
	if got.Presales[1].End == nil || !got.Presales[1].End.Equal(end) {
		t.Errorf("second presale end = %v", got.Presales[1].End)
	}

	if res := mustUpsert(t, s, newTestEvent(t, "p1", withPresales(presales...))); res != UpsertUnchanged {
		t.Errorf("identical presales upsert = %v, want unchanged", res)
	}
	if res := mustUpsert(t, s, newTestEvent(t, "p1", withPresales(presales[0]))); res != UpsertUpdated {
		t.Errorf("changed presales upsert = %v, want updated", res)
	}
	if res := mustUpsert(t, s, newTestEvent(t, "p1")); res != UpsertUpdated {
		t.Errorf("dropped presales upsert = %v, want updated", res)
	}
	if got := mustGet(t, s, "p1"); got.Presales != nil {
		t.Errorf("Presales = %+v, want none", got.Presales)
	}
}

func TestDuckDB_FindDeliveryCandidates_Cursor(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	sale := testNow.Add(24 * time.Hour)
	mustUpsert(t, s, newTestEvent(t, "c1", withSaleStart(sale)))
	mustUpsert(t, s, newTestEvent(t, "c2", withSaleStart(sale)))
	mustUpsert(t, s, newTestEvent(t, "c3", withSaleStart(sale.Add(time.Hour))))

	q := defaultCandidates()
	q.Limit = 1
	var pages []string
	for {
		got, err := s.FindDeliveryCandidates(ctx, q)
		if err != nil {
			t.Fatalf("FindDeliveryCandidates: %v", err)
		}
		if len(got) == 0 {
			break
		}
		pages = append(pages, eventIDs(got)...)
		q.After = CursorOf(&got[len(got)-1])
	}
	if !reflect.DeepEqual(pages, []string{"c1", "c2", "c3"}) {
		t.Errorf("pages = %v", pages)
	}
}

func TestDuckDB_FindDeliveryCandidates_LinkCheckHoldOff(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, newTestEvent(t, "h1"))
	mustUpsert(t, s, newTestEvent(t, "h2"))

	q := defaultCandidates()
	q.UncheckedSeenBefore = testNow.Add(-time.Minute)
	got, err := s.FindDeliveryCandidates(ctx, q)
	if err != nil {
		t.Fatalf("FindDeliveryCandidates: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("unchecked fresh events selected: %v", eventIDs(got))
	}

	if err := s.SetSupplementaryURL(ctx, "h2", "", testNow); err != nil {
		t.Fatalf("SetSupplementaryURL: %v", err)
	}
	got, _ = s.FindDeliveryCandidates(ctx, q)
	if !reflect.DeepEqual(eventIDs(got), []string{"h2"}) {
		t.Errorf("after check = %v, want [h2]", eventIDs(got))
	}

	q.UncheckedSeenBefore = testNow
	got, _ = s.FindDeliveryCandidates(ctx, q)
	if !reflect.DeepEqual(eventIDs(got), []string{"h1", "h2"}) {
		t.Errorf("after hold-off = %v, want [h1 h2]", eventIDs(got))
	}
}

func TestDuckDB_ListUpcomingEvents(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, newTestEvent(t, "past", withSaleStart(testNow.Add(-time.Hour))))
	mustUpsert(t, s, newTestEvent(t, "later", withSaleStart(testNow.Add(48*time.Hour))))
	mustUpsert(t, s, newTestEvent(t, "soon", withSaleStart(testNow.Add(time.Hour))))
	mustUpsert(t, s, newTestEvent(t, "other", withSaleStart(testNow.Add(2*time.Hour)), withArtist("A9", "Boygenius")))
	if err := s.SetArtistNotable(ctx, "A9", true); err != nil {
		t.Fatalf("SetArtistNotable: %v", err)
	}

	tests := []struct {
		name string
		q    UpcomingQuery
		want []string
	}{
		{"all", UpcomingQuery{Limit: 10}, []string{"soon", "other", "later"}},
		{"limited", UpcomingQuery{Limit: 2}, []string{"soon", "other"}},
		{"notable", UpcomingQuery{NotableOnly: boolPtr(true), Limit: 10}, []string{"other"}},
		{"not notable", UpcomingQuery{NotableOnly: boolPtr(false), Limit: 10}, []string{"soon", "later"}},
		{"explicit now", UpcomingQuery{Now: testNow.Add(3 * time.Hour)}, []string{"later"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListUpcomingEvents(ctx, tt.q)
			if err != nil {
				t.Fatalf("ListUpcomingEvents: %v", err)
			}
			if !reflect.DeepEqual(eventIDs(got), tt.want) {
				t.Errorf("got %v, want %v", eventIDs(got), tt.want)
			}
		})
	}
}

func TestDuckDB_Reminders(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	mustUpsert(t, s, newTestEvent(t, "r1"))
	mustUpsert(t, s, newTestEvent(t, "r2"))
	mustUpsert(t, s, newTestEvent(t, "r3"))

	first := testNow.Add(10 * time.Minute)
	second := testNow.Add(2 * time.Minute)
	if err := s.SetReminder(ctx, "r1", &first); err != nil {
		t.Fatalf("SetReminder: %v", err)
	}
	if err := s.SetReminder(ctx, "r2", &second); err != nil {
		t.Fatalf("SetReminder: %v", err)
	}
	if err := s.SetReminder(ctx, "missing", &first); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing event err = %v", err)
	}

	due, err := s.DueReminders(ctx, testNow.Add(5*time.Minute), 10)
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if !reflect.DeepEqual(eventIDs(due), []string{"r2"}) {
		t.Fatalf("due = %v, want [r2]", eventIDs(due))
	}
	if due[0].ReminderAt == nil || !due[0].ReminderAt.Equal(second) {
		t.Errorf("ReminderAt = %v", due[0].ReminderAt)
	}

	due, _ = s.DueReminders(ctx, testNow.Add(time.Hour), 10)
	if !reflect.DeepEqual(eventIDs(due), []string{"r2", "r1"}) {
		t.Fatalf("due = %v, want [r2 r1]", eventIDs(due))
	}

	next := testNow.Add(6 * time.Hour)
	applied, err := s.AdvanceReminder(ctx, "r2", first, &next)
	if err != nil || applied {
		t.Errorf("stale advance = %v, %v; want not applied", applied, err)
	}
	applied, err = s.AdvanceReminder(ctx, "r2", second, &next)
	if err != nil || !applied {
		t.Fatalf("advance = %v, %v", applied, err)
	}
	if e := mustGet(t, s, "r2"); e.ReminderAt == nil || !e.ReminderAt.Equal(next) {
		t.Errorf("ReminderAt = %v, want %v", e.ReminderAt, next)
	}

	applied, err = s.AdvanceReminder(ctx, "r1", first, nil)
	if err != nil || !applied {
		t.Fatalf("clear = %v, %v", applied, err)
	}
	if e := mustGet(t, s, "r1"); e.ReminderAt != nil {
		t.Errorf("ReminderAt = %v, want cleared", e.ReminderAt)
	}

	if err := s.SetReminder(ctx, "r2", nil); err != nil {
		t.Fatalf("SetReminder clear: %v", err)
	}
	due, _ = s.DueReminders(ctx, testNow.Add(24*time.Hour), 10)
	if len(due) != 0 {
		t.Errorf("due after clearing = %v", eventIDs(due))
	}
}
