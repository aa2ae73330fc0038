// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/delivery"
	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/models"
)

// mockCandidateStore returns candidates per pairing, keyed by the notable
// filter so tests can tell pairings apart.
type mockCandidateStore struct {
	mu         sync.Mutex
	byNotable  map[string][]models.Event
	err        error
	queries    []database.CandidateQuery
	selections int
}

func notableKey(b *bool) string {
	switch {
	case b == nil:
		return "any"
	case *b:
		return "notable"
	default:
		return "general"
	}
}

func (m *mockCandidateStore) FindDeliveryCandidates(_ context.Context, q database.CandidateQuery) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	m.selections++
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Event
	for _, e := range m.byNotable[notableKey(q.NotableOnly)] {
		if a := q.After; a != nil && !(e.SaleStart.After(a.SaleStart) || (e.SaleStart.Equal(a.SaleStart) && e.ID > a.ID)) {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *mockCandidateStore) queryLog() []database.CandidateQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]database.CandidateQuery(nil), m.queries...)
}

func (m *mockCandidateStore) selectionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selections
}

type processCall struct {
	EventID string
	Target  string
	Pairing string
}

// mockProcessor records calls; hook runs inside Process when set.
type mockProcessor struct {
	mu     sync.Mutex
	calls  []processCall
	result func(event *models.Event) (delivery.ProcessResult, error)
	hook   func(event *models.Event)
}

func (m *mockProcessor) MaxAttempts() int { return 3 }

func (m *mockProcessor) Process(_ context.Context, event *models.Event, target, pairing string) (delivery.ProcessResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, processCall{event.ID, target, pairing})
	hook, result := m.hook, m.result
	m.mu.Unlock()

	if hook != nil {
		hook(event)
	}
	if result != nil {
		return result(event)
	}
	return delivery.ProcessResult{Outcome: models.Confirmed("msg-" + event.ID)}, nil
}

func (m *mockProcessor) eventIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.calls))
	for i, c := range m.calls {
		ids[i] = c.EventID
	}
	return ids
}

func candidate(id string) models.Event {
	return models.Event{ID: id, Name: "Show " + id, Region: "east"}
}

func notablePairing() Pairing {
	return Pairing{Name: PairingNotable, ChannelID: "chan-notable", Criteria: Criteria{NotableOnly: boolPtr(true)}, Limit: 10}
}

func generalPairing() Pairing {
	return Pairing{Name: PairingGeneral, ChannelID: "chan-general", Criteria: Criteria{NotableOnly: boolPtr(false)}, Limit: 10}
}

func TestScheduler_TickDeliversInOrder(t *testing.T) {
	t.Parallel()

	store := &mockCandidateStore{byNotable: map[string][]models.Event{
		"notable": {candidate("E0"), candidate("E2"), candidate("E1")},
	}}
	proc := &mockProcessor{result: func(e *models.Event) (delivery.ProcessResult, error) {
		switch e.ID {
		case "E2":
			return delivery.ProcessResult{Outcome: models.Retryable(errors.New("503"), 0)}, nil
		case "E1":
			return delivery.ProcessResult{Outcome: models.Terminal(errors.New("bad embed"))}, nil
		}
		return delivery.ProcessResult{Outcome: models.Confirmed("m")}, nil
	}}
	s := NewScheduler(store, proc, []Pairing{notablePairing()}, DefaultConfig())

	report := s.Tick(context.Background(), notablePairing())

	if got := proc.eventIDs(); !slices.Equal(got, []string{"E0", "E2", "E1"}) {
		t.Errorf("processing order = %v", got)
	}
	if report.Candidates != 3 || report.Confirmed != 1 || report.Retryable != 1 || report.Terminal != 1 {
		t.Errorf("report = %+v", report)
	}
	if report.Duration <= 0 {
		t.Error("duration not recorded")
	}
	q := store.queries[0]
	if q.MaxAttempts != 3 || q.Limit != 10 || q.NotableOnly == nil || !*q.NotableOnly {
		t.Errorf("query = %+v", q)
	}
	if proc.calls[0].Target != "chan-notable" || proc.calls[0].Pairing != PairingNotable {
		t.Errorf("call = %+v", proc.calls[0])
	}
}

func TestScheduler_TickNoCandidates(t *testing.T) {
	t.Parallel()

	proc := &mockProcessor{}
	s := NewScheduler(&mockCandidateStore{}, proc, []Pairing{notablePairing()}, DefaultConfig())
	report := s.Tick(context.Background(), notablePairing())
	if report.Candidates != 0 || len(proc.eventIDs()) != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestScheduler_TickSelectionError(t *testing.T) {
	t.Parallel()

	proc := &mockProcessor{}
	s := NewScheduler(&mockCandidateStore{err: errors.New("connection reset")}, proc, []Pairing{notablePairing()}, DefaultConfig())
	report := s.Tick(context.Background(), notablePairing())
	if report.Err == nil {
		t.Error("expected selection error in report")
	}
	if len(proc.eventIDs()) != 0 {
		t.Error("nothing should be processed when selection fails")
	}
}

func TestScheduler_IsolatesPanicsAndErrors(t *testing.T) {
	t.Parallel()

	store := &mockCandidateStore{byNotable: map[string][]models.Event{
		"notable": {candidate("A"), candidate("B"), candidate("C")},
	}}
	proc := &mockProcessor{result: func(e *models.Event) (delivery.ProcessResult, error) {
		switch e.ID {
		case "A":
			panic("template exploded")
		case "B":
			return delivery.ProcessResult{}, errors.New("record failed")
		}
		return delivery.ProcessResult{Outcome: models.Confirmed("m")}, nil
	}}
	s := NewScheduler(store, proc, []Pairing{notablePairing()}, DefaultConfig())

	report := s.Tick(context.Background(), notablePairing())
	if report.Errors != 2 || report.Confirmed != 1 {
		t.Errorf("report = %+v", report)
	}
	if _, held := s.inFlight.Load("A"); held {
		t.Error("in-flight marker must be released after a panic")
	}
}

func TestScheduler_SkipsEventsInFlight(t *testing.T) {
	t.Parallel()

	store := &mockCandidateStore{byNotable: map[string][]models.Event{
		"notable": {candidate("X"), candidate("Y")},
	}}
	proc := &mockProcessor{}
	s := NewScheduler(store, proc, []Pairing{notablePairing()}, DefaultConfig())
	s.inFlight.Store("X", PairingGeneral)

	report := s.Tick(context.Background(), notablePairing())
	if got := proc.eventIDs(); !slices.Equal(got, []string{"Y"}) {
		t.Errorf("processed = %v, want [Y]", got)
	}
	if report.Skipped != 1 {
		t.Errorf("skipped = %d", report.Skipped)
	}
}

func TestScheduler_CountsSkippedResults(t *testing.T) {
	t.Parallel()

	store := &mockCandidateStore{byNotable: map[string][]models.Event{"notable": {candidate("S")}}}
	proc := &mockProcessor{result: func(*models.Event) (delivery.ProcessResult, error) {
		return delivery.ProcessResult{Skipped: true}, nil
	}}
	s := NewScheduler(store, proc, []Pairing{notablePairing()}, DefaultConfig())
	if report := s.Tick(context.Background(), notablePairing()); report.Skipped != 1 || report.Confirmed != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestScheduler_CancelFinishesCurrentCandidate(t *testing.T) {
	t.Parallel()

	store := &mockCandidateStore{byNotable: map[string][]models.Event{
		"notable": {candidate("1"), candidate("2"), candidate("3")},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	proc := &mockProcessor{}
	proc.hook = func(e *models.Event) {
		if e.ID == "1" {
			cancel()
		}
	}
	s := NewScheduler(store, proc, []Pairing{notablePairing()}, DefaultConfig())

	report := s.Tick(ctx, notablePairing())
	if got := proc.eventIDs(); !slices.Equal(got, []string{"1"}) {
		t.Errorf("processed = %v, want only the in-flight candidate", got)
	}
	if report.Confirmed != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestScheduler_RunOnceTicksEveryPairing(t *testing.T) {
	t.Parallel()

	store := &mockCandidateStore{byNotable: map[string][]models.Event{
		"notable": {candidate("N1")},
		"general": {candidate("G1"), candidate("G2")},
	}}
	proc := &mockProcessor{}
	s := NewScheduler(store, proc, []Pairing{notablePairing(), generalPairing()}, DefaultConfig())

	reports := s.RunOnce(context.Background())
	if len(reports) != 2 {
		t.Fatalf("reports = %d", len(reports))
	}
	if reports[0].Pairing != PairingNotable || reports[0].Confirmed != 1 {
		t.Errorf("notable report = %+v", reports[0])
	}
	if reports[1].Pairing != PairingGeneral || reports[1].Confirmed != 2 {
		t.Errorf("general report = %+v", reports[1])
	}

	ids := proc.eventIDs()
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"G1", "G2", "N1"}) {
		t.Errorf("processed = %v", ids)
	}
}

func TestScheduler_PairingsTickConcurrently(t *testing.T) {
	t.Parallel()

	store := &mockCandidateStore{byNotable: map[string][]models.Event{
		"notable": {candidate("N1")},
		"general": {candidate("G1")},
	}}

	// Each Process blocks until both pairings are inside Process at once.
	var inside atomic.Int32
	release := make(chan struct{})
	proc := &mockProcessor{}
	proc.hook = func(*models.Event) {
		if inside.Add(1) == 2 {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}
	s := NewScheduler(store, proc, []Pairing{notablePairing(), generalPairing()}, DefaultConfig())

	done := make(chan struct{})
	go func() {
		s.RunOnce(context.Background())
		close(done)
	}()

	select {
	case <-release:
	case <-time.After(3 * time.Second):
		t.Fatal("pairings did not run concurrently")
	}
	<-done
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	store := &mockCandidateStore{}
	s := NewScheduler(store, &mockProcessor{}, []Pairing{notablePairing(), generalPairing()}, Config{Interval: 10 * time.Millisecond})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start")
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.selectionCount() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if store.selectionCount() < 4 {
		t.Errorf("selections = %d, want ticks from both pairings", store.selectionCount())
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	after := store.selectionCount()
	time.Sleep(30 * time.Millisecond)
	if store.selectionCount() != after {
		t.Error("ticks continued after Stop")
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestScheduler_StartWithoutPairings(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&mockCandidateStore{}, &mockProcessor{}, nil, DefaultConfig())
	if err := s.Start(context.Background()); err == nil {
		t.Error("expected error without pairings")
	}
}

func numberedCandidates(n int) []models.Event {
	out := make([]models.Event, n)
	for i := range out {
		out[i] = candidate(fmt.Sprintf("E%02d", i))
	}
	return out
}

func TestScheduler_TickPagesThroughEveryCandidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		candidates     int
		wantSelections int
	}{
		{"partial last page", 25, 3},
		{"exact multiple", 20, 3},
		{"single page", 4, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := &mockCandidateStore{byNotable: map[string][]models.Event{"notable": numberedCandidates(tt.candidates)}}
			proc := &mockProcessor{result: func(e *models.Event) (delivery.ProcessResult, error) {
				if e.ID == "E03" {
					return delivery.ProcessResult{Outcome: models.Retryable(errors.New("503"), 0)}, nil
				}
				return delivery.ProcessResult{Outcome: models.Confirmed("m")}, nil
			}}
			s := NewScheduler(store, proc, []Pairing{notablePairing()}, DefaultConfig())

			report := s.Tick(context.Background(), notablePairing())

			got := proc.eventIDs()
			if len(got) != tt.candidates {
				t.Fatalf("processed %d, want %d: %v", len(got), tt.candidates, got)
			}
			seen := map[string]bool{}
			for _, id := range got {
				if seen[id] {
					t.Errorf("%s processed twice in one tick", id)
				}
				seen[id] = true
			}
			if report.Candidates != tt.candidates || report.Retryable != 1 || report.Confirmed != tt.candidates-1 {
				t.Errorf("report = %+v", report)
			}
			queries := store.queryLog()
			if len(queries) != tt.wantSelections {
				t.Errorf("selections = %d, want %d", len(queries), tt.wantSelections)
			}
			if queries[0].After != nil {
				t.Errorf("first page has a cursor: %+v", queries[0].After)
			}
			if len(queries) > 1 && (queries[1].After == nil || queries[1].After.ID != "E09") {
				t.Errorf("second page cursor = %+v, want after E09", queries[1].After)
			}
		})
	}
}

func TestScheduler_CancelBetweenPages(t *testing.T) {
	t.Parallel()

	store := &mockCandidateStore{byNotable: map[string][]models.Event{"notable": numberedCandidates(15)}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	proc := &mockProcessor{hook: func(e *models.Event) {
		if e.ID == "E09" {
			cancel()
		}
	}}
	s := NewScheduler(store, proc, []Pairing{notablePairing()}, DefaultConfig())

	report := s.Tick(ctx, notablePairing())
	if got := len(proc.eventIDs()); got != 10 {
		t.Errorf("processed = %d, want the first page only", got)
	}
	if store.selectionCount() != 1 || report.Confirmed != 10 {
		t.Errorf("selections = %d, report = %+v", store.selectionCount(), report)
	}
}

func TestScheduler_RateLimitStopsPairing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		result       delivery.ProcessResult
		wantDeferred int
		wantRetry    int
	}{
		{
			name:         "send hit the limit",
			result:       delivery.ProcessResult{Outcome: models.Retryable(faults.NewRateLimitError("slow", 30*time.Second), 30*time.Second)},
			wantDeferred: 2,
			wantRetry:    1,
		},
		{
			name:         "target already blocked",
			result:       delivery.ProcessResult{Deferred: true, RetryAfter: 30 * time.Second},
			wantDeferred: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := &mockCandidateStore{byNotable: map[string][]models.Event{
				"notable": {candidate("A"), candidate("B"), candidate("C"), candidate("D")},
			}}
			proc := &mockProcessor{result: func(e *models.Event) (delivery.ProcessResult, error) {
				if e.ID == "B" {
					return tt.result, nil
				}
				return delivery.ProcessResult{Outcome: models.Confirmed("m")}, nil
			}}
			s := NewScheduler(store, proc, []Pairing{notablePairing()}, DefaultConfig())

			report := s.Tick(context.Background(), notablePairing())
			if got := proc.eventIDs(); !slices.Equal(got, []string{"A", "B"}) {
				t.Errorf("processed = %v, want [A B]", got)
			}
			if report.Confirmed != 1 || report.Deferred != tt.wantDeferred || report.Retryable != tt.wantRetry {
				t.Errorf("report = %+v", report)
			}
		})
	}
}

func TestScheduler_TransientFailureDoesNotStopPairing(t *testing.T) {
	t.Parallel()

	store := &mockCandidateStore{byNotable: map[string][]models.Event{
		"notable": {candidate("A"), candidate("B"), candidate("C")},
	}}
	proc := &mockProcessor{result: func(e *models.Event) (delivery.ProcessResult, error) {
		if e.ID == "A" {
			return delivery.ProcessResult{Outcome: models.Retryable(faults.NewTransientNetworkError("reset", 0, nil), 0)}, nil
		}
		return delivery.ProcessResult{Outcome: models.Confirmed("m")}, nil
	}}
	s := NewScheduler(store, proc, []Pairing{notablePairing()}, DefaultConfig())

	if report := s.Tick(context.Background(), notablePairing()); report.Confirmed != 2 || report.Deferred != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestScheduler_LinkCheckHoldOff(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)
	for _, holdOff := range []time.Duration{0, 30 * time.Minute} {
		store := &mockCandidateStore{}
		cfg := DefaultConfig()
		cfg.LinkCheckHoldOff = holdOff
		s := NewScheduler(store, &mockProcessor{}, []Pairing{notablePairing()}, cfg)
		s.now = func() time.Time { return now }

		s.Tick(context.Background(), notablePairing())
		q := store.queryLog()[0]
		want := time.Time{}
		if holdOff > 0 {
			want = now.Add(-holdOff)
		}
		if !q.UncheckedSeenBefore.Equal(want) || !q.Now.Equal(now) {
			t.Errorf("hold-off %v: query = %+v", holdOff, q)
		}
	}
}
