// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

//go:build integration

package dispatch

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/delivery"
	"github.com/tomtom215/onsale/internal/models"
	"github.com/tomtom215/onsale/internal/testinfra"
)

func setupPostgresPipeline(t *testing.T) *database.Postgres {
	t.Helper()
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	pg, err := testinfra.NewPostgresContainer(ctx, testinfra.WithStartTimeout(90*time.Second))
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { testinfra.CleanupContainer(t, ctx, pg.Container) })

	store, err := database.NewPostgres(ctx, database.PostgresConfig{URL: pg.URL, MaxConns: 8})
	if err != nil {
		t.Fatalf("NewPostgres() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() }) //nolint:errcheck // test cleanup
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

// TestDiscordPipeline_Postgres runs the scheduler, the engine and the real
// Discord client against a Postgres container and a mock Discord API.
func TestDiscordPipeline_Postgres(t *testing.T) {
	store := setupPostgresPipeline(t)
	discord := testinfra.NewMockDiscordServer(t)
	ctx := context.Background()

	seedEvent(t, store, "E1", "Later Show", "A1", 48*time.Hour)
	seedEvent(t, store, "E2", "Sooner Show", "A2", 24*time.Hour)
	seedEvent(t, store, "E3", "Big Show", "A3", 36*time.Hour)
	if err := store.SetArtistNotable(ctx, "A3", true); err != nil {
		t.Fatal(err)
	}

	channel := delivery.NewDiscordChannel(delivery.DiscordConfig{
		BaseURL:           discord.APIBase(),
		BotToken:          "integration-token",
		Timeout:           5 * time.Second,
		RequestsPerSecond: 50,
	})
	eng := delivery.NewEngine(channel, store, testRegistry(t), nil, delivery.EngineConfig{MaxAttempts: 3})

	notable := Pairing{Name: PairingNotable, ChannelID: "111111111111111111", Criteria: Criteria{NotableOnly: boolPtr(true)}, Limit: 10}
	general := Pairing{Name: PairingGeneral, ChannelID: "222222222222222222", Criteria: Criteria{NotableOnly: boolPtr(false)}, Limit: 10}
	notableScheduler := NewScheduler(store, eng, []Pairing{notable}, DefaultConfig())
	s := NewScheduler(store, eng, []Pairing{general}, DefaultConfig())

	notableScheduler.RunOnce(ctx)

	// The first general send is throttled for 30s.
	discord.Script(testinfra.RateLimited(30*time.Second, false))
	s.RunOnce(ctx)

	// E2 (earliest sale) hit the 429; E1 still went out in the same tick.
	state, err := store.DeliveryState(ctx, "E2")
	if err != nil {
		t.Fatal(err)
	}
	if state.ConfirmedSent || state.Status != models.DeliveryRetrying || state.NextAttemptAt == nil {
		t.Fatalf("E2 after 429 = %+v", state)
	}

	s.now = func() time.Time { return time.Now().Add(31 * time.Second) }
	s.RunOnce(ctx)
	s.RunOnce(ctx)

	if got := discord.CapturesFor(notable.ChannelID); len(got) != 1 || !strings.Contains(string(got[0].Body), "Big Show") {
		t.Errorf("notable channel captures = %d", len(got))
	}
	general3 := discord.CapturesFor(general.ChannelID)
	if len(general3) != 3 {
		t.Fatalf("general channel requests = %d, want 3 (429, E1, E2 retry)", len(general3))
	}
	for _, c := range general3 {
		if c.Authorization != "Bot integration-token" {
			t.Errorf("Authorization = %q", c.Authorization)
		}
	}

	for id, wantAttempts := range map[string]int{"E1": 1, "E2": 2, "E3": 1} {
		state, err := store.DeliveryState(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if !state.ConfirmedSent || state.AttemptCount != wantAttempts || state.ExternalMessageID == nil {
			t.Errorf("%s state = %+v", id, state)
		}
	}
}

func TestDiscordPipeline_InvalidFormBodySuppressed(t *testing.T) {
	store := setupPostgresPipeline(t)
	discord := testinfra.NewMockDiscordServer(t)
	ctx := context.Background()

	seedEvent(t, store, "T1", "Broken Embed", "A1", 24*time.Hour)
	discord.Script(testinfra.ScriptedResponse{
		Status: http.StatusBadRequest,
		Body:   `{"message":"Invalid Form Body","code":50035}`,
	})

	channel := delivery.NewDiscordChannel(delivery.DiscordConfig{BaseURL: discord.APIBase(), BotToken: "t"})
	eng := delivery.NewEngine(channel, store, testRegistry(t), nil, delivery.EngineConfig{MaxAttempts: 3})
	s := NewScheduler(store, eng, []Pairing{generalPairing()}, DefaultConfig())

	s.RunOnce(ctx)
	s.RunOnce(ctx)

	if n := len(discord.Captures()); n != 1 {
		t.Errorf("requests = %d, want exactly 1", n)
	}
	suppressed, err := store.ListEventsByStatus(ctx, models.DeliverySuppressed, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(suppressed) != 1 || suppressed[0].ID != "T1" {
		t.Errorf("dead letter view = %+v", suppressed)
	}
}
