// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tomtom215/onsale/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// setTestEnv points every command at an in-memory DuckDB store and keeps
// the host environment out of the configuration.
func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("LOG_LEVEL", "disabled")
	t.Setenv("DATABASE_DRIVER", "duckdb")
	t.Setenv("DUCKDB_PATH", ":memory:")
	t.Setenv("POLL_REGIONS", "")
	t.Setenv("EUROPEAN_CHANNEL", "")
	t.Setenv("EUROPEAN_CHANNEL_TWO", "")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	want := []string{"run", "poll", "dispatch", "reminders", "linkcheck", "migrate", "regions", "events", "remind", "artists", "token"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestMigrateCmd(t *testing.T) {
	setTestEnv(t)

	out, err := execute(t, "migrate")
	if err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !strings.Contains(out, "schema up to date (duckdb)") {
		t.Errorf("output = %q", out)
	}
}

func TestRegionsCmd(t *testing.T) {
	setTestEnv(t)
	t.Setenv("POLL_REGIONS", "east,europe")

	out, err := execute(t, "regions")
	if err != nil {
		t.Fatalf("regions error = %v", err)
	}
	for _, want := range []string{"REGION", "east", "west", "europe", "european", "1200 km"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		polled := fields[len(fields)-1]
		switch fields[0] {
		case "east", "europe":
			if polled != "yes" {
				t.Errorf("%s polled = %s, want yes", fields[0], polled)
			}
		case "west", "comedy":
			if polled != "no" {
				t.Errorf("%s polled = %s, want no", fields[0], polled)
			}
		}
	}
}

func TestEventsCmd(t *testing.T) {
	setTestEnv(t)

	tests := []struct {
		name    string
		args    []string
		wantOut string
		wantErr string
	}{
		{name: "empty dead letter view", args: []string{"events", "--status", "suppressed"}, wantOut: "no events"},
		{name: "status is case insensitive", args: []string{"events", "--status", "EXHAUSTED"}, wantOut: "no events"},
		{name: "unknown status", args: []string{"events", "--status", "lost"}, wantErr: "invalid --status"},
		{name: "limit out of range", args: []string{"events", "--limit", "0"}, wantErr: "--limit"},
		{name: "empty upcoming view", args: []string{"events", "--upcoming"}, wantOut: "no upcoming sales"},
		{name: "notable upcoming view", args: []string{"events", "--upcoming", "--notable"}, wantOut: "no upcoming sales"},
		{name: "notable needs upcoming", args: []string{"events", "--notable"}, wantErr: "--notable only applies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if !strings.Contains(out, tt.wantOut) {
				t.Errorf("output = %q, want %q", out, tt.wantOut)
			}
		})
	}
}

func TestArtistsNotableCmd_UnknownArtist(t *testing.T) {
	setTestEnv(t)

	_, err := execute(t, "artists", "notable", "K8vZ-missing")
	if err == nil || !strings.Contains(err.Error(), "artist K8vZ-missing not found") {
		t.Errorf("error = %v", err)
	}
}

func TestRemindCmd_UnknownEvent(t *testing.T) {
	setTestEnv(t)

	for _, args := range [][]string{
		{"remind", "G5vYZ-missing"},
		{"remind", "G5vYZ-missing", "--clear"},
	} {
		_, err := execute(t, args...)
		if err == nil || !strings.Contains(err.Error(), "event G5vYZ-missing not found") {
			t.Errorf("%v: error = %v", args, err)
		}
	}
}

func TestRemindersCmd_Once(t *testing.T) {
	setTestEnv(t)

	t.Run("missing bot token", func(t *testing.T) {
		t.Setenv("DISCORD_BOT_TOKEN", "")
		if _, err := execute(t, "reminders", "--once"); err == nil {
			t.Error("expected configuration error")
		}
	})

	t.Run("nothing due", func(t *testing.T) {
		t.Setenv("DISCORD_BOT_TOKEN", "bot-token")
		t.Setenv("DISCORD_CHANNEL_ID", "123456789012345678")
		t.Setenv("DISCORD_CHANNEL_ID_TWO", "223456789012345678")

		out, err := execute(t, "reminders", "--once")
		if err != nil {
			t.Fatalf("reminders error = %v\n%s", err, out)
		}
		if !strings.Contains(out, "due=0 sent=0 retried=0 deferred=0 dropped=0") {
			t.Errorf("output = %q", out)
		}
	})
}

func TestTokenCmd(t *testing.T) {
	setTestEnv(t)

	t.Run("requires secret", func(t *testing.T) {
		t.Setenv("API_JWT_SECRET", "short")
		if _, err := execute(t, "token", "alice"); err == nil {
			t.Error("expected an error for a short secret")
		}
	})

	t.Run("mints a valid token", func(t *testing.T) {
		t.Setenv("API_JWT_SECRET", testSecret)
		out, err := execute(t, "token", "alice")
		if err != nil {
			t.Fatalf("token error = %v", err)
		}

		manager, err := auth.NewJWTManager(testSecret, 0)
		if err != nil {
			t.Fatal(err)
		}
		claims, err := manager.ValidateToken(strings.TrimSpace(out))
		if err != nil {
			t.Fatalf("ValidateToken() error = %v", err)
		}
		if claims.Subject != "alice" {
			t.Errorf("subject = %q", claims.Subject)
		}
	})
}

const catalogPage = `{"_embedded":{"events":[{
  "id": "G5vYZ9fX1a2b3",
  "name": "World Tour",
  "url": "https://www.ticketmaster.com/event/G5vYZ9fX1a2b3",
  "dates": {"start": {"dateTime": "2031-03-15T00:30:00Z"}},
  "sales": {"public": {"startDateTime": "2030-12-02T15:00:00Z"}},
  "_embedded": {
    "venues": [{"id": "KovZpZA7AAEA", "name": "Madison Square Garden", "city": {"name": "New York"}, "country": {"countryCode": "US"}}],
    "attractions": [{"id": "K8vZ9171ob7", "name": "The Headliner"}]
  }
}]},"page":{"size":199,"totalElements":1,"totalPages":1,"number":0}}`

func TestPollCmd_Once(t *testing.T) {
	setTestEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(catalogPage))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("CATALOG_BASE_URL", srv.URL)

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv("TICKETMASTER_API_KEY", "")
		if _, err := execute(t, "poll", "--region", "east", "--once"); err == nil {
			t.Error("expected configuration error")
		}
	})

	t.Run("unknown region", func(t *testing.T) {
		t.Setenv("TICKETMASTER_API_KEY", "test-key")
		if _, err := execute(t, "poll", "--region", "atlantis", "--once"); err == nil {
			t.Error("expected unknown region error")
		}
	})

	t.Run("ingests one event", func(t *testing.T) {
		t.Setenv("TICKETMASTER_API_KEY", "test-key")
		out, err := execute(t, "poll", "--region", "east", "--once")
		if err != nil {
			t.Fatalf("poll error = %v\n%s", err, out)
		}
		if !strings.Contains(out, "east") || !strings.Contains(out, "inserted=1") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("rejected key fails the run", func(t *testing.T) {
		t.Setenv("TICKETMASTER_API_KEY", "wrong-key")
		out, err := execute(t, "poll", "--region", "east", "--once")
		if !errors.Is(err, errTickFailed) {
			t.Errorf("error = %v, want errTickFailed", err)
		}
		if !strings.Contains(out, "FAILED") {
			t.Errorf("output = %q", out)
		}
	})
}

func TestDispatchCmd_Once(t *testing.T) {
	setTestEnv(t)

	t.Run("missing bot token", func(t *testing.T) {
		t.Setenv("DISCORD_BOT_TOKEN", "")
		if _, err := execute(t, "dispatch", "--once"); err == nil {
			t.Error("expected configuration error")
		}
	})

	t.Run("empty store", func(t *testing.T) {
		t.Setenv("DISCORD_BOT_TOKEN", "bot-token")
		t.Setenv("DISCORD_CHANNEL_ID", "123456789012345678")
		t.Setenv("DISCORD_CHANNEL_ID_TWO", "223456789012345678")

		out, err := execute(t, "dispatch", "--once")
		if err != nil {
			t.Fatalf("dispatch error = %v\n%s", err, out)
		}
		if strings.Count(out, "candidates=0") != 2 {
			t.Errorf("want one line per configured pairing, got:\n%s", out)
		}
	})
}

type fakeComponent struct {
	name     string
	startErr error
	log      *[]string
	mu       *sync.Mutex
}

func (f *fakeComponent) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.log = append(*f.log, "start "+f.name)
	return f.startErr
}

func (f *fakeComponent) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.log = append(*f.log, "stop "+f.name)
	return nil
}

func TestRunUntilSignal(t *testing.T) {
	t.Parallel()

	t.Run("stops in reverse order", func(t *testing.T) {
		t.Parallel()
		var (
			log []string
			mu  sync.Mutex
		)
		a := &fakeComponent{name: "a", log: &log, mu: &mu}
		b := &fakeComponent{name: "b", log: &log, mu: &mu}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := runUntilSignal(ctx, a, b); err != nil {
			t.Fatalf("runUntilSignal() error = %v", err)
		}

		want := "start a,start b,stop b,stop a"
		if got := strings.Join(log, ","); got != want {
			t.Errorf("order = %s, want %s", got, want)
		}
	})

	t.Run("start failure stops started components", func(t *testing.T) {
		t.Parallel()
		var (
			log []string
			mu  sync.Mutex
		)
		a := &fakeComponent{name: "a", log: &log, mu: &mu}
		b := &fakeComponent{name: "b", startErr: errors.New("boom"), log: &log, mu: &mu}

		if err := runUntilSignal(context.Background(), a, b); err == nil {
			t.Fatal("expected start error")
		}
		want := "start a,start b,stop a"
		if got := strings.Join(log, ","); got != want {
			t.Errorf("order = %s, want %s", got, want)
		}
	})
}
