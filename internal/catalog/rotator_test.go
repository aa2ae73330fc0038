// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package catalog

import (
	"sync"
	"testing"

	"github.com/tomtom215/onsale/internal/config"
)

func testRegistry(t *testing.T) *config.Registry {
	t.Helper()
	reg, err := config.NewRegistry(nil)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func mustRegion(t *testing.T, id string) config.RegionConfig {
	t.Helper()
	rc, err := testRegistry(t).Get(id)
	if err != nil {
		t.Fatal(err)
	}
	return rc
}

func TestRotator_CyclesInOrder(t *testing.T) {
	t.Parallel()

	comedy := mustRegion(t, "comedy")
	r := NewRotator()

	want := []string{"Comedy", "Theatre", "Film Events", "Comedy", "Theatre", "Film Events", "Comedy"}
	for i, name := range want {
		if got := r.Next(comedy).Name; got != name {
			t.Errorf("call %d: Next() = %q, want %q", i, got, name)
		}
	}
}

func TestRotator_RegionsAreIndependent(t *testing.T) {
	t.Parallel()

	comedy := mustRegion(t, "comedy")
	east := mustRegion(t, "east")
	r := NewRotator()

	r.Next(comedy) // Comedy
	for i := 0; i < 4; i++ {
		if got := r.Next(east).ClassificationID; got != config.ClassificationMusic {
			t.Errorf("east variant = %q, want music", got)
		}
	}
	if got := r.Next(comedy).Name; got != "Theatre" {
		t.Errorf("comedy cursor disturbed: got %q, want Theatre", got)
	}
}

func TestRotator_SeparateInstancesDoNotShareState(t *testing.T) {
	t.Parallel()

	comedy := mustRegion(t, "comedy")
	a, b := NewRotator(), NewRotator()
	a.Next(comedy)
	a.Next(comedy)

	if got := b.Next(comedy).Name; got != "Comedy" {
		t.Errorf("fresh rotator started at %q, want Comedy", got)
	}
	if got := a.peek(comedy).Name; got != "Film Events" {
		t.Errorf("Peek() = %q, want Film Events", got)
	}
}

func TestRotator_ConcurrentNextCoversEveryVariant(t *testing.T) {
	t.Parallel()

	comedy := mustRegion(t, "comedy")
	r := NewRotator()

	const calls = 300
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		counts = map[string]int{}
	)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := r.Next(comedy).Name
			mu.Lock()
			counts[name]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, name := range []string{"Comedy", "Theatre", "Film Events"} {
		if counts[name] != calls/3 {
			t.Errorf("%s selected %d times, want %d", name, counts[name], calls/3)
		}
	}
}
