// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package dispatch

import (
	"fmt"
	"slices"
	"time"

	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/models"
)

// Default pairing names.
const (
	PairingNotable         = "notable"
	PairingGeneral         = "general"
	PairingEuropeNotable   = "europe-notable"
	PairingEuropeGeneral   = "europe-general"
	defaultPairingPageSize = 50
)

// Criteria selects which undelivered events a pairing is responsible for.
type Criteria struct {
	// Regions restricts selection to these region ids. Empty means all.
	Regions []string `json:"regions,omitempty"`
	// ExcludeRegions removes region ids from the selection.
	ExcludeRegions []string `json:"exclude_regions,omitempty"`
	// NotableOnly: nil any artist, true notable only, false the rest.
	NotableOnly *bool `json:"notable_only,omitempty"`
}

// Pairing binds a criteria to the channel its events are delivered to.
// Limit is the selection page size; a tick keeps paging until no
// candidates remain.
type Pairing struct {
	Name      string   `json:"name"`
	ChannelID string   `json:"channel_id"`
	Criteria  Criteria `json:"criteria"`
	Limit     int      `json:"limit"`
}

// Query builds the candidate query for one tick.
func (p Pairing) Query(maxAttempts int, now time.Time) database.CandidateQuery {
	return database.CandidateQuery{
		Regions:        p.Criteria.Regions,
		ExcludeRegions: p.Criteria.ExcludeRegions,
		NotableOnly:    p.Criteria.NotableOnly,
		MaxAttempts:    maxAttempts,
		Limit:          p.Limit,
		Now:            now,
	}
}

// Matches reports whether event falls under p's criteria. It mirrors the
// candidate query's region and notability filters.
func (p Pairing) Matches(event *models.Event) bool {
	if len(p.Criteria.Regions) > 0 && !slices.Contains(p.Criteria.Regions, event.Region) {
		return false
	}
	if slices.Contains(p.Criteria.ExcludeRegions, event.Region) {
		return false
	}
	if p.Criteria.NotableOnly != nil && *p.Criteria.NotableOnly != event.IsNotable() {
		return false
	}
	return true
}

// Route returns the first pairing whose criteria cover event.
func Route(pairings []Pairing, event *models.Event) (Pairing, bool) {
	for _, p := range pairings {
		if p.Matches(event) {
			return p, true
		}
	}
	return Pairing{}, false
}

func boolPtr(b bool) *bool { return &b }

// DefaultPairings derives the standard four pairings from the Discord
// channel settings. Notable and general cover every non-European region;
// the European pair covers the rest. Pairings whose channel is unset are
// left out.
func DefaultPairings(discord config.DiscordConfig, europeanIDs []string, limit int) []Pairing {
	if limit <= 0 {
		limit = defaultPairingPageSize
	}
	eu := slices.Clone(europeanIDs)

	candidates := []Pairing{
		{
			Name:      PairingNotable,
			ChannelID: discord.NotableChannelID,
			Criteria:  Criteria{ExcludeRegions: eu, NotableOnly: boolPtr(true)},
		},
		{
			Name:      PairingGeneral,
			ChannelID: discord.GeneralChannelID,
			Criteria:  Criteria{ExcludeRegions: eu, NotableOnly: boolPtr(false)},
		},
	}
	if len(eu) > 0 {
		candidates = append(candidates,
			Pairing{
				Name:      PairingEuropeNotable,
				ChannelID: discord.EuropeanChannelID,
				Criteria:  Criteria{Regions: eu, NotableOnly: boolPtr(true)},
			},
			Pairing{
				Name:      PairingEuropeGeneral,
				ChannelID: discord.EuropeanGeneralChannelID,
				Criteria:  Criteria{Regions: eu, NotableOnly: boolPtr(false)},
			},
		)
	}

	out := make([]Pairing, 0, len(candidates))
	for _, p := range candidates {
		if p.ChannelID == "" {
			continue
		}
		p.Limit = limit
		out = append(out, p)
	}
	return out
}

// PairingsFromConfig returns the configured pairings, or the defaults when
// none are configured. Every region a pairing names must be registered.
func PairingsFromConfig(cfg *config.Config, registry *config.Registry) ([]Pairing, error) {
	if len(cfg.Dispatch.Pairings) == 0 {
		pairings := DefaultPairings(cfg.Discord, registry.EuropeanIDs(), cfg.Dispatch.BatchLimit)
		if len(pairings) == 0 {
			return nil, fmt.Errorf("no dispatch pairings: set at least one discord channel id")
		}
		return pairings, nil
	}

	seen := make(map[string]bool, len(cfg.Dispatch.Pairings))
	out := make([]Pairing, 0, len(cfg.Dispatch.Pairings))
	for _, pc := range cfg.Dispatch.Pairings {
		if seen[pc.Name] {
			return nil, fmt.Errorf("duplicate dispatch pairing %q", pc.Name)
		}
		seen[pc.Name] = true

		for _, id := range append(slices.Clone(pc.Regions), pc.ExcludeRegions...) {
			if _, err := registry.Get(id); err != nil {
				return nil, fmt.Errorf("pairing %s: %w", pc.Name, err)
			}
		}

		p := Pairing{
			Name:      pc.Name,
			ChannelID: pc.ChannelID,
			Criteria: Criteria{
				Regions:        pc.Regions,
				ExcludeRegions: pc.ExcludeRegions,
			},
			Limit: cfg.Dispatch.BatchLimit,
		}
		switch pc.Notable {
		case "true":
			p.Criteria.NotableOnly = boolPtr(true)
		case "false":
			p.Criteria.NotableOnly = boolPtr(false)
		}
		if p.Limit <= 0 {
			p.Limit = defaultPairingPageSize
		}
		out = append(out, p)
	}
	return out, nil
}
