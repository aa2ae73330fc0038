// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package models defines the records shared by ingestion, storage and
// delivery: Artist, Venue, Event and the delivery bookkeeping attached to
// each Event.
//
// Records are created through constructors that reject incomplete catalog
// data, so code holding an *Event can rely on a non-empty id, name, venue
// and sale start.
package models

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrInvalidRecord is wrapped by every constructor validation failure.
var ErrInvalidRecord = errors.New("invalid record")

// ============================================================================
// Artist and Venue
// ============================================================================

// Artist is a performer or attraction. Notable is only ever changed by an
// operator; ingestion never overwrites it.
type Artist struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Notable bool   `json:"notable"`
}

// NewArtist validates and builds an Artist.
func NewArtist(id, name string) (*Artist, error) {
	id, name = strings.TrimSpace(id), strings.TrimSpace(name)
	if id == "" {
		return nil, fmt.Errorf("%w: artist id is empty", ErrInvalidRecord)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: artist %s has no name", ErrInvalidRecord, id)
	}
	return &Artist{ID: id, Name: name}, nil
}

// Venue is where an event takes place.
type Venue struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country,omitempty"`
}

// NewVenue validates and builds a Venue. Missing city or state fall back to
// "Unknown City" and "Unknown State" so the notification line stays readable.
func NewVenue(id, name, city, state, country string) (*Venue, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: venue id is empty", ErrInvalidRecord)
	}
	v := &Venue{
		ID:      id,
		Name:    orDefault(name, "Unknown Venue"),
		City:    orDefault(city, "Unknown City"),
		State:   orDefault(state, "Unknown State"),
		Country: strings.ToUpper(strings.TrimSpace(country)),
	}
	return v, nil
}

// Presale is one restricted sale window ahead of the public on-sale.
type Presale struct {
	Name  string     `json:"name"`
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// ============================================================================
// Delivery state
// ============================================================================

// DeliveryStatus mirrors the delivery columns for operators.
type DeliveryStatus string

const (
	// DeliveryPending: never attempted.
	DeliveryPending DeliveryStatus = "pending"
	// DeliveryRetrying: at least one retryable failure, still under the cap.
	DeliveryRetrying DeliveryStatus = "retrying"
	// DeliverySent: confirmed by the platform.
	DeliverySent DeliveryStatus = "sent"
	// DeliverySuppressed: terminal failure, confirmed_sent set without a
	// platform confirmation. last_error explains why.
	DeliverySuppressed DeliveryStatus = "suppressed"
	// DeliveryExhausted: retryable failures reached the cap. confirmed_sent
	// stays false.
	DeliveryExhausted DeliveryStatus = "exhausted"
)

// ValidDeliveryStatuses lists every status, in lifecycle order.
var ValidDeliveryStatuses = []DeliveryStatus{
	DeliveryPending,
	DeliveryRetrying,
	DeliverySent,
	DeliverySuppressed,
	DeliveryExhausted,
}

// IsValidDeliveryStatus reports whether s names a known status.
func IsValidDeliveryStatus(s string) bool {
	for _, v := range ValidDeliveryStatuses {
		if string(v) == s {
			return true
		}
	}
	return false
}

// DeliveryState is the bookkeeping owned by the delivery engine. Ingestion
// never writes these fields.
type DeliveryState struct {
	ConfirmedSent     bool           `json:"confirmed_sent"`
	AttemptCount      int            `json:"attempt_count"`
	LastAttemptAt     *time.Time     `json:"last_attempt_at,omitempty"`
	LastError         *string        `json:"last_error,omitempty"`
	NextAttemptAt     *time.Time     `json:"next_attempt_at,omitempty"`
	Status            DeliveryStatus `json:"status"`
	ExternalMessageID *string        `json:"external_message_id,omitempty"`
}

// SameVersion reports whether two snapshots of the same event have the
// same optimistic-lock version (attempt counter and confirmed flag).
func (d DeliveryState) SameVersion(other DeliveryState) bool {
	return d.ConfirmedSent == other.ConfirmedSent && d.AttemptCount == other.AttemptCount
}

// ============================================================================
// Event
// ============================================================================

// Event is one catalog listing. ID is the catalog's identifier and the
// primary key of the store.
type Event struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	ArtistID         *string    `json:"artist_id,omitempty"`
	Artist           *Artist    `json:"artist,omitempty"`
	VenueID          string     `json:"venue_id"`
	Venue            *Venue     `json:"venue,omitempty"`
	EventDate        *time.Time `json:"event_date,omitempty"`
	SaleStart        time.Time  `json:"sale_start"`
	URL              string     `json:"url"`
	ImageURL         *string    `json:"image_url,omitempty"`
	Region           string     `json:"region"`
	SupplementaryURL *string    `json:"supplementary_url,omitempty"`
	Presales         []Presale  `json:"presales,omitempty"`

	// ReminderAt is when the next sale reminder is due. Only operators and
	// the reminder worker write it.
	ReminderAt *time.Time `json:"reminder_at,omitempty"`

	Delivery DeliveryState `json:"delivery"`
}

// EventParams carries the normalized fields for NewEvent.
type EventParams struct {
	ID        string
	Name      string
	Artist    *Artist
	Venue     *Venue
	EventDate *time.Time
	SaleStart time.Time
	URL       string
	ImageURL  string
	Region    string
	Presales  []Presale
}

// NewEvent validates p and returns a pending Event.
func NewEvent(p EventParams) (*Event, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: event id is empty", ErrInvalidRecord)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: event %s has no name", ErrInvalidRecord, id)
	}
	if p.Venue == nil {
		return nil, fmt.Errorf("%w: event %s has no venue", ErrInvalidRecord, id)
	}
	if p.SaleStart.IsZero() {
		return nil, fmt.Errorf("%w: event %s has no public sale start", ErrInvalidRecord, id)
	}
	if !IsHTTPURL(p.URL) {
		return nil, fmt.Errorf("%w: event %s has invalid url %q", ErrInvalidRecord, id, p.URL)
	}
	region := strings.TrimSpace(p.Region)
	if region == "" {
		return nil, fmt.Errorf("%w: event %s has no region", ErrInvalidRecord, id)
	}

	e := &Event{
		ID:        id,
		Name:      name,
		Artist:    p.Artist,
		Venue:     p.Venue,
		VenueID:   p.Venue.ID,
		SaleStart: p.SaleStart.UTC(),
		URL:       p.URL,
		Region:    region,
		Delivery:  DeliveryState{Status: DeliveryPending},
	}
	if p.Artist != nil {
		artistID := p.Artist.ID
		e.ArtistID = &artistID
	}
	if p.EventDate != nil {
		d := p.EventDate.UTC()
		e.EventDate = &d
	}
	if p.ImageURL != "" && IsHTTPURL(p.ImageURL) {
		img := p.ImageURL
		e.ImageURL = &img
	}
	e.Presales = SortPresales(p.Presales)
	return e, nil
}

// SortPresales returns the presales with a name and start, earliest first.
func SortPresales(in []Presale) []Presale {
	var out []Presale
	for _, ps := range in {
		name := strings.TrimSpace(ps.Name)
		if name == "" || ps.Start.IsZero() {
			continue
		}
		p := Presale{Name: name, Start: ps.Start.UTC()}
		if ps.End != nil && !ps.End.IsZero() {
			end := ps.End.UTC()
			p.End = &end
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// NextPresale returns the earliest presale starting after now.
func (e *Event) NextPresale(now time.Time) (Presale, bool) {
	for _, p := range e.Presales {
		if p.Start.After(now) {
			return p, true
		}
	}
	return Presale{}, false
}

// ArtistName returns the artist display name or "".
func (e *Event) ArtistName() string {
	if e.Artist == nil {
		return ""
	}
	return e.Artist.Name
}

// IsNotable reports whether the linked artist is flagged notable.
func (e *Event) IsNotable() bool {
	return e.Artist != nil && e.Artist.Notable
}

// IsHTTPURL reports whether raw is an absolute http or https URL with a host.
func IsHTTPURL(raw string) bool {
	if raw == "" || strings.ContainsAny(raw, " \t\r\n") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}
