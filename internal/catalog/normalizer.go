// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package catalog

import (
	"strings"
	"time"

	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/models"
)

// minImageWidth selects the first image wide enough for an embed.
const minImageWidth = 1024

// Normalize converts a catalog record into an Event tagged with region.
// Every rejection is a *faults.MalformedRecordError; the caller skips the
// record and carries on with the page.
func Normalize(raw *RawEvent, region string) (*models.Event, error) {
	id := strings.TrimSpace(raw.ID)
	if id == "" {
		return nil, faults.NewMalformedRecordError("", "missing event id")
	}

	saleStart, err := parseInstant(raw.Sales.Public.StartDateTime)
	if err != nil || raw.Sales.Public.StartTBA || raw.Sales.Public.StartTBD {
		return nil, faults.NewMalformedRecordError(id, "no public sale start")
	}

	if len(raw.Embedded.Venues) == 0 {
		return nil, faults.NewMalformedRecordError(id, "no venue")
	}
	rv := raw.Embedded.Venues[0]
	state := rv.State.StateCode
	if state == "" {
		state = rv.State.Name
	}
	venue, err := models.NewVenue(rv.ID, rv.Name, rv.City.Name, state, rv.Country.CountryCode)
	if err != nil {
		return nil, faults.NewMalformedRecordError(id, err.Error())
	}

	var artist *models.Artist
	for _, a := range raw.Embedded.Attractions {
		if strings.TrimSpace(a.ID) == "" {
			continue
		}
		if artist, err = models.NewArtist(a.ID, a.Name); err == nil {
			break
		}
	}

	event, err := models.NewEvent(models.EventParams{
		ID:        id,
		Name:      raw.Name,
		Artist:    artist,
		Venue:     venue,
		EventDate: eventDate(raw),
		SaleStart: saleStart,
		URL:       strings.TrimSpace(raw.URL),
		ImageURL:  pickImage(raw.Images),
		Region:    region,
		Presales:  presales(raw.Sales.Presales),
	})
	if err != nil {
		return nil, faults.NewMalformedRecordError(id, err.Error())
	}
	return event, nil
}

// eventDate prefers the exact start instant, then the local date and time
// read as UTC. Unannounced dates yield nil and render as TBA.
func eventDate(raw *RawEvent) *time.Time {
	start := raw.Dates.Start
	if start.DateTBA || start.DateTBD {
		return nil
	}
	if t, err := parseInstant(start.DateTime); err == nil {
		return &t
	}
	if start.LocalDate == "" {
		return nil
	}
	layout, value := "2006-01-02", start.LocalDate
	if start.LocalTime != "" {
		layout, value = "2006-01-02 15:04:05", start.LocalDate+" "+start.LocalTime
	}
	t, err := time.ParseInLocation(layout, value, time.UTC)
	if err != nil {
		return nil
	}
	return &t
}

// presales keeps windows with a parseable start; a bad end is dropped
// rather than the window.
func presales(raw []RawPresale) []models.Presale {
	var out []models.Presale
	for _, rp := range raw {
		start, err := parseInstant(rp.StartDateTime)
		if err != nil {
			continue
		}
		p := models.Presale{Name: rp.Name, Start: start}
		if end, err := parseInstant(rp.EndDateTime); err == nil {
			p.End = &end
		}
		out = append(out, p)
	}
	return out
}

func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func pickImage(images []RawImage) string {
	for _, img := range images {
		if img.Width >= minImageWidth && models.IsHTTPURL(img.URL) {
			return img.URL
		}
	}
	return ""
}
