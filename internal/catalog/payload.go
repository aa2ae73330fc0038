// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package catalog

// Wire types for the Discovery API events search. Only the fields onsale
// reads are declared.

// SearchResponse is the body of GET /discovery/v2/events.json.
type SearchResponse struct {
	Embedded *struct {
		Events []RawEvent `json:"events"`
	} `json:"_embedded,omitempty"`
	Page PageInfo `json:"page"`
}

// PageInfo is the pagination block.
type PageInfo struct {
	Size          int `json:"size"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Number        int `json:"number"`
}

// RawEvent is one catalog record before normalization.
type RawEvent struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	URL    string     `json:"url"`
	Images []RawImage `json:"images"`
	Dates  struct {
		Start struct {
			LocalDate string `json:"localDate"`
			LocalTime string `json:"localTime"`
			DateTime  string `json:"dateTime"`
			DateTBD   bool   `json:"dateTBD"`
			DateTBA   bool   `json:"dateTBA"`
		} `json:"start"`
	} `json:"dates"`
	Sales struct {
		Public struct {
			StartDateTime string `json:"startDateTime"`
			StartTBD      bool   `json:"startTBD"`
			StartTBA      bool   `json:"startTBA"`
		} `json:"public"`
		Presales []RawPresale `json:"presales"`
	} `json:"sales"`
	Embedded struct {
		Venues      []RawVenue      `json:"venues"`
		Attractions []RawAttraction `json:"attractions"`
	} `json:"_embedded"`
}

// RawPresale is one entry of sales.presales.
type RawPresale struct {
	Name          string `json:"name"`
	StartDateTime string `json:"startDateTime"`
	EndDateTime   string `json:"endDateTime"`
}

// RawImage is one entry of the images array.
type RawImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// RawVenue is the venue block.
type RawVenue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	State struct {
		Name      string `json:"name"`
		StateCode string `json:"stateCode"`
	} `json:"state"`
	Country struct {
		Name        string `json:"name"`
		CountryCode string `json:"countryCode"`
	} `json:"country"`
}

// RawAttraction is one performer.
type RawAttraction struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Events returns the embedded events or nil.
func (r *SearchResponse) Events() []RawEvent {
	if r.Embedded == nil {
		return nil
	}
	return r.Embedded.Events
}
