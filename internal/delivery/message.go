// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package delivery

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/models"
)

const (
	// defaultColor is used for events whose region is no longer registered.
	defaultColor = 0x3498DB

	reminderColor  = 0xFFD700
	reminderPrefix = "🔔 REMINDER: "

	// maxPresaleLines caps the presale lines in a description.
	maxPresaleLines = 5
)

// Message is a channel message carrying a single embed.
type Message struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds"`
}

// Embed represents a Discord embed object.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
}

// EmbedFooter represents the footer of an embed.
type EmbedFooter struct {
	Text string `json:"text"`
}

// EmbedImage represents the large image of an embed.
type EmbedImage struct {
	URL string `json:"url"`
}

// FormatDate renders t in UTC as "December 2nd, 2024 at 11:45 AM UTC".
func FormatDate(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s %d%s, %d at %s UTC", t.Month(), t.Day(), ordinalSuffix(t.Day()), t.Year(), t.Format("3:04 PM"))
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

func formatOptionalDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "TBA"
	}
	return FormatDate(*t)
}

// Title is "Artist - Event", or the event name alone when there is no
// artist. The region badge, if any, is prepended.
func Title(e *models.Event, region config.RegionConfig) string {
	title := e.Name
	if name := e.ArtistName(); name != "" {
		title = name + " - " + e.Name
	}
	if region.Badge != "" {
		title = region.Badge + " " + title
	}
	return title
}

// Description renders the location, date and sale lines.
func Description(e *models.Event) string {
	city, state := "Unknown City", "Unknown State"
	if e.Venue != nil {
		city, state = e.Venue.City, e.Venue.State
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Location**: %s, %s\n", city, state)
	fmt.Fprintf(&sb, "**Event Date**: %s\n", formatOptionalDate(e.EventDate))
	sale := e.SaleStart
	fmt.Fprintf(&sb, "**Sale Start**: %s", formatOptionalDate(&sale))
	for i, p := range e.Presales {
		if i == maxPresaleLines {
			fmt.Fprintf(&sb, "\n**Presales**: %d more", len(e.Presales)-i)
			break
		}
		fmt.Fprintf(&sb, "\n**Presale**: %s, %s", p.Name, FormatDate(p.Start))
	}
	if e.SupplementaryURL != nil && *e.SupplementaryURL != "" {
		fmt.Fprintf(&sb, "\n**Verified Fan**: %s", *e.SupplementaryURL)
	}
	return sb.String()
}

// BuildMessage formats e for delivery. region supplies the color, footer
// and badge; a zero RegionConfig falls back to the event's region id.
func BuildMessage(e *models.Event, region config.RegionConfig) *Message {
	color := region.Color
	if color == 0 {
		color = defaultColor
	}
	footer := region.Footer
	if footer == "" {
		footer = e.Region
	}

	embed := Embed{
		Title:       Title(e, region),
		Description: Description(e),
		URL:         e.URL,
		Color:       color,
		Footer:      &EmbedFooter{Text: footer},
	}
	if e.ImageURL != nil && *e.ImageURL != "" {
		embed.Image = &EmbedImage{URL: *e.ImageURL}
	}
	return &Message{Embeds: []Embed{embed}}
}

// Countdown is the reminder headline: how long until the next presale or
// the general sale opens.
func Countdown(e *models.Event, now time.Time) string {
	what, start := "Tickets go on sale", e.SaleStart
	if p, ok := e.NextPresale(now); ok && p.Start.Before(e.SaleStart) {
		what, start = p.Name+" starts", p.Start
	}

	until := start.Sub(now)
	switch {
	case until <= 0:
		return "**Tickets are now on sale!**"
	case until < time.Hour:
		return fmt.Sprintf("**%s in less than 1 hour!**", what)
	default:
		return fmt.Sprintf("**%s in ~%d hours!**", what, int(until.Round(time.Hour)/time.Hour))
	}
}

// BuildReminder formats the reminder for e: the delivery message with a
// countdown headline, a reminder title and a gold color.
func BuildReminder(e *models.Event, region config.RegionConfig, now time.Time) *Message {
	msg := BuildMessage(e, region)
	embed := &msg.Embeds[0]
	embed.Title = reminderPrefix + embed.Title
	embed.Description = Countdown(e, now) + "\n\n" + embed.Description
	embed.Color = reminderColor
	return msg
}
