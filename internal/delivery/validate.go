// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package delivery

import (
	"fmt"
	"unicode/utf8"

	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/models"
)

// Platform limits, counted in characters.
const (
	MaxTitleLength       = 256
	MaxDescriptionLength = 4096
	MaxFooterLength      = 2048
	MaxEmbedTotalLength  = 6000
	MaxContentLength     = 2000
	MaxEmbeds            = 10
)

// ValidateMessage rejects a message the platform would refuse. Every
// failure is a *faults.TerminalPayloadError: the event data itself is at
// fault and a retry cannot succeed.
func ValidateMessage(msg *Message) error {
	if msg == nil || len(msg.Embeds) == 0 {
		return faults.NewTerminalPayloadError("message has no embeds", nil)
	}
	if len(msg.Embeds) > MaxEmbeds {
		return faults.NewTerminalPayloadError(fmt.Sprintf("message has %d embeds, limit %d", len(msg.Embeds), MaxEmbeds), nil)
	}
	if n := utf8.RuneCountInString(msg.Content); n > MaxContentLength {
		return tooLong("content", n, MaxContentLength)
	}

	total := 0
	for i := range msg.Embeds {
		n, err := validateEmbed(&msg.Embeds[i])
		if err != nil {
			return err
		}
		total += n
	}
	if total > MaxEmbedTotalLength {
		return tooLong("embed text", total, MaxEmbedTotalLength)
	}
	return nil
}

func validateEmbed(e *Embed) (int, error) {
	title := utf8.RuneCountInString(e.Title)
	if title > MaxTitleLength {
		return 0, tooLong("title", title, MaxTitleLength)
	}
	desc := utf8.RuneCountInString(e.Description)
	if desc > MaxDescriptionLength {
		return 0, tooLong("description", desc, MaxDescriptionLength)
	}
	footer := 0
	if e.Footer != nil {
		footer = utf8.RuneCountInString(e.Footer.Text)
		if footer > MaxFooterLength {
			return 0, tooLong("footer", footer, MaxFooterLength)
		}
	}
	if e.URL != "" && !models.IsHTTPURL(e.URL) {
		return 0, faults.NewTerminalPayloadError(fmt.Sprintf("embed url %q is not an absolute http(s) url", e.URL), nil)
	}
	if e.Image != nil && !models.IsHTTPURL(e.Image.URL) {
		return 0, faults.NewTerminalPayloadError(fmt.Sprintf("image url %q is not an absolute http(s) url", e.Image.URL), nil)
	}
	return title + desc + footer, nil
}

func tooLong(field string, n, limit int) error {
	return faults.NewTerminalPayloadError(fmt.Sprintf("%s is %d characters, limit %d", field, n, limit), nil)
}
