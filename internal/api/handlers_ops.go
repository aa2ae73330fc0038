// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/onsale/internal/auth"
	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/logging"
	"github.com/tomtom215/onsale/internal/models"
	"github.com/tomtom215/onsale/internal/reminder"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000

	defaultUpcomingLimit = 20
	maxReminderLead      = 7 * 24 * time.Hour
)

// EventsRequest holds the validated query of GET /api/v1/events.
type EventsRequest struct {
	Status string `validate:"required,oneof=pending retrying sent suppressed exhausted"`
	Limit  int    `validate:"gte=1,lte=1000"`
}

// UpcomingRequest holds the validated query of GET /api/v1/events?upcoming=true.
type UpcomingRequest struct {
	Limit int `validate:"gte=1,lte=50"`
}

// ReminderResponse reports an event's scheduled reminder. ReminderAt is
// null once cleared.
type ReminderResponse struct {
	EventID    string     `json:"event_id"`
	ReminderAt *time.Time `json:"reminder_at"`
}

// eventIDParam bounds what an event id from the path may look like.
type eventIDParam struct {
	ID string `validate:"required,max=64,printascii"`
}

// NotableRequest is the body of PUT /api/v1/artists/{id}/notable.
type NotableRequest struct {
	Notable *bool `json:"notable" validate:"required"`
}

// NotableResponse echoes the applied change.
type NotableResponse struct {
	ArtistID string `json:"artist_id"`
	Notable  bool   `json:"notable"`
}

// artistIDParam bounds what an artist id from the path may look like.
type artistIDParam struct {
	ID string `validate:"required,max=64,printascii"`
}

// Regions lists the configured regions.
//
// @Summary List configured regions
// @Tags Ingestion
// @Produce json
// @Success 200 {object} APIResponse
// @Router /regions [get]
func (h *Handler) Regions(w http.ResponseWriter, r *http.Request) {
	regions, err := h.regions.Select(nil)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeUnavailable, "Failed to list regions", err)
		return
	}
	count := len(regions)
	respondData(w, http.StatusOK, regions, &count)
}

// Pollers lists the per-region poller status rows.
//
// @Summary List poller status per region
// @Tags Ingestion
// @Produce json
// @Success 200 {object} APIResponse
// @Router /pollers [get]
func (h *Handler) Pollers(w http.ResponseWriter, r *http.Request) {
	states, err := h.store.ListPollerStates(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeDatabase, "Failed to list poller status", err)
		return
	}
	if states == nil {
		states = []models.PollerState{}
	}
	count := len(states)
	respondData(w, http.StatusOK, states, &count)
}

// Events lists events by delivery status. status=suppressed and
// status=exhausted form the dead-letter view. upcoming=true lists the next
// sales to open instead.
//
// @Summary List events
// @Tags Events
// @Produce json
// @Param status query string false "Delivery status, required unless upcoming=true" Enums(pending, retrying, sent, suppressed, exhausted)
// @Param upcoming query bool false "List upcoming sales"
// @Param notable query bool false "With upcoming, only notable artists"
// @Param limit query int false "Maximum events"
// @Success 200 {object} APIResponse
// @Failure 400 {object} APIResponse
// @Router /events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("upcoming"); raw != "" {
		upcoming, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "upcoming must be true or false", nil)
			return
		}
		if upcoming {
			h.upcomingEvents(w, r)
			return
		}
	}

	req := EventsRequest{
		Status: strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:  getIntParam(r, "limit", defaultEventsLimit),
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}

	events, err := h.store.ListEventsByStatus(r.Context(), models.DeliveryStatus(req.Status), req.Limit)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeDatabase, "Failed to list events", err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	count := len(events)
	respondData(w, http.StatusOK, events, &count)
}

func (h *Handler) upcomingEvents(w http.ResponseWriter, r *http.Request) {
	req := UpcomingRequest{Limit: getIntParam(r, "limit", defaultUpcomingLimit)}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondValidation(w, apiErr)
		return
	}
	q := database.UpcomingQuery{Limit: req.Limit}
	if raw := r.URL.Query().Get("notable"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "notable must be true or false", nil)
			return
		}
		q.NotableOnly = &v
	}

	events, err := h.store.ListUpcomingEvents(r.Context(), q)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeDatabase, "Failed to list upcoming events", err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	count := len(events)
	respondData(w, http.StatusOK, events, &count)
}

// Artists lists artists. ?notable=true restricts to notable artists.
func (h *Handler) Artists(w http.ResponseWriter, r *http.Request) {
	notableOnly := false
	if raw := r.URL.Query().Get("notable"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "notable must be true or false", nil)
			return
		}
		notableOnly = v
	}

	artists, err := h.store.ListArtists(r.Context(), notableOnly)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, CodeDatabase, "Failed to list artists", err)
		return
	}
	if artists == nil {
		artists = []models.Artist{}
	}
	count := len(artists)
	respondData(w, http.StatusOK, artists, &count)
}

// SetArtistNotable changes an artist's notability. The change affects
// which pairing future candidates route to; already-delivered events are
// not re-sent.
//
// @Summary Set artist notability
// @Tags Artists
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Artist id"
// @Param body body NotableRequest true "Notability"
// @Success 200 {object} NotableResponse
// @Failure 404 {object} APIResponse
// @Router /artists/{id}/notable [put]
func (h *Handler) SetArtistNotable(w http.ResponseWriter, r *http.Request) {
	param := artistIDParam{ID: chi.URLParam(r, "id")}
	if apiErr := validateRequest(&param); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "Invalid artist id", nil)
		return
	}

	var req NotableRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "Body must be {\"notable\": true|false}", nil)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "notable is required", nil)
		return
	}

	if err := h.store.SetArtistNotable(r.Context(), param.ID, *req.Notable); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, CodeNotFound, "Artist not found", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeDatabase, "Failed to update artist", err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("artist_id", sanitizeLogValue(param.ID)).
		Bool("notable", *req.Notable).
		Str("operator", sanitizeLogValue(operator(r))).
		Msg("Artist notability changed")

	respondData(w, http.StatusOK, NotableResponse{ArtistID: param.ID, Notable: *req.Notable}, nil)
}

// ScheduleReminder sets an event's reminder ?lead before its earliest
// upcoming presale, or before the general sale when it has none.
//
// @Summary Schedule a sale reminder
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event id"
// @Param lead query string false "Go duration, defaults to REMINDER_LEAD"
// @Success 200 {object} ReminderResponse
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /events/{id}/reminder [put]
func (h *Handler) ScheduleReminder(w http.ResponseWriter, r *http.Request) {
	param := eventIDParam{ID: chi.URLParam(r, "id")}
	if apiErr := validateRequest(&param); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "Invalid event id", nil)
		return
	}

	lead := h.reminderLead
	if raw := r.URL.Query().Get("lead"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxReminderLead {
			respondError(w, r, http.StatusBadRequest, CodeValidation, "lead must be a duration between 1s and 168h", nil)
			return
		}
		lead = d
	}

	at, err := reminder.Schedule(r.Context(), h.store, param.ID, time.Now(), lead)
	switch {
	case errors.Is(err, database.ErrNotFound):
		respondError(w, r, http.StatusNotFound, CodeNotFound, "Event not found", nil)
		return
	case errors.Is(err, reminder.ErrSaleStarted):
		respondError(w, r, http.StatusConflict, CodeConflict, "The sale has already started", nil)
		return
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, CodeDatabase, "Failed to schedule reminder", err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("event_id", sanitizeLogValue(param.ID)).
		Time("reminder_at", at).
		Str("operator", sanitizeLogValue(operator(r))).
		Msg("Reminder scheduled")

	respondData(w, http.StatusOK, ReminderResponse{EventID: param.ID, ReminderAt: &at}, nil)
}

// ClearReminder drops an event's scheduled reminder.
//
// @Summary Clear a sale reminder
// @Tags Events
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event id"
// @Success 200 {object} ReminderResponse
// @Failure 404 {object} APIResponse
// @Router /events/{id}/reminder [delete]
func (h *Handler) ClearReminder(w http.ResponseWriter, r *http.Request) {
	param := eventIDParam{ID: chi.URLParam(r, "id")}
	if apiErr := validateRequest(&param); apiErr != nil {
		respondError(w, r, http.StatusBadRequest, CodeValidation, "Invalid event id", nil)
		return
	}

	if err := h.store.SetReminder(r.Context(), param.ID, nil); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, CodeNotFound, "Event not found", nil)
			return
		}
		respondError(w, r, http.StatusInternalServerError, CodeDatabase, "Failed to clear reminder", err)
		return
	}

	logging.Ctx(r.Context()).Info().
		Str("event_id", sanitizeLogValue(param.ID)).
		Str("operator", sanitizeLogValue(operator(r))).
		Msg("Reminder cleared")

	respondData(w, http.StatusOK, ReminderResponse{EventID: param.ID}, nil)
}

func operator(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.Subject
	}
	return ""
}
