// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the body of /healthz and /readyz.
type HealthStatus struct {
	Status            string  `json:"status"`
	Engine            string  `json:"engine,omitempty"`
	DatabaseConnected bool    `json:"database_connected"`
	Uptime            float64 `json:"uptime_seconds"`
}

// HealthLive reports that the process is serving. It never touches the
// store so a slow database cannot get the process restarted.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, HealthStatus{
		Status: "alive",
		Uptime: time.Since(h.startTime).Seconds(),
	}, nil)
}

// HealthReady reports 503 until the store answers a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()

	status := HealthStatus{
		Status: "ready",
		Uptime: time.Since(h.startTime).Seconds(),
	}
	if h.store != nil {
		status.Engine = h.store.Engine()
		status.DatabaseConnected = h.store.Ping(ctx) == nil
	}

	if !status.DatabaseConnected {
		status.Status = "not_ready"
		respondData(w, http.StatusServiceUnavailable, status, nil)
		return
	}
	respondData(w, http.StatusOK, status, nil)
}
