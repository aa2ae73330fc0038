// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatusClass(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{0, "error"},
		{-1, "error"},
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{401, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		if got := statusClass(tt.status); got != tt.want {
			t.Errorf("statusClass(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestRecordStoreQuery_CountsErrors(t *testing.T) {
	before := testutil.ToFloat64(StoreQueryErrors.WithLabelValues("test", "upsert_event"))

	RecordStoreQuery("test", "upsert_event", time.Now(), nil)
	RecordStoreQuery("test", "upsert_event", time.Now(), errors.New("conflict"))

	after := testutil.ToFloat64(StoreQueryErrors.WithLabelValues("test", "upsert_event"))
	if after-before != 1 {
		t.Errorf("error counter delta = %v, want 1", after-before)
	}
}

func TestRecordPollTick(t *testing.T) {
	before := testutil.ToFloat64(PollTicks.WithLabelValues("test-region", "success"))
	RecordPollTick("test-region", "success", 2*time.Second)
	after := testutil.ToFloat64(PollTicks.WithLabelValues("test-region", "success"))
	if after-before != 1 {
		t.Errorf("poll tick delta = %v, want 1", after-before)
	}
}

func TestRecordDispatchTick_SetsCandidateGauge(t *testing.T) {
	RecordDispatchTick("test-pairing", 7, 10*time.Millisecond)
	if got := testutil.ToFloat64(DispatchCandidates.WithLabelValues("test-pairing")); got != 7 {
		t.Errorf("candidates gauge = %v, want 7", got)
	}
}

func TestRecordCatalogStatus(t *testing.T) {
	before := testutil.ToFloat64(CatalogRequests.WithLabelValues("5xx"))
	RecordCatalogStatus(502)
	if got := testutil.ToFloat64(CatalogRequests.WithLabelValues("5xx")) - before; got != 1 {
		t.Errorf("5xx delta = %v, want 1", got)
	}
}
