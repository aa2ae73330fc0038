// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package faults

import (
	"context"
	"sync"

	"github.com/tomtom215/onsale/internal/logging"
	"github.com/tomtom215/onsale/internal/metrics"
)

// Escalator receives failures that need operator attention.
type Escalator interface {
	Escalate(ctx context.Context, source string, err error)
}

// LogEscalator writes an error entry and bumps onsale_escalations_total.
// It is the default escalation path for every component.
type LogEscalator struct{}

// Escalate implements Escalator.
func (LogEscalator) Escalate(ctx context.Context, source string, err error) {
	kind := KindOf(err)
	metrics.Escalations.WithLabelValues(source, kind.String()).Inc()
	logging.Ctx(ctx).Error().
		Err(err).
		Str("source", source).
		Str("error_kind", kind.String()).
		Msg("Escalating failure that requires operator action")
}

// RecordingEscalator keeps escalations in memory. The CLI uses it in
// --once mode to set a non-zero exit status.
type RecordingEscalator struct {
	Next Escalator

	mu     sync.Mutex
	errors []error
}

// Escalate implements Escalator.
func (r *RecordingEscalator) Escalate(ctx context.Context, source string, err error) {
	r.mu.Lock()
	r.errors = append(r.errors, err)
	r.mu.Unlock()
	if r.Next != nil {
		r.Next.Escalate(ctx, source, err)
	}
}

// Errors returns a copy of everything escalated so far.
func (r *RecordingEscalator) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.errors))
	copy(out, r.errors)
	return out
}
