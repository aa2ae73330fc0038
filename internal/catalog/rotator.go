// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package catalog

import (
	"sync"

	"github.com/tomtom215/onsale/internal/config"
)

// Rotator hands out the classification variant for each poll of a region,
// cycling through the region's rotation set in order. Cursors are kept per
// region so regions never disturb each other.
type Rotator struct {
	mu      sync.Mutex
	cursors map[string]int
}

// NewRotator returns a Rotator with every cursor at the first variant.
func NewRotator() *Rotator {
	return &Rotator{cursors: make(map[string]int)}
}

// Next returns the variant to use now and advances the region's cursor.
func (r *Rotator) Next(region config.RegionConfig) config.ClassificationVariant {
	set := region.RotationSet()

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.cursors[region.Name] % len(set)
	r.cursors[region.Name] = (i + 1) % len(set)
	return set[i]
}

// peek returns the variant the next call to Next will return.
func (r *Rotator) peek(region config.RegionConfig) config.ClassificationVariant {
	set := region.RotationSet()

	r.mu.Lock()
	defer r.mu.Unlock()
	return set[r.cursors[region.Name]%len(set)]
}
