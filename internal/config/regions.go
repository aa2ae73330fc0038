// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package config

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/validation"
)

// Catalog classification ids.
const (
	ClassificationMusic          = "KZFzniwnSyZfZ7v7nJ"
	ClassificationArtsAndTheatre = "KZFzniwnSyZfZ7v7na"
	ClassificationFilm           = "KZFzniwnSyZfZ7v7nn"

	GenreComedy      = "KnvZfZ7vAe1"
	GenreTheatre     = "KnvZfZ7v7l1"
	GenreFilmMisc    = "KnvZfZ7vAka"
	SubGenreFilmMisc = "KZazBEonSMnZfZ7vFln"
	TypeUndefined    = "KZAyXgnZfZ7v7nI"
	SubTypeUndefined = "KZFzBErXgnZfZ7v7lJ"
)

// ClassificationVariant is one entry of a region's rotation set.
type ClassificationVariant struct {
	Name             string `koanf:"name" json:"name" validate:"required"`
	ClassificationID string `koanf:"classification_id" json:"classification_id" validate:"required"`
	GenreID          string `koanf:"genre_id" json:"genre_id,omitempty"`
	SubGenreID       string `koanf:"subgenre_id" json:"subgenre_id,omitempty"`
	TypeID           string `koanf:"type_id" json:"type_id,omitempty"`
	SubTypeID        string `koanf:"subtype_id" json:"subtype_id,omitempty"`
}

// RegionConfig holds the query parameters and presentation for one region.
type RegionConfig struct {
	Name             string                  `koanf:"name" json:"name" validate:"required,region_id"`
	Latitude         float64                 `koanf:"latitude" json:"latitude" validate:"latitude"`
	Longitude        float64                 `koanf:"longitude" json:"longitude" validate:"longitude"`
	Radius           int                     `koanf:"radius" json:"radius" validate:"gt=0"`
	Unit             string                  `koanf:"unit" json:"unit" validate:"oneof=miles km"`
	ClassificationID string                  `koanf:"classification_id" json:"classification_id" validate:"required"`
	GenreID          string                  `koanf:"genre_id" json:"genre_id,omitempty"`
	Rotation         []ClassificationVariant `koanf:"rotation" json:"rotation,omitempty" validate:"dive"`

	// Presentation
	Color  int    `koanf:"color" json:"color" validate:"gte=0,lte=16777215"`
	Footer string `koanf:"footer" json:"footer" validate:"max=2048"`
	Badge  string `koanf:"badge" json:"badge,omitempty" validate:"max=32"`

	// European regions deliver to the European channels.
	European bool `koanf:"european" json:"european"`
}

// LatLong formats the center point as the catalog's latlong parameter.
func (r RegionConfig) LatLong() string {
	return strconv.FormatFloat(r.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(r.Longitude, 'f', -1, 64)
}

// RotationSet returns the configured rotation, or a single variant built
// from ClassificationID and GenreID when none is configured. The result is
// never empty for a validated region.
func (r RegionConfig) RotationSet() []ClassificationVariant {
	if len(r.Rotation) > 0 {
		out := make([]ClassificationVariant, len(r.Rotation))
		copy(out, r.Rotation)
		return out
	}
	return []ClassificationVariant{{
		Name:             r.Name,
		ClassificationID: r.ClassificationID,
		GenreID:          r.GenreID,
	}}
}

// Validate checks ranges and required fields.
func (r RegionConfig) Validate() error {
	if err := validation.ValidateStruct(&r); err != nil {
		return faults.NewConfigurationError(fmt.Sprintf("region %q is invalid", r.Name), err)
	}
	return nil
}

const (
	colorBlue   = 0x3498DB
	colorGreen  = 0x2ECC71
	colorOrange = 0xE67E22
	colorPurple = 0x9B59B6
	colorGold   = 0xF1C40F
	colorRed    = 0xE74C3C
	colorTeal   = 0x1ABC9C
)

func builtinRegions() map[string]RegionConfig {
	music := func(name string, lat, long float64, radius, color int, footer string) RegionConfig {
		return RegionConfig{
			Name:             name,
			Latitude:         lat,
			Longitude:        long,
			Radius:           radius,
			Unit:             "miles",
			ClassificationID: ClassificationMusic,
			Color:            color,
			Footer:           footer,
		}
	}
	arts := func(name, footer string, color int, rotation []ClassificationVariant) RegionConfig {
		return RegionConfig{
			Name:             name,
			Latitude:         44.69209,
			Longitude:        -99.95477,
			Radius:           3016,
			Unit:             "miles",
			ClassificationID: rotation[0].ClassificationID,
			GenreID:          rotation[0].GenreID,
			Rotation:         rotation,
			Color:            color,
			Footer:           footer,
		}
	}

	comedy := ClassificationVariant{Name: "Comedy", ClassificationID: ClassificationArtsAndTheatre, GenreID: GenreComedy}
	theatre := ClassificationVariant{Name: "Theatre", ClassificationID: ClassificationArtsAndTheatre, GenreID: GenreTheatre}
	film := ClassificationVariant{
		Name:             "Film Events",
		ClassificationID: ClassificationFilm,
		GenreID:          GenreFilmMisc,
		SubGenreID:       SubGenreFilmMisc,
		TypeID:           TypeUndefined,
		SubTypeID:        SubTypeUndefined,
	}

	europe := music("europe", 47.37116, 8.50755, 1200, colorTeal, "Europe")
	europe.Unit = "km"
	europe.European = true

	return map[string]RegionConfig{
		"east":    music("east", 43.58785, -64.72599, 950, colorBlue, "East Coast"),
		"north":   music("north", 62.41709, -108.42529, 1717, colorGreen, "North"),
		"south":   music("south", 29.74590, -92.86707, 1094, colorOrange, "South"),
		"west":    music("west", 15.42661, -133.61964, 2171, colorPurple, "West Coast"),
		"europe":  europe,
		"comedy":  arts("comedy", "Comedy, Theatre & Film", colorGold, []ClassificationVariant{comedy, theatre, film}),
		"theater": arts("theater", "Theatre", colorRed, []ClassificationVariant{theatre}),
		"film":    arts("film", "Film", colorRed, []ClassificationVariant{film}),
	}
}

// Registry is the static region lookup table. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	regions map[string]RegionConfig
}

// NewRegistry merges overrides on top of the built-in regions and validates
// every entry. An override replaces the built-in entry with the same id.
func NewRegistry(overrides map[string]RegionConfig) (*Registry, error) {
	regions := builtinRegions()
	for id, rc := range overrides {
		if rc.Name == "" {
			rc.Name = id
		}
		if rc.Unit == "" {
			rc.Unit = "miles"
		}
		regions[id] = rc
	}

	for id, rc := range regions {
		if rc.Name != id {
			return nil, faults.NewConfigurationError(fmt.Sprintf("region key %q does not match name %q", id, rc.Name), nil)
		}
		if err := rc.Validate(); err != nil {
			return nil, err
		}
	}
	return &Registry{regions: regions}, nil
}

// Get returns the region or a ConfigurationError wrapping
// faults.ErrUnknownRegion.
func (r *Registry) Get(id string) (RegionConfig, error) {
	rc, ok := r.regions[id]
	if !ok {
		return RegionConfig{}, faults.NewConfigurationError(
			fmt.Sprintf("region %q (available: %v)", id, r.IDs()), faults.ErrUnknownRegion)
	}
	return rc, nil
}

// IDs returns the sorted region ids.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.regions))
	for id := range r.regions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Select resolves ids, or every region when ids is empty.
func (r *Registry) Select(ids []string) ([]RegionConfig, error) {
	if len(ids) == 0 {
		ids = r.IDs()
	}
	out := make([]RegionConfig, 0, len(ids))
	for _, id := range ids {
		rc, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

// EuropeanIDs returns the ids of regions flagged European, sorted.
func (r *Registry) EuropeanIDs() []string {
	var ids []string
	for _, id := range r.IDs() {
		if r.regions[id].European {
			ids = append(ids, id)
		}
	}
	return ids
}
