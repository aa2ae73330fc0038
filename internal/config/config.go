// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package config loads onsale configuration from defaults, an optional YAML
// file and environment variables (highest priority), and owns the region
// registry the catalog pollers are built from.
package config

import (
	"time"
)

// Config is the full process configuration.
type Config struct {
	Catalog   CatalogConfig           `koanf:"catalog"`
	Poll      PollConfig              `koanf:"poll"`
	Discord   DiscordConfig           `koanf:"discord"`
	Dispatch  DispatchConfig          `koanf:"dispatch"`
	Database  DatabaseConfig          `koanf:"database"`
	Server    ServerConfig            `koanf:"server"`
	LinkCheck LinkCheckConfig         `koanf:"linkcheck"`
	Reminders ReminderConfig          `koanf:"reminders"`
	Logging   LoggingConfig           `koanf:"logging"`
	Regions   map[string]RegionConfig `koanf:"regions"` // YAML only: adds or overrides built-in regions
}

// CatalogConfig holds the Discovery API client settings.
type CatalogConfig struct {
	APIKey            string        `koanf:"api_key"`
	BaseURL           string        `koanf:"base_url" validate:"required,http_url"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0,lte=5"`
	MaxRateLimitWait  time.Duration `koanf:"max_rate_limit_wait" validate:"gte=0"`
}

// PollConfig holds the per-region poller settings.
type PollConfig struct {
	// Regions lists the regions to poll. Empty means every registered region.
	Regions    []string      `koanf:"regions"`
	Interval   time.Duration `koanf:"interval" validate:"gte=1s"`
	PageSize   int           `koanf:"page_size" validate:"gte=1,lte=200"`
	MaxPages   int           `koanf:"max_pages" validate:"gte=1"`
	MaxRecords int           `koanf:"max_records" validate:"gte=1,lte=1000"`
}

// DiscordConfig holds the bot credentials and the channel for each
// delivery pairing. Channel ids map onto the pairings as follows:
//
//	notable_channel_id            notable artists, non-European regions
//	general_channel_id            everything else, non-European regions
//	european_channel_id           notable artists, European regions
//	european_general_channel_id   everything else, European regions
type DiscordConfig struct {
	BotToken                 string        `koanf:"bot_token"`
	APIBaseURL               string        `koanf:"api_base_url" validate:"required,http_url"`
	NotableChannelID         string        `koanf:"notable_channel_id" validate:"omitempty,snowflake"`
	GeneralChannelID         string        `koanf:"general_channel_id" validate:"omitempty,snowflake"`
	EuropeanChannelID        string        `koanf:"european_channel_id" validate:"omitempty,snowflake"`
	EuropeanGeneralChannelID string        `koanf:"european_general_channel_id" validate:"omitempty,snowflake"`
	Timeout                  time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSecond        float64       `koanf:"requests_per_second" validate:"gt=0"`
}

// DispatchConfig holds the delivery scheduler settings.
type DispatchConfig struct {
	Interval    time.Duration   `koanf:"interval" validate:"gte=1s"`
	MaxAttempts int             `koanf:"max_attempts" validate:"gte=1,lte=20"`
	BatchLimit  int             `koanf:"batch_limit" validate:"gte=1,lte=1000"` // selection page size
	SendTimeout time.Duration   `koanf:"send_timeout" validate:"gt=0"`
	Pairings    []PairingConfig `koanf:"pairings" validate:"dive"` // YAML only; derived from Discord channels when empty
}

// PairingConfig binds a channel to a selection criteria.
type PairingConfig struct {
	Name           string   `koanf:"name" validate:"required"`
	ChannelID      string   `koanf:"channel_id" validate:"required"`
	Regions        []string `koanf:"regions"`
	ExcludeRegions []string `koanf:"exclude_regions"`
	// Notable is "true", "false" or "" (any).
	Notable string `koanf:"notable" validate:"omitempty,oneof=true false"`
}

// DatabaseConfig selects and configures the event store engine.
type DatabaseConfig struct {
	Driver   string `koanf:"driver" validate:"oneof=postgres duckdb"`
	URL      string `koanf:"url"`  // postgres connection string
	Path     string `koanf:"path"` // duckdb file, or ":memory:"
	MaxConns int32  `koanf:"max_conns" validate:"gte=1"`
	MinConns int32  `koanf:"min_conns" validate:"gte=0"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Addr            string        `koanf:"addr" validate:"required"`
	JWTSecret       string        `koanf:"jwt_secret"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs" validate:"gte=1"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
}

// LinkCheckConfig configures the supplementary signup link worker.
type LinkCheckConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Interval      time.Duration `koanf:"interval" validate:"gte=1s"`
	RecheckWindow time.Duration `koanf:"recheck_window" validate:"gt=0"`
	BatchSize     int           `koanf:"batch_size" validate:"gte=1"`
	Timeout       time.Duration `koanf:"timeout" validate:"gt=0"`
	// HoldOff delays the first delivery of an unchecked event so the
	// worker can attach its signup link. Zero disables it.
	HoldOff time.Duration `koanf:"hold_off" validate:"gte=0"`
}

// ReminderConfig configures the sale reminder worker.
type ReminderConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Interval  time.Duration `koanf:"interval" validate:"gte=1s"`
	Lookahead time.Duration `koanf:"lookahead" validate:"gte=0"`
	Lead      time.Duration `koanf:"lead" validate:"gt=0"`
	FollowUp  time.Duration `koanf:"follow_up" validate:"gte=0"`
	BatchSize int           `koanf:"batch_size" validate:"gte=1"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration using the layered koanf loader.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
