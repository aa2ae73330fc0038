// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package config

import (
	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/validation"
)

// Validate checks everything that must hold regardless of which command is
// running. Credentials are checked separately by the Require* methods,
// because `onsale regions` needs neither an API key nor a bot token.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return faults.NewConfigurationError("invalid configuration", err)
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return faults.NewConfigurationError("database.min_conns must not exceed database.max_conns", nil)
	}

	registry, err := NewRegistry(c.Regions)
	if err != nil {
		return err
	}
	if _, err := registry.Select(c.Poll.Regions); err != nil {
		return err
	}
	return nil
}

// RequireCatalog checks the settings a poller needs.
func (c *Config) RequireCatalog() error {
	if c.Catalog.APIKey == "" {
		return faults.NewConfigurationError("TICKETMASTER_API_KEY is required", nil)
	}
	return nil
}

// RequireDiscord checks the settings the dispatcher needs.
func (c *Config) RequireDiscord() error {
	if c.Discord.BotToken == "" {
		return faults.NewConfigurationError("DISCORD_BOT_TOKEN is required", nil)
	}
	if c.Discord.NotableChannelID == "" && c.Discord.GeneralChannelID == "" &&
		c.Discord.EuropeanChannelID == "" && c.Discord.EuropeanGeneralChannelID == "" &&
		len(c.Dispatch.Pairings) == 0 {
		return faults.NewConfigurationError("at least one Discord channel id is required", nil)
	}
	return nil
}

// RequireDatabase checks the selected store engine has a location.
func (c *Config) RequireDatabase() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return faults.NewConfigurationError("DATABASE_URL is required when DATABASE_DRIVER=postgres", nil)
		}
	case "duckdb":
		if c.Database.Path == "" {
			return faults.NewConfigurationError("DUCKDB_PATH is required when DATABASE_DRIVER=duckdb", nil)
		}
	}
	return nil
}

// RequireAPIAuth checks the ops server can verify operator tokens.
func (c *Config) RequireAPIAuth() error {
	if len(c.Server.JWTSecret) < 32 {
		return faults.NewConfigurationError("API_JWT_SECRET must be at least 32 characters", nil)
	}
	return nil
}

// Registry builds the region registry for this configuration.
func (c *Config) Registry() (*Registry, error) {
	return NewRegistry(c.Regions)
}
