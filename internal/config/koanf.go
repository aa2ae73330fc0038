// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order; the first existing file wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/onsale/config.yaml",
	"/etc/onsale/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			BaseURL:           "https://app.ticketmaster.com",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 1,
			MaxRateLimitWait:  5 * time.Second,
		},
		Poll: PollConfig{
			Interval:   60 * time.Second,
			PageSize:   199,
			MaxPages:   5,
			MaxRecords: 1000,
		},
		Discord: DiscordConfig{
			APIBaseURL:        "https://discord.com/api/v10",
			Timeout:           10 * time.Second,
			RequestsPerSecond: 5,
		},
		Dispatch: DispatchConfig{
			Interval:    60 * time.Second,
			MaxAttempts: 3,
			BatchLimit:  50,
			SendTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "duckdb",
			Path:     "/data/onsale.duckdb",
			MaxConns: 10,
			MinConns: 2,
		},
		Server: ServerConfig{
			Enabled:         true,
			Addr:            ":8080",
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   60,
			RateLimitWindow: time.Minute,
			ReadTimeout:     10 * time.Second,
		},
		LinkCheck: LinkCheckConfig{
			Enabled:       true,
			Interval:      10 * time.Minute,
			RecheckWindow: 48 * time.Hour,
			BatchSize:     20,
			Timeout:       10 * time.Second,
			HoldOff:       15 * time.Minute,
		},
		Reminders: ReminderConfig{
			Enabled:   true,
			Interval:  time.Minute,
			Lookahead: 5 * time.Minute,
			Lead:      12 * time.Hour,
			FollowUp:  time.Hour,
			BatchSize: 50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf layers defaults, the config file and the environment, then
// validates the result.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are accepted as comma-separated strings from the
// environment.
var sliceConfigPaths = []string{
	"poll.regions",
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings lists every environment variable onsale reads. Unlisted
// variables are ignored so the host environment cannot leak into config.
// The Discord channel names keep the deployment's historical variable
// names.
var envMappings = map[string]string{
	"ticketmaster_api_key": "catalog.api_key",
	"catalog_base_url":     "catalog.base_url",
	"catalog_timeout":      "catalog.timeout",
	"catalog_rps":          "catalog.requests_per_second",

	"poll_regions":   "poll.regions",
	"poll_interval":  "poll.interval",
	"poll_page_size": "poll.page_size",
	"poll_max_pages": "poll.max_pages",

	"discord_bot_token":      "discord.bot_token",
	"discord_api_base_url":   "discord.api_base_url",
	"discord_channel_id":     "discord.notable_channel_id",
	"discord_channel_id_two": "discord.general_channel_id",
	"european_channel":       "discord.european_channel_id",
	"european_channel_two":   "discord.european_general_channel_id",

	"dispatch_interval":     "dispatch.interval",
	"delivery_max_attempts": "dispatch.max_attempts",
	"dispatch_batch_limit":  "dispatch.batch_limit",

	"database_driver": "database.driver",
	"database_url":    "database.url",
	"duckdb_path":     "database.path",

	"http_enabled":      "server.enabled",
	"http_addr":         "server.addr",
	"api_jwt_secret":    "server.jwt_secret",
	"cors_origins":      "server.cors_origins",
	"rate_limit_reqs":   "server.rate_limit_reqs",
	"rate_limit_window": "server.rate_limit_window",

	"linkcheck_enabled":        "linkcheck.enabled",
	"linkcheck_interval":       "linkcheck.interval",
	"linkcheck_recheck_window": "linkcheck.recheck_window",
	"linkcheck_hold_off":       "linkcheck.hold_off",

	"reminders_enabled":  "reminders.enabled",
	"reminder_interval":  "reminders.interval",
	"reminder_lead":      "reminders.lead",
	"reminder_follow_up": "reminders.follow_up",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
