// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/onsale/internal/auth"
	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/logging"
)

// tokenTTL is the lifetime of tokens minted by `onsale token`.
const tokenTTL = 24 * time.Hour

// NewTokenManager returns nil, nil when no JWT secret is configured.
func NewTokenManager(cfg config.ServerConfig) (*auth.JWTManager, error) {
	if cfg.JWTSecret == "" {
		return nil, nil
	}
	return auth.NewJWTManager(cfg.JWTSecret, tokenTTL)
}

// NewServer builds the *http.Server for the ops API from configuration.
func NewServer(cfg config.ServerConfig, store Store, regions RegionLister, reminderLead time.Duration) (*http.Server, error) {
	tokens, err := NewTokenManager(cfg)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		logging.Warn().Msg("API_JWT_SECRET not set; mutating ops routes are disabled")
	}

	handler := NewRouter(NewHandler(store, regions, reminderLead), RouterConfig{
		Middleware: &ChiMiddlewareConfig{
			CORSAllowedOrigins: cfg.CORSOrigins,
			CORSMaxAge:         86400,
			RateLimitRequests:  cfg.RateLimitReqs,
			RateLimitWindow:    cfg.RateLimitWindow,
		},
		Tokens: tokens,
	})

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}
