// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package auth issues and verifies the HS256 operator tokens that guard the
// mutating ops API routes.
//
// Tokens are minted offline with `onsale token <subject>` using the same
// API_JWT_SECRET the server verifies with:
//
//	mgr, err := auth.NewJWTManager(cfg.Server.JWTSecret, 24*time.Hour)
//	r.With(mgr.RequireToken(nil)).Put("/artists/{id}/notable", h.SetArtistNotable)
package auth
