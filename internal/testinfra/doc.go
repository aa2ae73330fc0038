// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package testinfra provides container and HTTP fakes for integration tests.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./...
//
// # PostgreSQL
//
// PostgresContainer starts a throwaway database for the pgx store:
//
//	pg, err := testinfra.NewPostgresContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, pg.Container)
//
//	store, err := database.NewPostgres(ctx, database.PostgresConfig{URL: pg.URL})
//
// # Discord
//
// MockDiscordServer records channel message posts and answers with a
// scripted sequence of responses, so the full poll, dispatch and delivery
// path can run without a bot token.
//
// Tests are skipped when Docker is unavailable.
package testinfra
