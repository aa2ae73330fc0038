// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package supervisor runs the long-lived pipeline components under a suture
// v4 supervision tree. Each layer restarts its own services with backoff, so
// one region's poller failing repeatedly never takes the dispatch scheduler
// down with it. Adapters from components to suture.Service live in the
// services subpackage.
package supervisor
