// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package api

// Error codes returned in APIError.Code.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeDatabase         = "DATABASE_ERROR"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeAuthNotEnabled   = "AUTH_NOT_CONFIGURED"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)
