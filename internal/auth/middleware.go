// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tomtom215/onsale/internal/logging"
)

type contextKey string

// ClaimsContextKey holds the verified *Claims on authenticated requests.
const ClaimsContextKey contextKey = "claims"

// UnauthorizedFunc writes the 401 response. The API package supplies one
// that matches its JSON envelope.
type UnauthorizedFunc func(w http.ResponseWriter, r *http.Request, message string)

func defaultUnauthorized(w http.ResponseWriter, _ *http.Request, message string) {
	http.Error(w, message, http.StatusUnauthorized)
}

// RequireToken returns middleware that rejects requests without a valid
// bearer token. A nil onFail falls back to a plain text 401.
func (m *JWTManager) RequireToken(onFail UnauthorizedFunc) func(http.Handler) http.Handler {
	if onFail == nil {
		onFail = defaultUnauthorized
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := extractBearerToken(r.Header.Get("Authorization"))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="onsale"`)
				onFail(w, r, err.Error())
				return
			}

			claims, err := m.ValidateToken(token)
			if err != nil {
				logging.Ctx(r.Context()).Warn().Err(err).Str("path", r.URL.Path).Msg("Token validation failed")
				w.Header().Set("WWW-Authenticate", `Bearer realm="onsale", error="invalid_token"`)
				onFail(w, r, "unauthorized: invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims set by RequireToken.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("unauthorized: missing token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("unauthorized: invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
