// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRequireToken(t *testing.T) {
	t.Parallel()

	m, err := NewJWTManager(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	valid, err := m.GenerateToken("alice")
	if err != nil {
		t.Fatal(err)
	}

	var gotSubject string
	handler := m.RequireToken(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if ok {
			gotSubject = claims.Subject
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + valid, http.StatusNoContent},
		{"lowercase scheme", "bearer " + valid, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"basic scheme", "Basic YWxpY2U6c2VjcmV0", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/artists/A1/notable", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
		if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
			t.Errorf("%s: missing WWW-Authenticate challenge", tt.name)
		}
	}
	if gotSubject != "alice" {
		t.Errorf("subject in context = %q", gotSubject)
	}
}

func TestRequireToken_CustomFailure(t *testing.T) {
	t.Parallel()

	m, _ := NewJWTManager(testSecret, time.Hour) //nolint:errcheck // valid secret
	var called bool
	onFail := func(w http.ResponseWriter, _ *http.Request, _ string) {
		called = true
		w.WriteHeader(http.StatusUnauthorized)
	}
	handler := m.RequireToken(onFail)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", nil))
	if !called || rec.Code != http.StatusUnauthorized {
		t.Errorf("custom failure not used: called=%v code=%d", called, rec.Code)
	}
}
