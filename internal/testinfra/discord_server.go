// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

//go:build integration

package testinfra

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

// DiscordCapture is one message POST received by MockDiscordServer.
type DiscordCapture struct {
	ChannelID     string
	Authorization string
	Body          []byte
}

// MockDiscordServer imitates POST /api/v10/channels/{id}/messages. Every
// request is captured; responses are scripted per call with Script or
// default to 200 with a fresh message id.
type MockDiscordServer struct {
	Server   *httptest.Server
	mu       sync.Mutex
	captures []DiscordCapture
	script   []ScriptedResponse
	nextID   int
}

// ScriptedResponse is returned for one request, in order.
type ScriptedResponse struct {
	Status int
	Body   string
	Header http.Header
}

// RateLimited returns a 429 with a retry_after body, as Discord sends it.
func RateLimited(retryAfter time.Duration, global bool) ScriptedResponse {
	return ScriptedResponse{
		Status: http.StatusTooManyRequests,
		Body: fmt.Sprintf(`{"message":"You are being rate limited.","retry_after":%g,"global":%t}`,
			retryAfter.Seconds(), global),
	}
}

// NewMockDiscordServer starts the server and registers its cleanup.
func NewMockDiscordServer(t *testing.T) *MockDiscordServer {
	t.Helper()

	m := &MockDiscordServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockDiscordServer) handle(w http.ResponseWriter, r *http.Request) {
	const prefix = "/api/v10/channels/"
	if r.Method != http.MethodPost || !strings.HasPrefix(r.URL.Path, prefix) || !strings.HasSuffix(r.URL.Path, "/messages") {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Unknown route","code":0}`)) //nolint:errcheck // test server
		return
	}
	channelID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, prefix), "/messages")
	body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server

	m.mu.Lock()
	m.captures = append(m.captures, DiscordCapture{
		ChannelID:     channelID,
		Authorization: r.Header.Get("Authorization"),
		Body:          body,
	})
	var resp *ScriptedResponse
	if len(m.script) > 0 {
		resp = &m.script[0]
		m.script = m.script[1:]
	}
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if resp != nil {
		for k, vs := range resp.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.Status)
		_, _ = w.Write([]byte(resp.Body)) //nolint:errcheck // test server
		return
	}

	created, _ := json.Marshal(map[string]string{ //nolint:errcheck // static shape
		"id":         fmt.Sprintf("13%017d", id),
		"channel_id": channelID,
	})
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(created) //nolint:errcheck // test server
}

// APIBase is the value for delivery.DiscordConfig.BaseURL.
func (m *MockDiscordServer) APIBase() string {
	return m.Server.URL + "/api/v10"
}

// Script queues responses for the next requests.
func (m *MockDiscordServer) Script(responses ...ScriptedResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
}

// Captures returns a copy of every received message.
func (m *MockDiscordServer) Captures() []DiscordCapture {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DiscordCapture, len(m.captures))
	copy(out, m.captures)
	return out
}

// CapturesFor returns the messages posted to one channel.
func (m *MockDiscordServer) CapturesFor(channelID string) []DiscordCapture {
	var out []DiscordCapture
	for _, c := range m.Captures() {
		if c.ChannelID == channelID {
			out = append(out, c)
		}
	}
	return out
}

// WaitForCaptures polls until n messages arrived or timeout elapses.
func (m *MockDiscordServer) WaitForCaptures(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if len(m.Captures()) >= n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return len(m.Captures()) >= n
}
