// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/onsale/internal/faults"
)

const (
	// discordCodeInvalidFormBody is returned for payloads that fail the
	// platform's schema checks.
	discordCodeInvalidFormBody = 50035

	maxErrorBodySize  = 4 * 1024
	defaultRetryAfter = time.Second
	discordUserAgent  = "DiscordBot (https://github.com/tomtom215/onsale, 1.0)"
)

// DiscordConfig configures DiscordChannel.
type DiscordConfig struct {
	// BaseURL is the versioned API root, e.g. https://discord.com/api/v10.
	BaseURL           string
	BotToken          string
	Timeout           time.Duration
	RequestsPerSecond float64
	// HTTPClient overrides the default client. Tests use it.
	HTTPClient *http.Client
}

// DiscordChannel posts messages with a bot token through the REST API.
// Sends are paced by a token bucket. A rate limit response blocks the
// target channel until the platform's delay has passed; a global one
// blocks every target.
type DiscordChannel struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter

	mu           sync.Mutex
	blockedUntil time.Time
	targetBlocks map[string]time.Time
	now          func() time.Time
}

// NewDiscordChannel builds a channel.
func NewDiscordChannel(cfg DiscordConfig) *DiscordChannel {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	return &DiscordChannel{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.BotToken,
		httpClient:   hc,
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		targetBlocks: make(map[string]time.Time),
		now:          time.Now,
	}
}

// Name implements Channel.
func (c *DiscordChannel) Name() string { return "discord" }

// discordMessage is the subset of the created message we read.
type discordMessage struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

// discordError is the platform's error body. 429 responses carry
// RetryAfter (seconds) and Global.
type discordError struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}

// Send implements Channel.
func (c *DiscordChannel) Send(ctx context.Context, target string, msg *Message) (string, error) {
	if target == "" {
		return "", faults.NewConfigurationError("discord channel id is empty", nil)
	}
	if err := c.waitBlocked(ctx, target); err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", faults.NewTransientNetworkError("rate limiter wait", 0, err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", faults.NewTerminalPayloadError("encode message", err)
	}

	endpoint := c.baseURL + "/channels/" + url.PathEscape(target) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", faults.NewConfigurationError("invalid discord request", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", discordUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", faults.NewTransientNetworkError("discord request failed", 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var created discordMessage
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&created); err != nil {
			return "", faults.NewTransientNetworkError("decode discord response", resp.StatusCode, err)
		}
		return created.ID, nil
	}
	return "", c.classifyStatus(resp, target)
}

func (c *DiscordChannel) classifyStatus(resp *http.Response, target string) error {
	code := resp.StatusCode
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	var body discordError
	if readErr == nil && len(raw) > 0 {
		_ = json.Unmarshal(raw, &body) //nolint:errcheck // non-JSON bodies fall back to the raw text
	}
	detail := body.Message
	if detail == "" {
		detail = strings.TrimSpace(string(raw))
	}

	switch {
	case code == http.StatusTooManyRequests:
		wait := retryAfterFrom(body, resp.Header)
		rl := faults.NewRateLimitError("discord: "+detail, wait)
		rl.Global = body.Global || resp.Header.Get("X-RateLimit-Global") == "true"
		if rl.Global {
			c.blockFor("", wait)
		} else {
			c.blockFor(target, wait)
		}
		return rl
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		cfgErr := faults.NewConfigurationError(fmt.Sprintf("discord rejected bot credentials (HTTP %d)", code), errors.New(detail))
		cfgErr.Auth = true
		return cfgErr
	case code == http.StatusNotFound:
		return faults.NewConfigurationError("discord channel not found (HTTP 404)", errors.New(detail))
	case code >= 500:
		return faults.NewTransientNetworkError("discord server error: "+detail, code, nil)
	case body.Code == discordCodeInvalidFormBody:
		return faults.NewTerminalPayloadError(fmt.Sprintf("discord invalid form body (HTTP %d)", code), errors.New(string(raw)))
	default:
		return faults.NewTerminalPayloadError(fmt.Sprintf("discord rejected message (HTTP %d)", code), errors.New(detail))
	}
}

// retryAfterFrom prefers the JSON retry_after, then the Retry-After and
// X-RateLimit-Reset-After headers.
func retryAfterFrom(body discordError, h http.Header) time.Duration {
	if body.RetryAfter > 0 {
		return time.Duration(body.RetryAfter * float64(time.Second))
	}
	for _, key := range []string{"Retry-After", "X-RateLimit-Reset-After"} {
		if v := strings.TrimSpace(h.Get(key)); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return defaultRetryAfter
}

// BlockedFor reports how long sends to target must still wait for a rate
// limit to expire.
func (c *DiscordChannel) BlockedFor(target string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	until := c.blockedUntil
	if t, ok := c.targetBlocks[target]; ok {
		if !t.After(now) {
			delete(c.targetBlocks, target)
		} else if t.After(until) {
			until = t
		}
	}
	if wait := until.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// blockFor blocks target for d. An empty target blocks every target.
func (c *DiscordChannel) blockFor(target string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	until := c.now().Add(d)
	if target == "" {
		if until.After(c.blockedUntil) {
			c.blockedUntil = until
		}
		return
	}
	if until.After(c.targetBlocks[target]) {
		c.targetBlocks[target] = until
	}
}

// waitBlocked sleeps out a block on target. A block that outlasts ctx's
// deadline fails fast with a rate limit error so no request is spent.
func (c *DiscordChannel) waitBlocked(ctx context.Context, target string) error {
	wait := c.BlockedFor(target)
	if wait <= 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < wait {
		return faults.NewRateLimitError("discord: channel "+target+" is rate limited", wait)
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return faults.NewTransientNetworkError("rate limit wait", 0, ctx.Err())
	case <-t.C:
		return nil
	}
}
