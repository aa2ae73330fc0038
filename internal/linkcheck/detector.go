// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

// Package linkcheck finds presale signup pages ("Verified Fan") for
// undelivered events and stores the link on the event, so the delivered
// message can point at it. Detection is best effort: failures are logged
// and never hold up delivery.
package linkcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tomtom215/onsale/internal/faults"
)

const (
	defaultSignupBaseURL = "https://signup.ticketmaster.com"
	maxPageSize          = 2 << 20
	maxSlugCandidates    = 3
)

var (
	signupLinkPattern = regexp.MustCompile(`(?i)href=["']([^"']*signup\.ticketmaster\.com/[^"']+)["']`)
	signupPagePattern = regexp.MustCompile(`(?i)verified\s*fan|signup|presale`)
	nonSlugChars      = regexp.MustCompile(`[^a-z0-9]`)
)

// LinkTarget is what a detector needs to know about an event.
type LinkTarget struct {
	EventID    string
	URL        string
	ArtistName string
}

// Detector returns the signup URL for target, or "" when there is none.
type Detector interface {
	Detect(ctx context.Context, target LinkTarget) (string, error)
}

// HTTPConfig configures HTTPDetector.
type HTTPConfig struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	// SignupBaseURL is where slug guesses are checked.
	SignupBaseURL string
	HTTPClient    *http.Client
}

// HTTPDetector scans the event page for a signup link and falls back to
// guessing the signup page from the artist name.
type HTTPDetector struct {
	httpClient    *http.Client
	limiter       *rate.Limiter
	signupBaseURL string
}

// NewHTTPDetector builds a detector.
func NewHTTPDetector(cfg HTTPConfig) *HTTPDetector {
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
		rps = 1
	}
	base := cfg.SignupBaseURL
	if base == "" {
		base = defaultSignupBaseURL
	}
	return &HTTPDetector{
		httpClient:    hc,
		limiter:       rate.NewLimiter(rate.Limit(rps), 1),
		signupBaseURL: strings.TrimRight(base, "/"),
	}
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, target LinkTarget) (string, error) {
	if target.URL != "" {
		link, err := d.scanEventPage(ctx, target.URL)
		if err != nil {
			return "", err
		}
		if link != "" {
			return link, nil
		}
	}

	for _, slug := range ArtistSlugs(target.ArtistName) {
		candidate := d.signupBaseURL + "/" + slug
		ok, err := d.isSignupPage(ctx, candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}
	return "", nil
}

func (d *HTTPDetector) scanEventPage(ctx context.Context, eventURL string) (string, error) {
	body, status, err := d.get(ctx, eventURL)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", nil
	}
	return ExtractSignupLink(body), nil
}

func (d *HTTPDetector) isSignupPage(ctx context.Context, pageURL string) (bool, error) {
	body, status, err := d.get(ctx, pageURL)
	if err != nil {
		return false, err
	}
	return status == http.StatusOK && signupPagePattern.MatchString(body), nil
}

func (d *HTTPDetector) get(ctx context.Context, pageURL string) (string, int, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", 0, faults.NewTransientNetworkError("link check limiter wait", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return "", 0, fmt.Errorf("build link check request: %w", err)
	}
	req.Header.Set("User-Agent", "onsale-linkcheck/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", 0, faults.NewTransientNetworkError("link check request failed", 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", resp.StatusCode, faults.NewTransientNetworkError("read link check response", resp.StatusCode, err)
	}
	return string(raw), resp.StatusCode, nil
}

// ExtractSignupLink returns the first signup link in page, made absolute.
func ExtractSignupLink(page string) string {
	m := signupLinkPattern.FindStringSubmatch(page)
	if m == nil {
		return ""
	}
	link := m[1]
	if !strings.HasPrefix(strings.ToLower(link), "http") {
		link = "https://" + strings.TrimLeft(link, "/")
	}
	return link
}

// ArtistSlugs returns up to three signup page slugs for name: the name
// lowercased with everything but letters and digits removed, plus the
// same without a leading "The".
func ArtistSlugs(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	lower := strings.ToLower(name)
	primary := nonSlugChars.ReplaceAllString(lower, "")
	var slugs []string
	if primary != "" {
		slugs = append(slugs, primary)
	}
	if rest, ok := strings.CutPrefix(lower, "the "); ok {
		if alt := nonSlugChars.ReplaceAllString(rest, ""); alt != "" && alt != primary {
			slugs = append(slugs, alt)
		}
	}
	if len(slugs) > maxSlugCandidates {
		slugs = slugs[:maxSlugCandidates]
	}
	return slugs
}
