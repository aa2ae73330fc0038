// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/onsale/internal/breaker"
	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/faults"
	"github.com/tomtom215/onsale/internal/metrics"
)

const (
	eventsPath = "/discovery/v2/events.json"

	// maxErrorBodySize caps how much of an error response is kept.
	maxErrorBodySize = 4 * 1024

	defaultRetryAfter = time.Second
)

// Query selects one page of upcoming on-sales for a region.
type Query struct {
	Region  config.RegionConfig
	Variant config.ClassificationVariant
	Since   time.Time
	Page    int
	Size    int
}

// Page is one decoded result page.
type Page struct {
	Events     []RawEvent
	Number     int
	TotalPages int
}

// Client fetches result pages. Errors are always classified:
//
//	*faults.TransientNetworkError  transport failure, 5xx, open breaker
//	*faults.RateLimitError         429
//	*faults.ConfigurationError     any other 4xx
type Client interface {
	FetchPage(ctx context.Context, q Query) (*Page, error)
}

// ClientConfig configures HTTPClient.
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	// HTTPClient overrides the default client. Tests use it.
	HTTPClient *http.Client
}

// HTTPClient talks to the Discovery API. Requests are spaced by a token
// bucket limiter shared by every caller of the client.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPClient builds a client.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: hc,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// BuildURL returns the request URL for q.
func (c *HTTPClient) BuildURL(q Query) string {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("source", "ticketmaster")
	params.Set("locale", "*")
	params.Set("size", strconv.Itoa(q.Size))
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("onsaleStartDateTime", q.Since.UTC().Format("2006-01-02T15:04:05Z"))
	params.Set("sort", "onSaleStartDate,asc")
	params.Set("latlong", q.Region.LatLong())
	params.Set("radius", strconv.Itoa(q.Region.Radius))
	params.Set("unit", q.Region.Unit)

	v := q.Variant
	params.Set("classificationId", v.ClassificationID)
	setIfNotEmpty(params, "genreId", v.GenreID)
	setIfNotEmpty(params, "subGenreId", v.SubGenreID)
	setIfNotEmpty(params, "typeId", v.TypeID)
	setIfNotEmpty(params, "subTypeId", v.SubTypeID)

	return c.baseURL + eventsPath + "?" + params.Encode()
}

func setIfNotEmpty(params url.Values, key, value string) {
	if value != "" {
		params.Set(key, value)
	}
}

// FetchPage implements Client.
func (c *HTTPClient) FetchPage(ctx context.Context, q Query) (*Page, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, faults.NewTransientNetworkError("rate limiter wait", 0, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BuildURL(q), http.NoBody)
	if err != nil {
		return nil, faults.NewConfigurationError("invalid catalog request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordCatalogStatus(0)
		return nil, faults.NewTransientNetworkError("catalog request failed", 0, err)
	}
	defer resp.Body.Close()
	metrics.RecordCatalogStatus(resp.StatusCode)

	if err := classifyStatus(resp); err != nil {
		return nil, err
	}

	var body SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, faults.NewTransientNetworkError("decode catalog response", resp.StatusCode, err)
	}
	return &Page{
		Events:     body.Events(),
		Number:     body.Page.Number,
		TotalPages: body.Page.TotalPages,
	}, nil
}

func classifyStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return faults.NewRateLimitError("catalog quota", parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()))
	case code >= 400 && code < 500:
		cfgErr := faults.NewConfigurationError(
			fmt.Sprintf("catalog rejected request (HTTP %d)", code),
			errors.New(readBodyForError(resp.Body)))
		cfgErr.Auth = code == http.StatusUnauthorized || code == http.StatusForbidden
		return cfgErr
	default:
		return faults.NewTransientNetworkError("catalog request failed", code, nil)
	}
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}

func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	return strings.TrimSpace(string(body))
}

// CircuitBreakerClient guards a Client with a breaker. Only transient
// failures count against it; quota and configuration errors say nothing
// about the catalog's health.
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker[*Page]
}

// NewCircuitBreakerClient wraps client.
func NewCircuitBreakerClient(client Client, name string) *CircuitBreakerClient {
	return &CircuitBreakerClient{
		client: client,
		cb: breaker.New[*Page](name, breaker.Settings{
			MaxRequests: 1,
			Timeout:     time.Minute,
			IsSuccessful: func(err error) bool {
				return err == nil || faults.KindOf(err) != faults.KindTransientNetwork
			},
		}),
	}
}

// FetchPage implements Client.
func (c *CircuitBreakerClient) FetchPage(ctx context.Context, q Query) (*Page, error) {
	page, err := breaker.Execute(c.cb, func() (*Page, error) {
		return c.client.FetchPage(ctx, q)
	})
	if err != nil && breaker.IsRejected(err) {
		return nil, faults.NewTransientNetworkError("catalog circuit open", 0, err)
	}
	return page, err
}
