// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tmdb resolves canonical show names against The Movie Database.
package tmdb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/autobrr/rssbrr/pkg/httphelpers"
)

const DefaultBaseURL = "https://api.themoviedb.org/3"

// ClientConfig holds the options for constructing a Client.
type ClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    int
	HTTPClient *http.Client
	UserAgent  string
}

// Client is a minimal TMDB API wrapper covering TV search.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	userAgent  string
}

func NewClient(cfg ClientConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "rssbrr"
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: client,
		userAgent:  ua,
	}
}

// TVResult is one entry of a TV search response.
type TVResult struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	FirstAirDate string `json:"first_air_date"`
}

// FirstAirYear extracts the year from the first_air_date field. Shows
// without an announced air date yield 0.
func (r TVResult) FirstAirYear() int {
	if r.FirstAirDate == "" {
		return 0
	}

	t, err := time.Parse("2006-01-02", r.FirstAirDate)
	if err != nil {
		return 0
	}
	return t.Year()
}

type tvSearchResponse struct {
	Page         int        `json:"page"`
	Results      []TVResult `json:"results"`
	TotalResults int        `json:"total_results"`
}

// SearchTVShow looks the query up in the zh-CN locale, adult results
// included; release indexes carry plenty of shows TMDB flags that way. The
// first result wins; nil means the query matched nothing.
func (c *Client) SearchTVShow(ctx context.Context, query string) (*TVResult, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("language", "zh-CN")
	params.Set("include_adult", "true")
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search/tv", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build tmdb request")
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "tmdb search for %q failed", query)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Errorf("tmdb search for %q returned status %d", query, resp.StatusCode)
	}

	var decoded tvSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Wrap(err, "failed to decode tmdb response")
	}

	if len(decoded.Results) == 0 {
		return nil, nil
	}

	return &decoded.Results[0], nil
}
