// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package feeds

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/rssbrr/internal/domain"
	"github.com/autobrr/rssbrr/internal/models"
	"github.com/autobrr/rssbrr/pkg/httphelpers"
)

// Config holds the options for constructing a Client.
type Config struct {
	Timeout    int
	HTTPClient *http.Client
	UserAgent  string
}

// Client fetches and parses RSS feeds from the supported sites.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient constructs a new Client using the provided configuration.
func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = "rssbrr"
	}

	return &Client{
		httpClient: client,
		userAgent:  ua,
	}
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title string    `xml:"title"`
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	GUID      *rssGUID      `xml:"guid"`
	Title     string        `xml:"title"`
	Link      string        `xml:"link"`
	Enclosure *rssEnclosure `xml:"enclosure"`
}

type rssGUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Length string `xml:"length,attr"`
}

// FetchItems retrieves the feed for the given configuration and converts
// every entry. A single malformed entry fails the whole fetch so a flaky
// upstream can never be half-processed.
func (c *Client) FetchItems(ctx context.Context, feed *domain.FeedConfig) ([]models.Item, error) {
	site, err := domain.ParseSite(feed.Site)
	if err != nil {
		return nil, err
	}

	feedURL, err := BuildURL(site, feed.Search)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build request for feed %q", feed.Name)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request for feed %q failed", feed.Name)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, errors.Errorf("feed %q returned status %d", feed.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read body for feed %q", feed.Name)
	}

	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse feed %q as rss", feed.Name)
	}

	log.Debug().
		Str("feed", feed.Name).
		Str("channel", doc.Channel.Title).
		Int("items", len(doc.Channel.Items)).
		Msg("feed fetched")

	items := make([]models.Item, 0, len(doc.Channel.Items))
	for _, entry := range doc.Channel.Items {
		item, err := itemFromRSS(entry)
		if err != nil {
			return nil, errors.Wrapf(err, "feed %q yielded a malformed item", feed.Name)
		}
		items = append(items, item)
	}

	return items, nil
}

func itemFromRSS(entry rssItem) (models.Item, error) {
	if entry.GUID == nil || entry.GUID.Value == "" {
		return models.Item{}, errors.New("missing guid")
	}
	if entry.Enclosure == nil || entry.Enclosure.URL == "" {
		return models.Item{}, errors.New("missing enclosure")
	}

	title := entry.Title
	if title == "" {
		title = "unknown"
	}
	link := entry.Link
	if link == "" {
		link = "unknown"
	}

	return models.Item{
		GUID:      entry.GUID.Value,
		Title:     title,
		Link:      link,
		Enclosure: entry.Enclosure.URL,
	}, nil
}
