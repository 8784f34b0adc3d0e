// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package qbittorrent wraps the qBittorrent Web API session used to submit
// grabbed releases and to locate finished downloads for linking.
package qbittorrent

import (
	"context"
	"strconv"
	"strings"
	"time"

	qbt "github.com/autobrr/go-qbittorrent"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Client is a thin wrapper around the qBittorrent session. One handle is
// shared by all feed workers; the completion hook opens a short-lived handle
// per request instead, so a stale shared cookie can never block linking.
type Client struct {
	*qbt.Client
	host string
}

func NewClient(baseURL, username, password string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cfg := qbt.Config{
		Host:     baseURL,
		Username: username,
		Password: password,
		Timeout:  int(timeout / time.Second),
	}

	return &Client{
		Client: qbt.NewClient(cfg),
		host:   baseURL,
	}
}

// EnsureLoggedIn re-authenticates when the session cookie has gone stale.
// Cheap probe first, full login only when the probe fails.
func (c *Client) EnsureLoggedIn(ctx context.Context) error {
	if _, err := c.GetWebAPIVersionCtx(ctx); err == nil {
		return nil
	}

	if err := c.LoginCtx(ctx); err != nil {
		return errors.Wrapf(err, "failed to log in to qBittorrent at %s", c.host)
	}

	log.Debug().Str("host", c.host).Msg("qBittorrent session established")
	return nil
}

// AddTorrentRequest carries everything one submission needs. URLs are
// newline-joined into a single add call, matching the Web API contract.
type AddTorrentRequest struct {
	URLs          []string
	SavePath      string
	ContentLayout string
	Category      string
	Tags          []string
	Rename        string
	AutoTMM       bool
	RatioLimit    float64
}

func (r AddTorrentRequest) buildOptions() map[string]string {
	options := map[string]string{
		"autoTMM": strconv.FormatBool(r.AutoTMM),
	}

	if r.SavePath != "" {
		options["savepath"] = r.SavePath
	}
	if r.ContentLayout != "" {
		options["contentLayout"] = r.ContentLayout
	}
	if r.Category != "" {
		options["category"] = r.Category
	}
	if len(r.Tags) > 0 {
		options["tags"] = strings.Join(r.Tags, ",")
	}
	if r.Rename != "" {
		options["rename"] = r.Rename
	}
	if r.RatioLimit > 0 {
		options["ratioLimit"] = strconv.FormatFloat(r.RatioLimit, 'f', -1, 64)
	}

	return options
}

// AddTorrent submits the release to qBittorrent.
func (c *Client) AddTorrent(ctx context.Context, req AddTorrentRequest) error {
	if len(req.URLs) == 0 {
		return errors.New("add torrent request carries no urls")
	}

	if err := c.AddTorrentFromUrlCtx(ctx, strings.Join(req.URLs, "\n"), req.buildOptions()); err != nil {
		return errors.Wrap(err, "failed to add torrent")
	}

	return nil
}

// ListByTag returns the torrents carrying the given tag.
func (c *Client) ListByTag(ctx context.Context, tag string) ([]qbt.Torrent, error) {
	torrents, err := c.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{Tag: tag})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list torrents with tag %q", tag)
	}

	return torrents, nil
}
