// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package hook receives completion callbacks from qBittorrent and hard-links
// finished downloads into the media library. qBittorrent is configured to
// POST the torrent title here when a download completes; the trailing
// " - tid<ID>" suffix threads the title back to its torrent record.
package hook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/rssbrr/internal/config"
	"github.com/autobrr/rssbrr/internal/database"
	"github.com/autobrr/rssbrr/internal/metrics"
	"github.com/autobrr/rssbrr/internal/models"
	"github.com/autobrr/rssbrr/internal/qbittorrent"
)

// torrentIDSeparator precedes the record id in every submitted rename.
const torrentIDSeparator = " - tid"

// maxTitleBytes bounds the POST body. Titles are short; anything larger is
// not a completion callback.
const maxTitleBytes = 1 << 20

type Server struct {
	configPath string
	metrics    *metrics.Metrics
	server     *http.Server
}

// NewServer builds the hook listener. The configuration is re-read from
// configPath on every callback so the hook honours edits made while
// downloads were still running.
func NewServer(configPath, addr string, m *metrics.Metrics) *Server {
	s := &Server{
		configPath: configPath,
		metrics:    m,
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Router assembles the hook's HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/qb_hook", s.handleCompleted)
	r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	r.Get("/api/health", s.handleHealth)

	return r
}

func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.server.Addr).Msg("completion hook listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleCompleted processes one completion callback: recover the torrent
// record from the posted title, locate the downloaded file through the
// torrent client, and hard-link it into the library.
func (s *Server) handleCompleted(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTitleBytes))
	if err != nil {
		s.fail(w, http.StatusBadRequest, errors.Wrap(err, "read request body"))
		return
	}

	title := string(body)

	id, err := ParseTorrentID(title)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}

	log.Debug().Int64("id", id).Str("title", title).Msg("completion callback received")

	target, err := s.link(r.Context(), title, id)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Str("title", title).Msg("completion callback failed")
		s.fail(w, http.StatusInternalServerError, err)
		return
	}

	log.Info().Int64("id", id).Str("target", target).Msg("completed download linked")
	s.metrics.HookRequests.WithLabelValues("ok").Inc()

	w.Write([]byte("ok"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	status := "error"
	if code == http.StatusBadRequest {
		status = "bad_request"
	}
	s.metrics.HookRequests.WithLabelValues(status).Inc()

	http.Error(w, err.Error(), code)
}

// link resolves the callback against fresh collaborators. Config, store and
// torrent-client session live only for this one request, mirroring how the
// callbacks arrive: rarely, long after the supervisor last reloaded.
func (s *Server) link(ctx context.Context, title string, id int64) (string, error) {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return "", errors.Wrap(err, "load config")
	}

	db, err := database.New(cfg.DBURI)
	if err != nil {
		return "", errors.Wrap(err, "open database")
	}
	defer db.Close()

	record, err := models.NewTorrentRecordStore(db).Get(ctx, id)
	if err != nil {
		return "", errors.Wrapf(err, "load torrent record %d", id)
	}

	client := qbittorrent.NewClient(cfg.Qb.BaseURL, cfg.Qb.Username, cfg.Qb.Password, cfg.Timeout())
	if err := client.EnsureLoggedIn(ctx); err != nil {
		return "", errors.Wrap(err, "qbittorrent login")
	}

	torrents, err := client.ListByTag(ctx, record.Name)
	if err != nil {
		return "", errors.Wrapf(err, "list torrents tagged %q", record.Name)
	}

	contentPath := ""
	for _, torrent := range torrents {
		if torrent.Name == title {
			contentPath = torrent.ContentPath
			break
		}
	}
	if contentPath == "" {
		return "", errors.Errorf("no torrent named %q tagged %q", title, record.Name)
	}

	return LinkCompleted(cfg.LinkTo, record, contentPath)
}

// ParseTorrentID extracts the record id from a submitted title, e.g.
// "Show - S01E09 - 1080p - CHT - LoliHouse - tid12345" -> 12345. The last
// separator wins; titles may legitimately contain earlier occurrences.
func ParseTorrentID(title string) (int64, error) {
	idx := strings.LastIndex(title, torrentIDSeparator)
	if idx < 0 {
		return 0, errors.Errorf("title %q carries no torrent id", title)
	}

	id, err := strconv.ParseInt(title[idx+len(torrentIDSeparator):], 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid torrent id in title %q", title)
	}

	return id, nil
}
