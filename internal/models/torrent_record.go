// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"math/rand/v2"

	"github.com/autobrr/rssbrr/internal/dbinterface"
)

var (
	ErrTorrentRecordNotFound = errors.New("torrent record not found")

	// ErrTorrentIDTaken means the randomly drawn id collided with an
	// existing row. Callers redraw and retry.
	ErrTorrentIDTaken = errors.New("torrent id already taken")
)

// TorrentRecord is one grabbed release. Its id is embedded in the torrent's
// rename inside qBittorrent, which is how the completion hook finds the row
// again when the download finishes.
type TorrentRecord struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Year       int    `json:"year"`
	Season     int    `json:"season"`
	Episode    int    `json:"episode"`
	Fansub     string `json:"fansub"`
	Resolution string `json:"resolution"`
	Language   string `json:"language"`
	TmdbID     int64  `json:"tmdb_id"`
}

// NewTorrentID draws a random id uniformly from [1, math.MaxInt64]. Zero is
// excluded so an id can never be mistaken for a missing value.
func NewTorrentID() int64 {
	return rand.Int64N(math.MaxInt64) + 1
}

type TorrentRecordStore struct {
	db dbinterface.Querier
}

func NewTorrentRecordStore(db dbinterface.Querier) *TorrentRecordStore {
	return &TorrentRecordStore{db: db}
}

// Get returns the record for a torrent id, or ErrTorrentRecordNotFound.
func (s *TorrentRecordStore) Get(ctx context.Context, id int64) (*TorrentRecord, error) {
	query := `
		SELECT id, name, year, season, episode, fansub, resolution, language, tmdb_id
		FROM torrent_info
		WHERE id = ?
		LIMIT 1
	`

	record := &TorrentRecord{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&record.ID,
		&record.Name,
		&record.Year,
		&record.Season,
		&record.Episode,
		&record.Fansub,
		&record.Resolution,
		&record.Language,
		&record.TmdbID,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTorrentRecordNotFound
		}
		return nil, err
	}

	return record, nil
}

func (s *TorrentRecordStore) Insert(ctx context.Context, record *TorrentRecord) error {
	query := `
		INSERT INTO torrent_info (id, name, year, season, episode, fansub, resolution, language, tmdb_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Name,
		record.Year,
		record.Season,
		record.Episode,
		record.Fansub,
		record.Resolution,
		record.Language,
		record.TmdbID,
	)
	if isUniqueConstraintError(err) {
		return ErrTorrentIDTaken
	}
	return err
}
