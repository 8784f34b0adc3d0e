// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"

	"github.com/autobrr/rssbrr/internal/dbinterface"
)

var (
	ErrTmdbShowNotFound = errors.New("tmdb show not found")

	// ErrTmdbShowExists means another worker cached this show first.
	ErrTmdbShowExists = errors.New("tmdb show already cached")
)

// TmdbShow is a cached metadata lookup, keyed in the tmdb_info table by the
// canonical show name the classifier produced.
type TmdbShow struct {
	TmdbID   int64  `json:"tmdb_id"`
	TmdbName string `json:"tmdb_name"`
	Year     int    `json:"year"`
}

type TmdbShowStore struct {
	db dbinterface.Querier
}

func NewTmdbShowStore(db dbinterface.Querier) *TmdbShowStore {
	return &TmdbShowStore{db: db}
}

// GetByName returns the cached lookup for a canonical show name, or
// ErrTmdbShowNotFound when the show has never been resolved.
func (s *TmdbShowStore) GetByName(ctx context.Context, name string) (*TmdbShow, error) {
	query := `
		SELECT tmdb_name, year, tmdb_id
		FROM tmdb_info
		WHERE name = ?
		LIMIT 1
	`

	show := &TmdbShow{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&show.TmdbName,
		&show.Year,
		&show.TmdbID,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTmdbShowNotFound
		}
		return nil, err
	}

	return show, nil
}

func (s *TmdbShowStore) Insert(ctx context.Context, name string, show *TmdbShow) error {
	query := `
		INSERT INTO tmdb_info (name, tmdb_name, year, tmdb_id)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, name, show.TmdbName, show.Year, show.TmdbID)
	if isUniqueConstraintError(err) {
		return ErrTmdbShowExists
	}
	return err
}
