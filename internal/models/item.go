// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"errors"

	"github.com/autobrr/rssbrr/internal/dbinterface"
)

// ErrItemExists means the guid was already recorded, typically because two
// feeds carried the same release.
var ErrItemExists = errors.New("item already recorded")

// Item is a feed entry that has already been handled. Once a guid is
// recorded the release is never reconsidered, whether it was grabbed or
// dropped by classification.
type Item struct {
	GUID      string `json:"guid"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Enclosure string `json:"enclosure"`
}

type ItemStore struct {
	db dbinterface.Querier
}

func NewItemStore(db dbinterface.Querier) *ItemStore {
	return &ItemStore{db: db}
}

// Exists reports whether the guid has been processed before.
func (s *ItemStore) Exists(ctx context.Context, guid string) (bool, error) {
	query := `SELECT COUNT(*) FROM items WHERE guid = ?`

	var count int
	if err := s.db.QueryRowContext(ctx, query, guid).Scan(&count); err != nil {
		return false, err
	}

	return count > 0, nil
}

func (s *ItemStore) Insert(ctx context.Context, item *Item) error {
	query := `
		INSERT INTO items (guid, title, link, enclosure)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, item.GUID, item.Title, item.Link, item.Enclosure)
	if isUniqueConstraintError(err) {
		return ErrItemExists
	}
	return err
}
