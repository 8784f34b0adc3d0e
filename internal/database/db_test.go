// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "rssbrr.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestNewAppliesMigrations(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"items", "tmdb_info", "torrent_info"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}

	var applied int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestNewCreatesParentDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "deeper", "rssbrr.db")
	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	assert.FileExists(t, path)
}

func TestReopenSkipsAppliedMigrations(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rssbrr.db")

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(path)
	require.NoError(t, err)
	defer db.Close()

	var applied int
	require.NoError(t, db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM migrations").Scan(&applied))
	assert.Equal(t, 1, applied, "reopening must not re-apply migrations")
}

func TestExecAndQueryRoundTrip(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	res, err := db.ExecContext(ctx,
		"INSERT INTO items (guid, title, link, enclosure) VALUES (?, ?, ?, ?)",
		"guid-1", "Show - 01", "https://example.com/1", "https://example.com/1.torrent")
	require.NoError(t, err)

	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	var title string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT title FROM items WHERE guid = ?", "guid-1").Scan(&title))
	assert.Equal(t, "Show - 01", title)

	_, err = db.ExecContext(ctx,
		"INSERT INTO items (guid, title, link, enclosure) VALUES (?, ?, ?, ?)",
		"guid-2", "Show - 02", "https://example.com/2", "https://example.com/2.torrent")
	require.NoError(t, err)

	rows, err := db.QueryContext(ctx, "SELECT guid FROM items ORDER BY guid")
	require.NoError(t, err)
	defer rows.Close()

	var guids []string
	for rows.Next() {
		var guid string
		require.NoError(t, rows.Scan(&guid))
		guids = append(guids, guid)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"guid-1", "guid-2"}, guids)
}

func TestWriteAfterCloseFails(t *testing.T) {
	t.Parallel()

	db, err := New(filepath.Join(t.TempDir(), "rssbrr.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.ExecContext(context.Background(),
		"INSERT INTO items (guid, title, link, enclosure) VALUES (?, ?, ?, ?)",
		"guid-x", "t", "l", "e")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db stopping")
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	db, err := New(filepath.Join(t.TempDir(), "rssbrr.db"))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.NoError(t, db.Close())
}

func TestIsWriteQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		query string
		want  bool
	}{
		{"INSERT INTO items (guid) VALUES (?)", true},
		{"  insert into items (guid) values (?)", true},
		{"UPDATE torrent_info SET name = ?", true},
		{"DELETE FROM items WHERE guid = ?", true},
		{"REPLACE INTO tmdb_info VALUES (?, ?, ?, ?)", true},
		{"SELECT 1 FROM items", false},
		{"\n\tSELECT guid FROM items", false},
		{"PRAGMA optimize", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, isWriteQuery(tt.query), "query: %q", tt.query)
	}
}
