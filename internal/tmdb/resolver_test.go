// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/rssbrr/internal/metrics"
	"github.com/autobrr/rssbrr/internal/models"
	"github.com/autobrr/rssbrr/internal/testdb"
)

// newCountingServer serves a fixed search response and counts requests.
func newCountingServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

const matchResponse = `{
	"page": 1,
	"results": [{"id": 221, "name": "BanG Dream! It's MyGO!!!!!", "first_air_date": "2023-06-29"}],
	"total_results": 1
}`

const missResponse = `{"page": 1, "results": [], "total_results": 0}`

func newTestResolver(t *testing.T, baseURL string) (*Resolver, *models.TmdbShowStore) {
	t.Helper()

	store := models.NewTmdbShowStore(testdb.Open(t, "tmdb"))
	client := NewClient(ClientConfig{BaseURL: baseURL, APIKey: "tmdb-key"})
	resolver := NewResolver(client, store, metrics.New())
	t.Cleanup(resolver.Close)
	return resolver, store
}

func TestResolvePrefersStore(t *testing.T) {
	t.Parallel()

	srv, requests := newCountingServer(t, matchResponse)
	resolver, store := newTestResolver(t, srv.URL)
	ctx := context.Background()

	cached := &models.TmdbShow{TmdbID: 42, TmdbName: "Cached Show", Year: 2020}
	require.NoError(t, store.Insert(ctx, "Cached Show", cached))

	results, err := resolver.Resolve(ctx, []string{"Cached Show"})
	require.NoError(t, err)
	require.Contains(t, results, "Cached Show")
	assert.Equal(t, cached, results["Cached Show"])
	assert.Equal(t, int32(0), requests.Load(), "a store hit must not reach tmdb")
}

func TestResolveRemoteHitFillsStore(t *testing.T) {
	t.Parallel()

	srv, requests := newCountingServer(t, matchResponse)
	resolver, store := newTestResolver(t, srv.URL)
	ctx := context.Background()

	results, err := resolver.Resolve(ctx, []string{"MyGO"})
	require.NoError(t, err)
	require.Contains(t, results, "MyGO")
	assert.Equal(t, int64(221), results["MyGO"].TmdbID)
	assert.Equal(t, "BanG Dream! It's MyGO!!!!!", results["MyGO"].TmdbName)
	assert.Equal(t, 2023, results["MyGO"].Year)
	assert.Equal(t, int32(1), requests.Load())

	stored, err := store.GetByName(ctx, "MyGO")
	require.NoError(t, err, "a remote hit must be written through to the store")
	assert.Equal(t, results["MyGO"], stored)

	// Second resolution is served from the store.
	results, err = resolver.Resolve(ctx, []string{"MyGO"})
	require.NoError(t, err)
	require.Contains(t, results, "MyGO")
	assert.Equal(t, int32(1), requests.Load(), "no second remote search expected")
}

func TestResolveRemembersMisses(t *testing.T) {
	t.Parallel()

	srv, requests := newCountingServer(t, missResponse)
	resolver, _ := newTestResolver(t, srv.URL)
	ctx := context.Background()

	results, err := resolver.Resolve(ctx, []string{"Unknown Show"})
	require.NoError(t, err)
	assert.NotContains(t, results, "Unknown Show", "unresolved titles stay absent")
	assert.Equal(t, int32(1), requests.Load())

	results, err = resolver.Resolve(ctx, []string{"Unknown Show"})
	require.NoError(t, err)
	assert.NotContains(t, results, "Unknown Show")
	assert.Equal(t, int32(1), requests.Load(), "the miss must be cached")
}

func TestResolveDeduplicatesTitles(t *testing.T) {
	t.Parallel()

	srv, requests := newCountingServer(t, matchResponse)
	resolver, _ := newTestResolver(t, srv.URL)

	results, err := resolver.Resolve(context.Background(), []string{"MyGO", "MyGO", "MyGO"})
	require.NoError(t, err)
	require.Contains(t, results, "MyGO")
	assert.Equal(t, int32(1), requests.Load(), "duplicate titles resolve once")
}

func TestResolveSurfacesRemoteErrors(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	resolver, _ := newTestResolver(t, srv.URL)

	_, err := resolver.Resolve(context.Background(), []string{"MyGO"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned status 500")
}
