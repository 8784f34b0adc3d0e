// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tmdb

import (
	"context"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/rssbrr/internal/metrics"
	"github.com/autobrr/rssbrr/internal/models"
)

// missTTL bounds how long an unresolvable title is remembered. Without it a
// show TMDB does not know yet would trigger a remote search on every cycle.
const missTTL = 30 * time.Minute

// Resolver answers "which show is this" cache-first: the store is consulted
// before TMDB, and a store hit never expires. Remote misses are held in a
// short-lived negative cache.
type Resolver struct {
	client  *Client
	store   *models.TmdbShowStore
	misses  *ttlcache.Cache[string, struct{}]
	metrics *metrics.Metrics
}

func NewResolver(client *Client, store *models.TmdbShowStore, m *metrics.Metrics) *Resolver {
	return &Resolver{
		client:  client,
		store:   store,
		misses:  ttlcache.New(ttlcache.Options[string, struct{}]{}.SetDefaultTTL(missTTL)),
		metrics: m,
	}
}

// Close releases the negative cache's timer.
func (r *Resolver) Close() {
	r.misses.Close()
}

// Resolve maps every distinct title to its show. Titles that cannot be
// resolved are absent from the result; callers treat that as "keep the raw
// name". A remote or store failure aborts the whole call.
func (r *Resolver) Resolve(ctx context.Context, titles []string) (map[string]*models.TmdbShow, error) {
	results := make(map[string]*models.TmdbShow, len(titles))

	for _, title := range titles {
		if _, done := results[title]; done {
			continue
		}

		show, err := r.resolve(ctx, title)
		if err != nil {
			return nil, err
		}
		if show != nil {
			results[title] = show
		}
	}

	return results, nil
}

func (r *Resolver) resolve(ctx context.Context, title string) (*models.TmdbShow, error) {
	show, err := r.store.GetByName(ctx, title)
	if err == nil {
		r.metrics.MetadataLookups.WithLabelValues("cache", "ok").Inc()
		return show, nil
	}
	if !errors.Is(err, models.ErrTmdbShowNotFound) {
		return nil, errors.Wrapf(err, "metadata cache lookup for %q failed", title)
	}

	if _, missed := r.misses.Get(title); missed {
		r.metrics.MetadataLookups.WithLabelValues("cache", "miss").Inc()
		return nil, nil
	}

	result, err := r.client.SearchTVShow(ctx, title)
	if err != nil {
		r.metrics.MetadataLookups.WithLabelValues("remote", "error").Inc()
		return nil, err
	}

	if result == nil {
		r.metrics.MetadataLookups.WithLabelValues("remote", "miss").Inc()
		r.misses.Set(title, struct{}{}, ttlcache.DefaultTTL)
		log.Debug().Str("title", title).Msg("tmdb search matched nothing")
		return nil, nil
	}

	show = &models.TmdbShow{
		TmdbID:   result.ID,
		TmdbName: result.Name,
		Year:     result.FirstAirYear(),
	}

	if err := r.store.Insert(ctx, title, show); err != nil {
		// Two feeds can race on the same title. The first insert wins and
		// stays authoritative for all later renames.
		if errors.Is(err, models.ErrTmdbShowExists) {
			return r.store.GetByName(ctx, title)
		}
		return nil, errors.Wrapf(err, "failed to cache metadata for %q", title)
	}

	r.metrics.MetadataLookups.WithLabelValues("remote", "ok").Inc()
	log.Debug().
		Str("title", title).
		Str("tmdbName", show.TmdbName).
		Int64("tmdbID", show.TmdbID).
		Int("year", show.Year).
		Msg("tmdb show resolved")

	return show, nil
}
