// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package runner drives the feeds: a supervisor loads the configuration and
// spawns one worker per feed, each worker pacing pipeline cycles that carry
// new releases from the feed into qBittorrent.
package runner

import (
	"context"
	"fmt"
	"regexp"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/rssbrr/internal/classifier"
	"github.com/autobrr/rssbrr/internal/domain"
	"github.com/autobrr/rssbrr/internal/metrics"
	"github.com/autobrr/rssbrr/internal/models"
	"github.com/autobrr/rssbrr/internal/qbittorrent"
)

type FeedFetcher interface {
	FetchItems(ctx context.Context, feed *domain.FeedConfig) ([]models.Item, error)
}

type Classifier interface {
	Classify(ctx context.Context, titles []string) ([]classifier.Recognized, error)
}

type ShowResolver interface {
	Resolve(ctx context.Context, titles []string) (map[string]*models.TmdbShow, error)
}

type TorrentClient interface {
	EnsureLoggedIn(ctx context.Context) error
	AddTorrent(ctx context.Context, req qbittorrent.AddTorrentRequest) error
}

type MailNotifier interface {
	NotifyAdded(feedName string, titles []string)
	NotifyFeedFailure(feedName string, err error)
}

// Deps bundles the collaborators shared by every pipeline of one supervisor
// generation.
type Deps struct {
	Source     FeedFetcher
	Classifier Classifier
	Resolver   ShowResolver
	Qb         TorrentClient
	Items      *models.ItemStore
	Records    *models.TorrentRecordStore
	Mailer     MailNotifier
	Metrics    *metrics.Metrics
}

// Pipeline carries one feed's items from fetch to submission. A single
// instance serves a single feed; Run executes one cycle.
type Pipeline struct {
	feed       *domain.FeedConfig
	include    []*regexp.Regexp
	exclude    []*regexp.Regexp
	source     FeedFetcher
	classifier Classifier
	resolver   ShowResolver
	qb         TorrentClient
	items      *models.ItemStore
	records    *models.TorrentRecordStore
	mailer     MailNotifier
	metrics    *metrics.Metrics
}

func NewPipeline(feed *domain.FeedConfig, deps Deps) (*Pipeline, error) {
	include, exclude, err := feed.CompileFilters()
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		feed:       feed,
		include:    include,
		exclude:    exclude,
		source:     deps.Source,
		classifier: deps.Classifier,
		resolver:   deps.Resolver,
		qb:         deps.Qb,
		items:      deps.Items,
		records:    deps.Records,
		mailer:     deps.Mailer,
		metrics:    deps.Metrics,
	}, nil
}

// submission pairs a surviving feed item with its classification until both
// have been persisted and handed to the torrent client.
type submission struct {
	item models.Item
	info classifier.Recognized
}

// Run executes one cycle: fetch, filter, drop seen guids, classify, resolve
// show metadata, then submit item by item. It returns the raw titles that
// were submitted. Items already recorded as seen are silently skipped; an
// error in any stage aborts the cycle, leaving earlier submissions in place.
func (p *Pipeline) Run(ctx context.Context) ([]string, error) {
	items, err := p.source.FetchItems(ctx, p.feed)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch feed %q", p.feed.Name)
	}

	items = p.filterItems(items)

	fresh, err := p.dropSeen(ctx, items)
	if err != nil {
		return nil, err
	}
	if len(fresh) == 0 {
		log.Debug().Str("feed", p.feed.Name).Msg("no new items")
		return nil, nil
	}

	titles := make([]string, len(fresh))
	for i, item := range fresh {
		titles[i] = item.Title
	}

	results, err := p.classifier.Classify(ctx, titles)
	if err != nil {
		return nil, errors.Wrapf(err, "classify feed %q", p.feed.Name)
	}
	if len(results) != len(fresh) {
		return nil, errors.Errorf("classifier returned %d results for %d titles", len(results), len(fresh))
	}

	pending := make([]submission, 0, len(fresh))
	for i, result := range results {
		if !result.IsShow() {
			// Not recorded as seen: the guid gets another chance next cycle.
			log.Debug().Str("feed", p.feed.Name).Str("title", fresh[i].Title).Msg("not an episode release, skipping")
			continue
		}
		pending = append(pending, submission{item: fresh[i], info: result})
	}
	if len(pending) == 0 {
		return nil, nil
	}

	resolved, err := p.resolver.Resolve(ctx, distinctShows(pending))
	if err != nil {
		return nil, errors.Wrapf(err, "resolve shows for feed %q", p.feed.Name)
	}

	added := make([]string, 0, len(pending))
	for _, sub := range pending {
		if err := p.submit(ctx, sub.item, sub.info, resolved[sub.info.Show]); err != nil {
			return nil, err
		}
		added = append(added, sub.item.Title)
	}

	if len(added) > 0 {
		p.mailer.NotifyAdded(p.feed.Name, added)
	}

	return added, nil
}

// filterItems applies the include and exclude regex lists. An item survives
// only when every include pattern matches its title and no exclude pattern
// does.
func (p *Pipeline) filterItems(items []models.Item) []models.Item {
	if len(p.include) == 0 && len(p.exclude) == 0 {
		return items
	}

	kept := make([]models.Item, 0, len(items))
	for _, item := range items {
		if !titleSurvives(item.Title, p.include, p.exclude) {
			log.Debug().Str("feed", p.feed.Name).Str("title", item.Title).Msg("filtered out")
			continue
		}
		kept = append(kept, item)
	}

	return kept
}

func titleSurvives(title string, include, exclude []*regexp.Regexp) bool {
	for _, re := range include {
		if !re.MatchString(title) {
			return false
		}
	}
	for _, re := range exclude {
		if re.MatchString(title) {
			return false
		}
	}
	return true
}

func (p *Pipeline) dropSeen(ctx context.Context, items []models.Item) ([]models.Item, error) {
	fresh := make([]models.Item, 0, len(items))
	for _, item := range items {
		seen, err := p.items.Exists(ctx, item.GUID)
		if err != nil {
			return nil, errors.Wrapf(err, "check guid %q", item.GUID)
		}
		if seen {
			continue
		}
		fresh = append(fresh, item)
	}

	return fresh, nil
}

func distinctShows(pending []submission) []string {
	seen := make(map[string]struct{}, len(pending))
	shows := make([]string, 0, len(pending))
	for _, sub := range pending {
		if _, ok := seen[sub.info.Show]; ok {
			continue
		}
		seen[sub.info.Show] = struct{}{}
		shows = append(shows, sub.info.Show)
	}

	return shows
}

// idDrawAttempts bounds redraws after a torrent id collision. Ids are drawn
// from [1, MaxInt64], so a second collision in a row means something is off.
const idDrawAttempts = 3

// submit persists and hands over a single item. The torrent record is
// written before the add and the seen mark after it, so a crash in between
// can cause a duplicate add next cycle but never a lost item.
func (p *Pipeline) submit(ctx context.Context, item models.Item, info classifier.Recognized, show *models.TmdbShow) error {
	record := &models.TorrentRecord{
		Name:       info.Show,
		Season:     info.Season,
		Episode:    info.Episode,
		Fansub:     info.Fansub,
		Resolution: info.Resolution,
		Language:   info.Language,
	}
	if show != nil {
		record.Name = show.TmdbName
		record.Year = show.Year
		record.TmdbID = show.TmdbID
	}

	for attempt := 1; ; attempt++ {
		record.ID = models.NewTorrentID()

		err := p.records.Insert(ctx, record)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrTorrentIDTaken) || attempt >= idDrawAttempts {
			return errors.Wrapf(err, "insert torrent record for %q", item.Title)
		}
		log.Warn().Str("feed", p.feed.Name).Int64("id", record.ID).Msg("torrent id collision, redrawing")
	}

	if err := p.qb.EnsureLoggedIn(ctx); err != nil {
		return errors.Wrap(err, "qbittorrent login")
	}

	rename := fmt.Sprintf("%s - S%02dE%02d - %s - %s - %s - tid%d",
		record.Name, record.Season, record.Episode, record.Resolution, record.Language, record.Fansub, record.ID)

	req := qbittorrent.AddTorrentRequest{
		URLs:          []string{item.Enclosure},
		SavePath:      p.feed.Savepath,
		ContentLayout: p.feed.ContentLayout,
		Category:      p.feed.Category,
		Tags:          submissionTags(p.feed.Tags, record.Name),
		Rename:        rename,
		AutoTMM:       p.feed.AutoTMM(),
		RatioLimit:    p.feed.RatioLimit,
	}

	if err := p.qb.AddTorrent(ctx, req); err != nil {
		return errors.Wrapf(err, "add torrent for %q", item.Title)
	}

	if err := p.items.Insert(ctx, &item); err != nil && !errors.Is(err, models.ErrItemExists) {
		return errors.Wrapf(err, "mark item %q seen", item.GUID)
	}

	p.metrics.TorrentsAdded.WithLabelValues(p.feed.Name).Inc()

	log.Info().
		Str("feed", p.feed.Name).
		Str("title", item.Title).
		Int64("id", record.ID).
		Str("rename", rename).
		Msg("torrent added")

	return nil
}

// submissionTags appends the canonical show name to the feed's tag list so
// the completion hook can find the torrent again by tag.
func submissionTags(tags []string, show string) []string {
	for _, tag := range tags {
		if tag == show {
			return tags
		}
	}

	out := make([]string, 0, len(tags)+1)
	out = append(out, tags...)
	return append(out, show)
}
