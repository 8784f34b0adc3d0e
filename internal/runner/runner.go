// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package runner

import (
	"context"
	"net/http"

	"github.com/autobrr/autobrr/pkg/sharedhttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/rssbrr/internal/buildinfo"
	"github.com/autobrr/rssbrr/internal/classifier"
	"github.com/autobrr/rssbrr/internal/config"
	"github.com/autobrr/rssbrr/internal/database"
	"github.com/autobrr/rssbrr/internal/domain"
	"github.com/autobrr/rssbrr/internal/feeds"
	"github.com/autobrr/rssbrr/internal/metrics"
	"github.com/autobrr/rssbrr/internal/models"
	"github.com/autobrr/rssbrr/internal/notifier"
	"github.com/autobrr/rssbrr/internal/qbittorrent"
	"github.com/autobrr/rssbrr/internal/tmdb"
)

// Runner is the supervisor: it owns the configuration and the shared client
// handles, spawns one worker per feed, and rebuilds everything whenever the
// config file changes.
type Runner struct {
	configPath string
	metrics    *metrics.Metrics
	reload     chan struct{}
}

func New(configPath string, m *metrics.Metrics) *Runner {
	return &Runner{
		configPath: configPath,
		metrics:    m,
		reload:     make(chan struct{}, 1),
	}
}

// Run supervises the workers until ctx is cancelled or a worker fails
// fatally. A config load error is fatal too: a file that stopped parsing
// should stop the agent, not silently idle it.
func (r *Runner) Run(ctx context.Context) error {
	if err := config.Watch(ctx, r.configPath, r.requestReload); err != nil {
		return err
	}

	for {
		cfg, err := config.Load(r.configPath)
		if err != nil {
			return errors.Wrap(err, "load config")
		}

		if err := r.runGeneration(ctx, cfg); err != nil {
			return err
		}

		if ctx.Err() != nil {
			log.Info().Msg("shutting down")
			return nil
		}

		log.Info().Str("config", r.configPath).Msg("configuration changed, restarting feed workers")
	}
}

func (r *Runner) requestReload() {
	select {
	case r.reload <- struct{}{}:
	default:
	}
}

// runGeneration builds one set of collaborators from cfg and runs the feed
// workers until a reload request, shutdown, or a fatal worker error. All
// shared handles are torn down before it returns.
func (r *Runner) runGeneration(parent context.Context, cfg *domain.Config) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	db, err := database.New(cfg.DBURI)
	if err != nil {
		return errors.Wrap(err, "open database")
	}
	defer db.Close()

	httpClient, err := outboundClient(cfg)
	if err != nil {
		return err
	}

	source := feeds.NewClient(feeds.Config{
		Timeout:    cfg.TimeoutS,
		HTTPClient: httpClient,
		UserAgent:  buildinfo.UserAgent,
	})

	recognizer := classifier.NewService(classifier.NewClient(classifier.ClientConfig{
		URL:        cfg.Gpt.URL,
		Token:      cfg.Gpt.Token,
		Timeout:    cfg.TimeoutS,
		HTTPClient: httpClient,
		UserAgent:  buildinfo.UserAgent,
	}), cfg.Gpt, r.metrics)

	resolver := tmdb.NewResolver(tmdb.NewClient(tmdb.ClientConfig{
		APIKey:     cfg.TmdbSecret,
		Timeout:    cfg.TimeoutS,
		HTTPClient: httpClient,
		UserAgent:  buildinfo.UserAgent,
	}), models.NewTmdbShowStore(db), r.metrics)
	defer resolver.Close()

	mailer := notifier.NewService(cfg.Email)

	deps := Deps{
		Source:     source,
		Classifier: recognizer,
		Resolver:   resolver,
		Qb:         qbittorrent.NewClient(cfg.Qb.BaseURL, cfg.Qb.Username, cfg.Qb.Password, cfg.Timeout()),
		Items:      models.NewItemStore(db),
		Records:    models.NewTorrentRecordStore(db),
		Mailer:     mailer,
		Metrics:    r.metrics,
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Feeds {
		feed := &cfg.Feeds[i]

		pipeline, err := NewPipeline(feed, deps)
		if err != nil {
			return err
		}

		worker := NewWorker(feed, pipeline, mailer, r.metrics)
		g.Go(func() error {
			return worker.Run(gctx)
		})
	}

	log.Info().Int("feeds", len(cfg.Feeds)).Msg("feed workers running")

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case <-r.reload:
		cancel()
		return <-done

	case err := <-done:
		if err != nil {
			return err
		}
		// Every worker returned cleanly: shutdown in progress, or the config
		// declares no feeds. Idle until something changes.
		select {
		case <-parent.Done():
			return nil
		case <-r.reload:
			return nil
		}
	}
}

// outboundClient serves the feed, classifier and metadata traffic.
// https_proxy applies here and never to the qBittorrent client, which talks
// to the local network.
func outboundClient(cfg *domain.Config) (*http.Client, error) {
	proxyURL, err := cfg.ProxyURL()
	if err != nil {
		return nil, err
	}

	var transport http.RoundTripper = sharedhttp.Transport
	if proxyURL != nil {
		transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}

	return &http.Client{
		Timeout:   cfg.Timeout(),
		Transport: transport,
	}, nil
}
