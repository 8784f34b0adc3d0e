// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package runner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/rssbrr/internal/domain"
	"github.com/autobrr/rssbrr/internal/metrics"
)

// maxConsecutiveFailures is how many cycles in a row may fail before the
// worker gives up and takes the supervisor down with it.
const maxConsecutiveFailures = 3

// Worker paces the pipeline cycles of one feed.
type Worker struct {
	feed     *domain.FeedConfig
	pipeline *Pipeline
	mailer   MailNotifier
	metrics  *metrics.Metrics
}

func NewWorker(feed *domain.FeedConfig, pipeline *Pipeline, mailer MailNotifier, m *metrics.Metrics) *Worker {
	return &Worker{
		feed:     feed,
		pipeline: pipeline,
		mailer:   mailer,
		metrics:  m,
	}
}

// Run drives the feed until ctx is cancelled. The first cycle starts
// immediately; the ticker paces the rest. Cycles for one feed never overlap:
// a cycle that outlives its period is followed by the next one as soon as it
// finishes. Three consecutive cycle failures alert the mail channel and
// return an error, which the supervisor treats as fatal.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().
		Str("feed", w.feed.Name).
		Dur("interval", w.feed.Interval()).
		Msg("feed worker started")

	ticker := time.NewTicker(w.feed.Interval())
	defer ticker.Stop()

	failures := 0
	for {
		if err := w.runCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			failures++
			log.Error().
				Err(err).
				Str("feed", w.feed.Name).
				Int("consecutive_failures", failures).
				Msg("pipeline cycle failed")

			if failures >= maxConsecutiveFailures {
				w.mailer.NotifyFeedFailure(w.feed.Name, err)
				return errors.Wrapf(err, "feed %q failed %d cycles in a row", w.feed.Name, failures)
			}
		} else {
			failures = 0
		}

		select {
		case <-ctx.Done():
			log.Debug().Str("feed", w.feed.Name).Msg("feed worker stopping")
			return nil
		case <-ticker.C:
		}
	}
}

func (w *Worker) runCycle(ctx context.Context) error {
	added, err := w.pipeline.Run(ctx)
	if err != nil {
		w.metrics.FeedRefreshes.WithLabelValues(w.feed.Name, "error").Inc()
		return err
	}

	w.metrics.FeedRefreshes.WithLabelValues(w.feed.Name, "ok").Inc()

	if len(added) > 0 {
		log.Info().Str("feed", w.feed.Name).Int("added", len(added)).Msg("cycle finished")
	}

	return nil
}
