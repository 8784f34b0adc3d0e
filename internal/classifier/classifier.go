// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package classifier turns free-form release titles into structured episode
// metadata by batching them through a language model.
package classifier

import (
	"context"
	_ "embed"
	"encoding/json"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/rssbrr/internal/domain"
	"github.com/autobrr/rssbrr/internal/metrics"
)

//go:embed prompt.txt
var systemPrompt string

const (
	// perRequestSize caps how many titles travel in one chat request. Small
	// batches keep the model's output parseable and let chunks run in
	// parallel.
	perRequestSize = 6

	temperature = 0.2

	retryDelay = 500 * time.Millisecond
)

const (
	TypeShow  = "show"
	TypeOther = "other"
)

// Recognized is one classification result: either an episode release with
// its parsed fields, or the other variant for anything the model could not
// (or should not) treat as a single episode.
type Recognized struct {
	Type       string `json:"type"`
	Fansub     string `json:"fansub"`
	Show       string `json:"show"`
	Season     int    `json:"season"`
	Episode    int    `json:"episode"`
	Resolution string `json:"resolution"`
	Language   string `json:"language"`
}

// IsShow reports whether the result carries episode metadata.
func (r Recognized) IsShow() bool {
	return r.Type == TypeShow
}

// Service batches titles through the chat endpoint with retry and model
// escalation.
type Service struct {
	client  *Client
	cfg     domain.GptConfig
	metrics *metrics.Metrics
}

func NewService(client *Client, cfg domain.GptConfig, m *metrics.Metrics) *Service {
	return &Service{
		client:  client,
		cfg:     cfg,
		metrics: m,
	}
}

// Classify resolves every title to a Recognized result. The output slice is
// the same length and order as the input. Titles are chunked and the chunks
// run concurrently; any chunk failing after retries fails the whole call.
func (s *Service) Classify(ctx context.Context, titles []string) ([]Recognized, error) {
	if len(titles) == 0 {
		return nil, nil
	}

	type chunkResult struct {
		offset  int
		results []Recognized
	}

	chunkCount := (len(titles) + perRequestSize - 1) / perRequestSize
	resultsCh := make(chan chunkResult, chunkCount)

	g, gctx := errgroup.WithContext(ctx)
	for offset := 0; offset < len(titles); offset += perRequestSize {
		end := offset + perRequestSize
		if end > len(titles) {
			end = len(titles)
		}
		offset, chunk := offset, titles[offset:end]

		g.Go(func() error {
			results, err := s.classifyChunk(gctx, chunk)
			if err != nil {
				return err
			}
			resultsCh <- chunkResult{offset: offset, results: results}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(resultsCh)

	combined := make([]Recognized, len(titles))
	for chunk := range resultsCh {
		copy(combined[chunk.offset:], chunk.results)
	}

	return combined, nil
}

// classifyChunk asks the model about one batch of titles, retrying with
// model escalation. A response whose length does not match the input is a
// transient failure like any other.
func (s *Service) classifyChunk(ctx context.Context, titles []string) ([]Recognized, error) {
	var results []Recognized

	attempt := 0
	err := retry.Do(
		func() error {
			model := s.cfg.ModelForAttempt(attempt)
			attempt++

			log.Debug().
				Str("model", model).
				Int("attempt", attempt).
				Int("titles", len(titles)).
				Msg("classifying titles")

			content, err := s.client.CreateCompletion(ctx, model, systemPrompt, strings.Join(titles, "\n"), temperature)
			if err != nil {
				s.metrics.ClassifierRequests.WithLabelValues(model, "error").Inc()
				return err
			}

			parsed, err := parseResults(content)
			if err != nil {
				s.metrics.ClassifierRequests.WithLabelValues(model, "error").Inc()
				return err
			}

			if len(parsed) != len(titles) {
				s.metrics.ClassifierRequests.WithLabelValues(model, "error").Inc()
				return errors.Errorf("classification length mismatch: sent %d titles, got %d results", len(titles), len(parsed))
			}

			s.metrics.ClassifierRequests.WithLabelValues(model, "ok").Inc()
			results = parsed
			return nil
		},
		retry.Attempts(uint(s.cfg.Retry)+1),
		retry.Delay(retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("attempt", n).Msg("classification attempt failed")
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "classification failed")
	}

	return results, nil
}

// parseResults strips the wrapping the model tends to add around its JSON
// (whitespace, code fences, a json language tag) and decodes the array.
func parseResults(content string) ([]Recognized, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.Trim(cleaned, "`")
	cleaned = strings.TrimPrefix(cleaned, "json")
	cleaned = strings.TrimSpace(cleaned)

	var results []Recognized
	if err := json.Unmarshal([]byte(cleaned), &results); err != nil {
		return nil, errors.Wrapf(err, "failed to parse classification response %q", cleaned)
	}

	return results, nil
}
