// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes Prometheus counters for the agent's moving parts:
// feed polling, classification, metadata lookups, submissions and the
// completion hook.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rssbrr"

type Metrics struct {
	registry *prometheus.Registry

	FeedRefreshes      *prometheus.CounterVec
	TorrentsAdded      *prometheus.CounterVec
	ClassifierRequests *prometheus.CounterVec
	MetadataLookups    *prometheus.CounterVec
	HookRequests       *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		FeedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_refreshes_total",
			Help:      "Pipeline cycles per feed, labelled by outcome.",
		}, []string{"feed", "status"}),

		TorrentsAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "torrents_added_total",
			Help:      "Releases submitted to qBittorrent per feed.",
		}, []string{"feed"}),

		ClassifierRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_requests_total",
			Help:      "Chat completion requests, labelled by model and outcome.",
		}, []string{"model", "status"}),

		MetadataLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_lookups_total",
			Help:      "Show resolutions, labelled by source (cache or remote) and outcome.",
		}, []string{"source", "status"}),

		HookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hook_requests_total",
			Help:      "Completion hook requests, labelled by response status.",
		}, []string{"status"}),
	}

	registry.MustRegister(
		m.FeedRefreshes,
		m.TorrentsAdded,
		m.ClassifierRequests,
		m.MetadataLookups,
		m.HookRequests,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
