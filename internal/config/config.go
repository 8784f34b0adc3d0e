// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the TOML configuration and watches it for changes.
package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/autobrr/rssbrr/internal/domain"
	"github.com/autobrr/rssbrr/pkg/debounce"
)

// envPrefix yields RSSBRR__DB_URI-style overrides for the top-level keys.
const envPrefix = "RSSBRR_"

// reloadDebounce collapses bursts of filesystem events (editors tend to fire
// several per save) into one reload.
const reloadDebounce = time.Second

var envKeys = []string{
	"db_uri",
	"https_proxy",
	"tmdb_secret",
	"link_to",
	"timeout_s",
	"hook_listen",
	"log_level",
	"log_path",
}

// Load reads, decodes and validates the configuration file. Environment
// variables override file values for the top-level keys.
func Load(configPath string) (*domain.Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(configPath)

	v.SetEnvPrefix(envPrefix)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.Wrapf(err, "bind env for %q", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read config file %q", configPath)
	}

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return &cfg, nil
}

// Watch invokes onChange whenever the config file is rewritten. The watch is
// placed on the containing directory so that editors which replace the file
// (write to temp, rename over) are still observed. Watch returns once the
// watcher is installed; events are delivered until ctx is cancelled.
func Watch(ctx context.Context, configPath string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create config watcher")
	}

	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "watch %q", dir)
	}

	go watchLoop(ctx, watcher, filepath.Base(configPath), onChange)

	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, base string, onChange func()) {
	defer watcher.Close()

	debouncer := debounce.New(reloadDebounce)
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
				continue
			}

			log.Debug().Str("event", event.Op.String()).Str("file", event.Name).Msg("config file changed")
			debouncer.Do(onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("config watcher error")
		}
	}
}
