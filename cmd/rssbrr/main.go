// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/rssbrr/internal/buildinfo"
	"github.com/autobrr/rssbrr/internal/config"
	"github.com/autobrr/rssbrr/internal/hook"
	"github.com/autobrr/rssbrr/internal/logger"
	"github.com/autobrr/rssbrr/internal/metrics"
	"github.com/autobrr/rssbrr/internal/runner"
)

const defaultConfigPath = "config.toml"

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rssbrr [config_path]",
		Short: "RSS torrent-watching agent for anime release feeds",
		Long: `rssbrr polls the configured release feeds, classifies new titles,
records them, and hands them to qBittorrent. A completion hook links
finished downloads into the media library.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := defaultConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			return run(configPath)
		},
	}

	cmd.AddCommand(versionCommand())

	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Print(buildinfo.String())
		},
	}
}

func run(configPath string) error {
	// The initial load settles the logger and the hook listen address. The
	// supervisor re-reads the file on every generation.
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger.Setup(cfg.LogLevel, cfg.LogPath)

	log.Info().
		Str("version", buildinfo.Version).
		Str("config", configPath).
		Int("feeds", len(cfg.Feeds)).
		Msg("starting rssbrr")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	supervisor := runner.New(configPath, m)
	hookServer := hook.NewServer(configPath, cfg.HookListen, m)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return supervisor.Run(gctx)
	})

	g.Go(func() error {
		if err := hookServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "hook server")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return hookServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("rssbrr exited with error")
		return err
	}

	log.Info().Msg("rssbrr stopped")
	return nil
}
