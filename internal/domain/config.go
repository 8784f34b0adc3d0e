// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultFeedInterval is used when neither the feed nor the default
	// block carries a poll interval.
	DefaultFeedInterval = 15 * time.Minute

	// DefaultTimeout bounds outbound HTTP requests (source, classifier,
	// metadata) when timeout_s is unset.
	DefaultTimeout = 10 * time.Second

	// DefaultHookListen is where the completion-hook server binds. The
	// qBittorrent "run on completion" command posts the torrent title here.
	DefaultHookListen = ":80"
)

// FeedTypeRSS is the only feed variant currently supported.
const FeedTypeRSS = "rss"

// Site identifies a supported release index. Additional variants extend this
// tag and the URL builder in internal/feeds.
type Site string

const (
	SiteComicat Site = "comicat"
	SiteDmhy    Site = "dmhy"
)

// ParseSite resolves a configured site name, accepting both the ASCII
// identifiers and the Chinese site names users tend to paste.
func ParseSite(s string) (Site, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "comicat", "动漫猫":
		return SiteComicat, nil
	case "dmhy", "动漫花园":
		return SiteDmhy, nil
	default:
		return "", fmt.Errorf("unknown feed site %q", s)
	}
}

// Config is the full agent configuration, loaded from a TOML file.
type Config struct {
	DBURI      string `toml:"db_uri" mapstructure:"db_uri"`
	HTTPSProxy string `toml:"https_proxy" mapstructure:"https_proxy"`
	TmdbSecret string `toml:"tmdb_secret" mapstructure:"tmdb_secret"`
	LinkTo     string `toml:"link_to" mapstructure:"link_to"`
	TimeoutS   int    `toml:"timeout_s" mapstructure:"timeout_s"`
	HookListen string `toml:"hook_listen" mapstructure:"hook_listen"`
	LogLevel   string `toml:"log_level" mapstructure:"log_level"`
	LogPath    string `toml:"log_path" mapstructure:"log_path"`

	Email   *EmailConfig `toml:"email" mapstructure:"email"`
	Gpt     GptConfig    `toml:"gpt" mapstructure:"gpt"`
	Qb      QbConfig     `toml:"qb" mapstructure:"qb"`
	Default FeedBase     `toml:"default" mapstructure:"default"`
	Feeds   []FeedConfig `toml:"feed" mapstructure:"feed"`
}

// EmailConfig drives the optional SMTP notification channel.
type EmailConfig struct {
	Sender     string `toml:"sender" mapstructure:"sender"`
	SenderPswd string `toml:"sender_pswd" mapstructure:"sender_pswd"`
	SMTPHost   string `toml:"smtp_host" mapstructure:"smtp_host"`
	Receiver   string `toml:"receiver" mapstructure:"receiver"`
}

// GptConfig points the classifier at an OpenAI-compatible chat endpoint.
type GptConfig struct {
	URL         string `toml:"url" mapstructure:"url"`
	Token       string `toml:"token" mapstructure:"token"`
	Model       string `toml:"model" mapstructure:"model"`
	BetterModel string `toml:"better_model" mapstructure:"better_model"`
	BetterSince int    `toml:"better_since" mapstructure:"better_since"`
	Retry       int    `toml:"retry" mapstructure:"retry"`
}

// ModelForAttempt escalates to the better model once the cheap one has had
// its chances. Attempts are zero-based.
func (c GptConfig) ModelForAttempt(attempt int) string {
	if attempt < c.BetterSince || c.BetterModel == "" {
		return c.Model
	}
	return c.BetterModel
}

// QbConfig holds the qBittorrent Web API connection settings.
type QbConfig struct {
	BaseURL  string `toml:"base_url" mapstructure:"base_url"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
}

// FeedBase carries the per-feed submission settings. The [default] block is
// a FeedBase whose set fields fill in unset fields of every feed.
type FeedBase struct {
	IntervalS             int      `toml:"interval_s" mapstructure:"interval_s"`
	Savepath              string   `toml:"savepath" mapstructure:"savepath"`
	ContentLayout         string   `toml:"content_layout" mapstructure:"content_layout"`
	Category              string   `toml:"category" mapstructure:"category"`
	Tags                  []string `toml:"tags" mapstructure:"tags"`
	AutoTorrentManagement *bool    `toml:"auto_torrent_management" mapstructure:"auto_torrent_management"`
	RatioLimit            float64  `toml:"ratio_limit" mapstructure:"ratio_limit"`
	Filters               []string `toml:"filters" mapstructure:"filters"`
	NotFilters            []string `toml:"not_filters" mapstructure:"not_filters"`
}

// FeedConfig declares one watched feed.
type FeedConfig struct {
	Type   string `toml:"type" mapstructure:"type"`
	Name   string `toml:"name" mapstructure:"name"`
	Site   string `toml:"site" mapstructure:"site"`
	Search string `toml:"search" mapstructure:"search"`

	FeedBase `mapstructure:",squash"`
}

// Interval returns the effective poll period.
func (f *FeedConfig) Interval() time.Duration {
	if f.IntervalS <= 0 {
		return DefaultFeedInterval
	}
	return time.Duration(f.IntervalS) * time.Second
}

// AutoTMM reports whether automatic torrent management is enabled. Unset
// means disabled, matching the original default.
func (f *FeedConfig) AutoTMM() bool {
	return f.AutoTorrentManagement != nil && *f.AutoTorrentManagement
}

// CompileFilters compiles the include and exclude regex lists. An item
// survives filtering only if every include regex matches its title and no
// exclude regex does.
func (f *FeedConfig) CompileFilters() (include, exclude []*regexp.Regexp, err error) {
	compile := func(patterns []string, kind string) ([]*regexp.Regexp, error) {
		res := make([]*regexp.Regexp, 0, len(patterns))
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("feed %q: invalid %s regex %q: %w", f.Name, kind, p, err)
			}
			res = append(res, re)
		}
		return res, nil
	}

	if include, err = compile(f.Filters, "filter"); err != nil {
		return nil, nil, err
	}
	if exclude, err = compile(f.NotFilters, "not_filter"); err != nil {
		return nil, nil, err
	}
	return include, exclude, nil
}

// ApplyDefaults fills unset feed fields from the [default] block and settles
// the top-level fallbacks. Call once after decoding, before Validate.
func (c *Config) ApplyDefaults() {
	if c.TimeoutS <= 0 {
		c.TimeoutS = int(DefaultTimeout / time.Second)
	}
	if strings.TrimSpace(c.HookListen) == "" {
		c.HookListen = DefaultHookListen
	}
	if c.Gpt.BetterModel == "" {
		c.Gpt.BetterModel = c.Gpt.Model
	}

	for i := range c.Feeds {
		f := &c.Feeds[i]
		if f.IntervalS <= 0 {
			f.IntervalS = c.Default.IntervalS
		}
		if f.Savepath == "" {
			f.Savepath = c.Default.Savepath
		}
		if f.ContentLayout == "" {
			f.ContentLayout = c.Default.ContentLayout
		}
		if f.Category == "" {
			f.Category = c.Default.Category
		}
		if len(f.Tags) == 0 {
			f.Tags = c.Default.Tags
		}
		if f.AutoTorrentManagement == nil {
			f.AutoTorrentManagement = c.Default.AutoTorrentManagement
		}
		if f.RatioLimit == 0 {
			f.RatioLimit = c.Default.RatioLimit
		}
		if len(f.Filters) == 0 {
			f.Filters = c.Default.Filters
		}
		if len(f.NotFilters) == 0 {
			f.NotFilters = c.Default.NotFilters
		}
	}
}

// Timeout returns the effective outbound HTTP timeout.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutS <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutS) * time.Second
}

// ProxyURL parses the optional https_proxy setting.
func (c *Config) ProxyURL() (*url.URL, error) {
	if strings.TrimSpace(c.HTTPSProxy) == "" {
		return nil, nil
	}
	u, err := url.Parse(c.HTTPSProxy)
	if err != nil {
		return nil, fmt.Errorf("invalid https_proxy %q: %w", c.HTTPSProxy, err)
	}
	return u, nil
}

var contentLayouts = map[string]struct{}{
	"Original":    {},
	"Subfolder":   {},
	"NoSubfolder": {},
}

// Validate checks the configuration for structural errors. It assumes
// ApplyDefaults has already run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBURI) == "" {
		return errors.New("db_uri is required")
	}
	if strings.TrimSpace(c.LinkTo) == "" {
		return errors.New("link_to is required")
	}
	if strings.TrimSpace(c.TmdbSecret) == "" {
		return errors.New("tmdb_secret is required")
	}
	if _, err := c.ProxyURL(); err != nil {
		return err
	}

	if strings.TrimSpace(c.Qb.BaseURL) == "" {
		return errors.New("qb.base_url is required")
	}
	if c.Qb.Username == "" || c.Qb.Password == "" {
		return errors.New("qb.username and qb.password are required")
	}

	if strings.TrimSpace(c.Gpt.URL) == "" {
		return errors.New("gpt.url is required")
	}
	if c.Gpt.Token == "" {
		return errors.New("gpt.token is required")
	}
	if c.Gpt.Model == "" {
		return errors.New("gpt.model is required")
	}
	if c.Gpt.Retry < 0 {
		return errors.New("gpt.retry must not be negative")
	}
	if c.Gpt.BetterSince < 0 {
		return errors.New("gpt.better_since must not be negative")
	}

	if c.Email != nil {
		if c.Email.Sender == "" || c.Email.SenderPswd == "" || c.Email.SMTPHost == "" || c.Email.Receiver == "" {
			return errors.New("email requires sender, sender_pswd, smtp_host and receiver")
		}
	}

	seen := make(map[string]struct{}, len(c.Feeds))
	for i := range c.Feeds {
		f := &c.Feeds[i]
		if f.Type != FeedTypeRSS {
			return fmt.Errorf("feed %q: unsupported type %q", f.Name, f.Type)
		}
		if strings.TrimSpace(f.Name) == "" {
			return errors.New("feed name is required")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate feed name %q", f.Name)
		}
		seen[f.Name] = struct{}{}

		if _, err := ParseSite(f.Site); err != nil {
			return fmt.Errorf("feed %q: %w", f.Name, err)
		}
		if strings.TrimSpace(f.Search) == "" {
			return fmt.Errorf("feed %q: search is required", f.Name)
		}
		if f.ContentLayout != "" {
			if _, ok := contentLayouts[f.ContentLayout]; !ok {
				return fmt.Errorf("feed %q: invalid content_layout %q", f.Name, f.ContentLayout)
			}
		}
		if _, _, err := f.CompileFilters(); err != nil {
			return err
		}
	}

	return nil
}
