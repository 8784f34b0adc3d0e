// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package notifier delivers the optional email summaries: per-cycle "new
// additions" digests and "feed keeps failing" alerts. Delivery problems are
// logged and swallowed; mail must never take the pipeline down.
package notifier

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/rssbrr/internal/domain"
)

// defaultSMTPPort matches submission over implicit TLS, the common setup
// for the providers this feature gets pointed at.
const defaultSMTPPort = "465"

type Service struct {
	url      string
	receiver string
}

// NewService builds the mail channel. A nil config yields a disabled
// service whose methods are all no-ops.
func NewService(cfg *domain.EmailConfig) *Service {
	if cfg == nil {
		return &Service{}
	}

	return &Service{
		url:      BuildSMTPURL(cfg),
		receiver: cfg.Receiver,
	}
}

// BuildSMTPURL renders the shoutrrr service URL for an email configuration.
// The smtp_host may carry an explicit port.
func BuildSMTPURL(cfg *domain.EmailConfig) string {
	host := cfg.SMTPHost
	port := defaultSMTPPort
	if h, p, err := net.SplitHostPort(cfg.SMTPHost); err == nil {
		host, port = h, p
	}

	u := url.URL{
		Scheme: "smtp",
		User:   url.UserPassword(cfg.Sender, cfg.SenderPswd),
		Host:   net.JoinHostPort(host, port),
		Path:   "/",
	}

	q := url.Values{}
	q.Set("from", cfg.Sender)
	q.Set("to", cfg.Receiver)
	u.RawQuery = q.Encode()

	return u.String()
}

// Enabled reports whether an email channel is configured.
func (s *Service) Enabled() bool {
	return s != nil && s.url != ""
}

// NotifyAdded emails the digest for one pipeline cycle: how many releases a
// feed picked up, one raw title per line.
func (s *Service) NotifyAdded(feedName string, titles []string) {
	if !s.Enabled() || len(titles) == 0 {
		return
	}

	subject := fmt.Sprintf("rssbrr: feed %s added %d item(s)", feedName, len(titles))

	lines := make([]string, 0, len(titles))
	for _, title := range titles {
		lines = append(lines, "- "+title)
	}

	s.send(subject, strings.Join(lines, "\n"))
}

// NotifyFeedFailure emails the alert for a feed that has failed too many
// cycles in a row and is about to take the agent down.
func (s *Service) NotifyFeedFailure(feedName string, err error) {
	if !s.Enabled() {
		return
	}

	subject := fmt.Sprintf("rssbrr: feed %s failed: %v", feedName, err)
	body := fmt.Sprintf("Feed %q failed three cycles in a row.\n\nLast error:\n%v", feedName, err)

	s.send(subject, body)
}

func (s *Service) send(subject, body string) {
	sender, err := router.New(nil, s.url)
	if err != nil {
		log.Error().Err(err).Msg("failed to build mail sender")
		return
	}

	params := types.Params{}
	params.SetTitle(subject)

	for _, sendErr := range sender.Send(body, &params) {
		if sendErr != nil {
			log.Error().Err(sendErr).Str("receiver", s.receiver).Msg("failed to send mail")
			return
		}
	}

	log.Debug().Str("receiver", s.receiver).Str("subject", subject).Msg("mail sent")
}
