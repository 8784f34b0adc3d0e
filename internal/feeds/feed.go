// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package feeds fetches release announcements from the supported torrent
// indexes and normalizes them into feed items.
package feeds

import (
	"net/url"

	"github.com/pkg/errors"

	"github.com/autobrr/rssbrr/internal/domain"
)

// BuildURL returns the feed endpoint for a site and search term. Each site
// embeds the term differently: comicat as a path segment, dmhy as a query
// parameter.
func BuildURL(site domain.Site, search string) (string, error) {
	switch site {
	case domain.SiteComicat:
		return "https://comicat.org/rss-" + url.PathEscape(search) + ".xml", nil
	case domain.SiteDmhy:
		u, err := url.Parse("https://www.dmhy.org/topics/rss/rss.xml")
		if err != nil {
			return "", err
		}
		q := u.Query()
		q.Set("keyword", search)
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return "", errors.Errorf("unsupported feed site %q", site)
	}
}
