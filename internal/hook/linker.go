// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package hook

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/rssbrr/internal/models"
	"github.com/autobrr/rssbrr/pkg/hardlink"
)

// LibraryPath returns where a completed episode lands inside the media
// library, following the Emby TV convention:
//
//	{linkTo}/{name} ({year}) [tmdbid={id}]/Season {season}/{name} - S01E09 - {fansub}-{language}.mkv
//
// The tmdbid tag is omitted for records that never resolved against TMDB.
// ext must carry its leading dot, as returned by filepath.Ext.
func LibraryPath(linkTo string, record *models.TorrentRecord, ext string) string {
	show := fmt.Sprintf("%s (%d)", record.Name, record.Year)
	if record.TmdbID != 0 {
		show = fmt.Sprintf("%s (%d) [tmdbid=%d]", record.Name, record.Year, record.TmdbID)
	}

	season := fmt.Sprintf("Season %d", record.Season)
	episode := fmt.Sprintf("%s - S%02dE%02d - %s-%s%s",
		record.Name, record.Season, record.Episode, record.Fansub, record.Language, ext)

	return filepath.Join(linkTo, show, season, episode)
}

// LinkCompleted hard-links a finished download into the media library and
// returns the target path. Linking the same content twice is not an error:
// when the target already points at the same physical file the call reports
// success.
func LinkCompleted(linkTo string, record *models.TorrentRecord, contentPath string) (string, error) {
	fi, err := os.Stat(contentPath)
	if err != nil {
		return "", errors.Wrapf(err, "stat content path %q", contentPath)
	}
	if !fi.Mode().IsRegular() {
		return "", errors.Errorf("content path %q is not a regular file", contentPath)
	}

	ext := filepath.Ext(contentPath)
	if ext == "" {
		return "", errors.Errorf("content path %q has no file extension", contentPath)
	}

	target := LibraryPath(linkTo, record, ext)
	targetDir := filepath.Dir(target)

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create library directory %q", targetDir)
	}

	if same, err := hardlink.SameFilesystem(contentPath, targetDir); err == nil && !same {
		return "", errors.Errorf("cannot hard link across filesystems: %q -> %q", contentPath, target)
	}

	if err := os.Link(contentPath, target); err != nil {
		if alreadyLinked(fi, contentPath, target) {
			log.Debug().Str("target", target).Msg("library link already exists")
			return target, nil
		}
		return "", errors.Wrapf(err, "hard link %q -> %q", contentPath, target)
	}

	log.Info().Str("source", contentPath).Str("target", target).Msg("linked completed download into library")

	return target, nil
}

// alreadyLinked reports whether target is an existing hard link of the
// source file. The torrent client may fire the completion hook more than
// once for the same torrent.
func alreadyLinked(srcInfo os.FileInfo, srcPath, target string) bool {
	dstInfo, err := os.Stat(target)
	if err != nil {
		return false
	}

	srcID, _, err := hardlink.GetFileID(srcInfo, srcPath)
	if err != nil {
		return false
	}
	dstID, _, err := hardlink.GetFileID(dstInfo, target)
	if err != nil {
		return false
	}

	return !srcID.IsZero() && srcID == dstID
}
