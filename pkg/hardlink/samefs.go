// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package hardlink

import (
	"errors"
	"fmt"
	"os"
)

// SameFilesystem reports whether two paths live on the same filesystem.
// Hard links cannot span filesystems, so callers check this up front to
// fail with something clearer than EXDEV.
func SameFilesystem(path1, path2 string) (bool, error) {
	if path1 == "" || path2 == "" {
		return false, errors.New("path must not be empty")
	}

	id1, err := fileIDForPath(path1)
	if err != nil {
		return false, err
	}
	id2, err := fileIDForPath(path2)
	if err != nil {
		return false, err
	}

	return sameVolume(id1, id2), nil
}

func fileIDForPath(path string) (FileID, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileID{}, fmt.Errorf("stat %s: %w", path, err)
	}
	id, _, err := GetFileID(fi, path)
	if err != nil {
		return FileID{}, fmt.Errorf("identify %s: %w", path, err)
	}
	return id, nil
}
