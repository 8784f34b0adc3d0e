// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

//go:build !windows

// Package hardlink identifies physical files on disk, so callers can tell
// whether two paths already point at the same data.
package hardlink

import (
	"errors"
	"os"
	"syscall"
)

// FileID uniquely identifies a physical file on disk.
// On Unix, this is the (device, inode) pair.
// This type is comparable and can be used as a map key without allocations.
type FileID struct {
	Dev uint64
	Ino uint64
}

// IsZero returns true if the FileID is the zero value (uninitialized).
func (f FileID) IsZero() bool {
	return f.Dev == 0 && f.Ino == 0
}

// GetFileID returns the FileID and link count for a file without allocations.
func GetFileID(fi os.FileInfo, _ string) (FileID, uint64, error) {
	sys, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return FileID{}, 0, errors.New("failed to get syscall.Stat_t")
	}
	return FileID{Dev: uint64(sys.Dev), Ino: sys.Ino}, uint64(sys.Nlink), nil //nolint:gosec // sys.Dev is always non-negative
}

// sameVolume reports whether two file IDs belong to the same device.
func sameVolume(a, b FileID) bool {
	return a.Dev == b.Dev
}
