// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

//go:build linux

package utils

import "golang.org/x/sys/unix"

// DiskUsage reports total and available bytes for the filesystem
// holding path. Available means usable by an unprivileged writer
// (Bavail, not Bfree).
func DiskUsage(path string) (total uint64, free uint64, err error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return 0, 0, err
	}
	total = fs.Blocks * uint64(fs.Bsize)
	free = fs.Bavail * uint64(fs.Bsize)
	return total, free, nil
}
