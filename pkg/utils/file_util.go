// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
)

// EnsureDir creates the directory (and parents) if missing and verifies
// it is writable. Used for the uploads and temp roots at startup.
func EnsureDir(folder string) error {
	if err := os.MkdirAll(folder, 0755); err != nil {
		return err
	}
	return TestWritableFile(folder)
}

// TestWritableFile verifies that folder exists, is a directory, and
// carries owner write permission.
func TestWritableFile(folder string) error {
	info, err := os.Stat(folder)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.ErrInvalid
	}
	if info.Mode().Perm()&0200 == 0 {
		return os.ErrPermission
	}
	return nil
}

// ResolvePath expands a leading ~ and environment variables and
// returns an absolute path where possible.
func ResolvePath(path string) string {
	if strings.HasPrefix(path, "~") {
		if usr, err := user.Current(); err == nil {
			if path == "~" {
				path = usr.HomeDir
			} else if strings.HasPrefix(path, "~/") {
				path = filepath.Join(usr.HomeDir, path[2:])
			}
		}
	}

	path = os.ExpandEnv(path)
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}

	return path
}
