// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "strings"

// ValidModuleName reports whether name is a single safe path segment.
func ValidModuleName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.Contains(name, "..") &&
		!strings.Contains(name, "/") &&
		!strings.Contains(name, "\\")
}

// ValidModulePath reports whether path is a safe module path, possibly
// spanning submodules ("assets/icons"). Traversal, absolute paths, and
// empty or dot segments are rejected.
func ValidModulePath(path string) bool {
	if path == "" || strings.Contains(path, "..") {
		return false
	}
	if strings.HasPrefix(path, "/") || strings.Contains(path, "\\") {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if strings.TrimSpace(seg) == "" || seg == "." {
			return false
		}
	}
	return true
}

// ValidFilename rejects filenames carrying traversal segments.
func ValidFilename(filename string) bool {
	return filename != "" &&
		!strings.Contains(filename, "..") &&
		!strings.Contains(filename, "//")
}

// ValidRelativePath rejects relative paths that could escape the
// destination directory. The empty path is valid (no subdirectory).
func ValidRelativePath(path string) bool {
	if path == "" {
		return true
	}
	return !strings.Contains(path, "..") &&
		!strings.Contains(path, "//") &&
		!strings.HasPrefix(path, "/") &&
		!strings.Contains(path, "\\")
}

// ValidChunkParams reports whether the chunk index fits the total.
func ValidChunkParams(chunkNumber, totalChunks int) bool {
	return chunkNumber >= 0 && totalChunks > 0 && chunkNumber < totalChunks
}

// ValidFileSize reports whether a declared size is within the cap.
func ValidFileSize(size, maxSize int64) bool {
	return size <= maxSize
}
