// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package modules

import (
	"math"
	"os"
	"path/filepath"
)

// TreeStats aggregates the on-disk footprint of the uploads and temp
// roots.
type TreeStats struct {
	TotalModules int     `json:"total_modules"`
	TotalFiles   int     `json:"total_files"`
	TotalSize    int64   `json:"total_size"`
	TotalSizeMB  int64   `json:"total_size_mb"`
	TotalSizeGB  float64 `json:"total_size_gb"`
	TempFiles    int     `json:"temp_files_count"`
	TempSize     int64   `json:"temp_files_size"`
}

// Stats walks both roots and returns the aggregate. Unreadable entries
// are skipped rather than failing the whole report.
func (s *Service) Stats() TreeStats {
	var st TreeStats

	if entries, err := os.ReadDir(s.uploadsRoot); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			st.TotalModules++
			countFiles(filepath.Join(s.uploadsRoot, entry.Name()), &st.TotalFiles, &st.TotalSize)
		}
	}

	if entries, err := os.ReadDir(s.tempRoot); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			countFiles(filepath.Join(s.tempRoot, entry.Name()), &st.TempFiles, &st.TempSize)
		}
	}

	st.TotalSizeMB = int64(math.Round(float64(st.TotalSize) / 1024 / 1024))
	st.TotalSizeGB = float64(st.TotalSize) / 1024 / 1024 / 1024
	return st
}

// countFiles accumulates the file count and byte total under path.
// Errors are ignored; partial counts are acceptable for reporting.
func countFiles(path string, count *int, size *int64) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			countFiles(filepath.Join(path, entry.Name()), count, size)
			continue
		}
		if fi, err := entry.Info(); err == nil {
			*count++
			*size += fi.Size()
		}
	}
}
