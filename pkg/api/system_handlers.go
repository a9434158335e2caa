// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"time"

	"github.com/berthd/berth/pkg/logger"
	"github.com/berthd/berth/pkg/modules"
	"github.com/berthd/berth/pkg/upload"
	"github.com/berthd/berth/pkg/utils"
)

type healthReport struct {
	Status           string `json:"status"`
	Timestamp        string `json:"timestamp"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	FileLocks        int    `json:"file_locks_count"`
	ActiveUploads    int64  `json:"active_uploads"`
	AvailablePermits int64  `json:"available_permits"`
	DiskTotal        uint64 `json:"disk_total"`
	DiskFree         uint64 `json:"disk_free"`
	DiskLow          bool   `json:"disk_low,omitempty"`
}

type statsReport struct {
	modules.TreeStats
	upload.Snapshot
	ActiveUploads int64 `json:"active_uploads"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	report := healthReport{
		Status:           "healthy",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds:    int64(time.Since(s.started).Seconds()),
		FileLocks:        s.deps.Locks.Len(),
		ActiveUploads:    s.deps.Admission.ActiveUploads(),
		AvailablePermits: s.deps.Admission.AvailablePermits(),
	}

	total, free, err := utils.DiskUsage(s.cfg.UploadsRoot)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("failed to stat uploads disk")
	} else {
		report.DiskTotal = total
		report.DiskFree = free
		if s.cfg.MinFreeSpace != nil {
			freePercent := float32(0)
			if total > 0 {
				freePercent = float32(free) / float32(total) * 100
			}
			if low, detail := s.cfg.MinFreeSpace.IsLow(free, freePercent); low {
				report.Status = "degraded"
				report.DiskLow = true
				logger.Ctx(r.Context()).Warn().Str("detail", detail).Msg("uploads disk low on space")
			}
		}
	}

	writeOK(w, report.Status, report)
}

// handleStats merges the filesystem walk with the engine counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	writeOK(w, "stats collected", statsReport{
		TreeStats:     s.deps.Modules.Stats(),
		Snapshot:      s.deps.Stats.Snapshot(),
		ActiveUploads: s.deps.Admission.ActiveUploads(),
	})
}

type cleanupReport struct {
	CleanedCount int   `json:"cleaned_count"`
	BytesFreed   int64 `json:"bytes_freed"`
}

// handleCleanup triggers an on-demand temp file pass. Lock and
// progress eviction stay on the janitor's own clock.
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	s.deps.Stats.RecordRequest()

	cleaned, freed := s.deps.Janitor.CleanTempFiles(r.Context())
	writeOK(w, "cleanup completed", cleanupReport{
		CleanedCount: cleaned,
		BytesFreed:   freed,
	})
}
