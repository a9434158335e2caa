// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/berthd/berth/pkg/logger"
	"github.com/berthd/berth/pkg/utils"

	"github.com/dustin/go-humanize"
)

// Janitor defaults; each is overridable through JanitorConfig.
const (
	DefaultCleanupInterval = 30 * time.Minute
	DefaultLockIdleTTL     = 2 * time.Hour
	DefaultProgressIdleTTL = 6 * time.Hour
	DefaultTempFileTTL     = 24 * time.Hour
)

// JanitorConfig configures the background reclamation pass.
type JanitorConfig struct {
	TempRoot        string
	Interval        time.Duration
	LockIdleTTL     time.Duration
	ProgressIdleTTL time.Duration
	TempFileTTL     time.Duration
}

// PassStats summarizes one janitor pass.
type PassStats struct {
	LocksEvicted    int
	ProgressEvicted int
	TempFiles       int
	BytesFreed      int64
}

// Janitor periodically evicts idle lock entries, stale progress
// entries, and orphaned temp files, and runs one final synchronous
// pass during shutdown.
type Janitor struct {
	cfg     JanitorConfig
	locks   *LockRegistry
	tracker *ProgressTracker
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewJanitor(cfg JanitorConfig, locks *LockRegistry, tracker *ProgressTracker) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCleanupInterval
	}
	if cfg.LockIdleTTL <= 0 {
		cfg.LockIdleTTL = DefaultLockIdleTTL
	}
	if cfg.ProgressIdleTTL <= 0 {
		cfg.ProgressIdleTTL = DefaultProgressIdleTTL
	}
	if cfg.TempFileTTL <= 0 {
		cfg.TempFileTTL = DefaultTempFileTTL
	}
	return &Janitor{
		cfg:     cfg,
		locks:   locks,
		tracker: tracker,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs the cleanup loop in a goroutine. Ticks are jittered so
// multiple timers in the process do not fire in lockstep.
func (j *Janitor) Start() {
	go func() {
		defer close(j.doneCh)
		ticks, stop := utils.JitteredTicker(j.cfg.Interval, 0.1)
		defer stop()
		for {
			select {
			case <-ticks:
				j.RunOnce(context.Background())
			case <-j.stopCh:
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for it.
func (j *Janitor) Stop() {
	close(j.stopCh)
	<-j.doneCh
}

// RunOnce performs a single reclamation pass: idle lock entries, stale
// progress entries, then expired temp files.
func (j *Janitor) RunOnce(ctx context.Context) PassStats {
	janitorRuns.Inc()

	stats := PassStats{
		LocksEvicted:    j.locks.CleanupIdle(j.cfg.LockIdleTTL),
		ProgressEvicted: j.tracker.CleanupExpired(j.cfg.ProgressIdleTTL),
	}
	stats.TempFiles, stats.BytesFreed = j.CleanTempFiles(ctx)

	logger.Ctx(ctx).Info().
		Int("locks_evicted", stats.LocksEvicted).
		Int("progress_evicted", stats.ProgressEvicted).
		Int("temp_files", stats.TempFiles).
		Str("bytes_freed", humanize.Bytes(uint64(stats.BytesFreed))).
		Msg("janitor pass completed")
	return stats
}

// CleanTempFiles walks the temp area recursively and deletes files
// that match the part or merge-scratch naming convention and are older
// than the TTL. Files with unrelated names are never touched, whatever
// their age. Individual deletion failures are logged and skipped.
func (j *Janitor) CleanTempFiles(ctx context.Context) (int, int64) {
	cutoff := time.Now().Add(-j.cfg.TempFileTTL)
	cleaned := 0
	var freed int64

	err := filepath.WalkDir(j.cfg.TempRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			logger.Warn().Err(err).Str("path", path).Msg("janitor: walk error")
			return nil
		}
		if d.IsDir() || !isTempArtifact(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("janitor: failed to remove temp file")
			return nil
		}
		cleaned++
		freed += info.Size()
		logger.Ctx(ctx).Debug().Str("path", path).Msg("janitor: removed temp file")
		return nil
	})
	if err != nil {
		logger.Warn().Err(err).Str("root", j.cfg.TempRoot).Msg("janitor: temp walk failed")
	}

	janitorFilesCleaned.Add(float64(cleaned))
	janitorBytesReclaimed.Add(float64(freed))
	return cleaned, freed
}

// isTempArtifact reports whether name follows the part or merge
// scratch naming convention. The janitor only ever deletes matches.
func isTempArtifact(name string) bool {
	return strings.Contains(name, ".part") || strings.Contains(name, ".tmp.")
}
