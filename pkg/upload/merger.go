// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/berthd/berth/pkg/logger"
	"github.com/berthd/berth/pkg/types"
	"github.com/berthd/berth/pkg/utils"

	"github.com/google/uuid"
)

// MergerConfig holds the merger's filesystem roots.
type MergerConfig struct {
	UploadsRoot string
	TempRoot    string
}

// Merger assembles part files, in index order, into the final artifact
// via a write-temp-then-atomic-rename protocol. Within one logical key
// merges are totally ordered by the per-key lock; a reader of the
// destination path observes either nothing or the complete file, never
// a partial write.
type Merger struct {
	cfg     MergerConfig
	locks   *LockRegistry
	tracker *ProgressTracker
}

func NewMerger(cfg MergerConfig, locks *LockRegistry, tracker *ProgressTracker) *Merger {
	return &Merger{cfg: cfg, locks: locks, tracker: tracker}
}

// Merge concatenates chunks 0..TotalChunks-1 into the destination and
// deletes each part as it is consumed. A missing part aborts the merge
// with a MissingChunkError naming the index; parts consumed before the
// abort stay deleted, so the client must re-upload them before
// retrying (documented contract, not rediscovered per call).
func (m *Merger) Merge(ctx context.Context, req types.MergeRequest) (*types.FileInfo, error) {
	if !types.ValidModuleName(req.Module) {
		return nil, &ValidationError{Field: "module", Reason: "illegal characters"}
	}
	if !types.ValidFilename(req.Filename) {
		return nil, &ValidationError{Field: "filename", Reason: "illegal characters"}
	}
	if !types.ValidRelativePath(req.RelativePath) {
		return nil, &ValidationError{Field: "relative_path", Reason: "illegal characters"}
	}
	if req.TotalChunks <= 0 {
		return nil, &ValidationError{Field: "total_chunks", Reason: "must be positive"}
	}

	key := req.Key()
	finalPath := key.FinalPath(m.cfg.UploadsRoot)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0755); err != nil {
		return nil, fmt.Errorf("create destination dir: %w", err)
	}

	// One merge per key at a time. The handle stays valid for the
	// whole critical section even if the registry evicts its slot.
	lock := m.locks.Get(key.LockKey())
	if err := lock.Lock(ctx); err != nil {
		return nil, fmt.Errorf("acquire merge lock for %s: %w", key.LockKey(), err)
	}
	defer lock.Unlock()

	start := time.Now()
	size, err := m.assemble(key, req.TotalChunks, finalPath)
	if err != nil {
		if IsMissingChunk(err) {
			mergesTotal.WithLabelValues("missing_chunk").Inc()
		} else {
			mergesTotal.WithLabelValues("failed").Inc()
		}
		return nil, err
	}
	elapsed := time.Since(start)
	mergesTotal.WithLabelValues("completed").Inc()
	mergeDuration.Observe(elapsed.Seconds())

	m.tracker.Remove(key.LockKey())

	info := &types.FileInfo{
		Filename:     req.Filename,
		URL:          key.URL(),
		Module:       req.Module,
		UploadTime:   time.Now().UTC().Format(types.TimeFormat),
		Size:         size,
		FileType:     types.FileTypeFor(types.Ext(req.Filename)),
		RelativePath: req.RelativePath,
		FileHash:     req.FileHash,
	}

	logger.Ctx(ctx).Info().
		Str("path", finalPath).
		Int64("size", size).
		Int("chunks", req.TotalChunks).
		Dur("elapsed", elapsed).
		Msg("merge completed")
	return info, nil
}

// assemble copies every part into a scratch file beside the
// destination, fsyncs it, and renames it into place. The scratch file
// is removed on every failure path before the error propagates.
func (m *Merger) assemble(key types.FileKey, totalChunks int, finalPath string) (int64, error) {
	scratch := fmt.Sprintf("%s.tmp.%s", finalPath, uuid.New().String())
	out, err := os.OpenFile(scratch, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("create merge scratch %s: %w", scratch, err)
	}

	var total int64
	for i := 0; i < totalChunks; i++ {
		n, err := m.consumePart(key.PartPath(m.cfg.TempRoot, i), i, out)
		if err != nil {
			out.Close()
			m.discardScratch(scratch)
			return 0, err
		}
		total += n
	}

	if err := out.Sync(); err != nil {
		out.Close()
		m.discardScratch(scratch)
		return 0, fmt.Errorf("sync merged file: %w", err)
	}
	if err := out.Close(); err != nil {
		m.discardScratch(scratch)
		return 0, fmt.Errorf("close merged file: %w", err)
	}

	// Atomic publish: the destination name never refers to a
	// partially-written file.
	if err := os.Rename(scratch, finalPath); err != nil {
		m.discardScratch(scratch)
		return 0, fmt.Errorf("rename %s to %s: %w", scratch, finalPath, err)
	}
	return total, nil
}

// consumePart appends part i to out and deletes it. Deletion failure
// is logged but does not fail the merge.
func (m *Merger) consumePart(partPath string, index int, out io.Writer) (int64, error) {
	in, err := os.Open(partPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, &MissingChunkError{Index: index}
		}
		return 0, fmt.Errorf("open part %s: %w", partPath, err)
	}

	buf := utils.GetBuffer(copyBufferSize)
	n, err := io.CopyBuffer(out, in, buf)
	utils.PutBuffer(buf)
	in.Close()
	if err != nil {
		return 0, fmt.Errorf("copy part %s: %w", partPath, err)
	}

	if err := os.Remove(partPath); err != nil {
		logger.Warn().Err(err).Str("part", partPath).Msg("failed to remove consumed part")
	}
	return n, nil
}

func (m *Merger) discardScratch(scratch string) {
	if err := os.Remove(scratch); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("scratch", scratch).Msg("failed to remove merge scratch")
	}
}
