// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/berthd/berth/pkg/logger"
	"github.com/berthd/berth/pkg/types"
	"github.com/berthd/berth/pkg/utils"
)

// copyBufferSize is the buffer class used for streaming chunk bodies.
const copyBufferSize = 256 * 1024

// ReceiverConfig holds the receiver's filesystem and limit settings.
type ReceiverConfig struct {
	TempRoot    string
	MaxFileSize int64 // cap on the declared total size; 0 disables the check
}

// Receiver streams one piece of a file to its deterministic part path.
// Part files are write-once: a re-submission of an existing index is a
// no-op success, which makes client retries idempotent.
type Receiver struct {
	cfg       ReceiverConfig
	admission *Admission
	tracker   *ProgressTracker
	stats     *Stats
}

func NewReceiver(cfg ReceiverConfig, admission *Admission, tracker *ProgressTracker, stats *Stats) *Receiver {
	return &Receiver{
		cfg:       cfg,
		admission: admission,
		tracker:   tracker,
		stats:     stats,
	}
}

// WriteChunk validates the request, then streams body into the part
// file for (key, chunk index). Validation failures return before any
// filesystem access. If the part already exists the body is not read
// and the result reports the next expected index.
func (r *Receiver) WriteChunk(ctx context.Context, req types.ChunkRequest, body io.Reader) (types.ChunkResult, error) {
	res := types.ChunkResult{
		ChunkNumber: req.ChunkNumber,
		TotalChunks: req.TotalChunks,
		Filename:    req.Key.Filename,
	}

	if !types.ValidModuleName(req.Key.Module) {
		return res, &ValidationError{Field: "module", Reason: "illegal characters"}
	}
	if !types.ValidFilename(req.Key.Filename) {
		return res, &ValidationError{Field: "filename", Reason: "illegal characters"}
	}
	if !types.ValidRelativePath(req.Key.RelativePath) {
		return res, &ValidationError{Field: "relative_path", Reason: "illegal characters"}
	}
	if !types.ValidChunkParams(req.ChunkNumber, req.TotalChunks) {
		return res, &ValidationError{Field: "chunk_number", Reason: "out of range"}
	}
	if r.cfg.MaxFileSize > 0 && req.TotalSize > 0 && !types.ValidFileSize(req.TotalSize, r.cfg.MaxFileSize) {
		return res, &ValidationError{
			Field:  "total_size",
			Reason: fmt.Sprintf("exceeds limit of %d bytes", r.cfg.MaxFileSize),
		}
	}

	tempDir := req.Key.TempDir(r.cfg.TempRoot)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return res, fmt.Errorf("create temp dir %s: %w", tempDir, err)
	}

	partPath := req.Key.PartPath(r.cfg.TempRoot, req.ChunkNumber)

	// Idempotent retry: an existing part means a previous submission
	// of this index completed. Do not re-read the body.
	if _, err := os.Stat(partPath); err == nil {
		logger.Ctx(ctx).Debug().
			Str("part", partPath).
			Msg("chunk already present, skipping")
		next := req.ChunkNumber + 1
		res.NextChunk = &next
		res.AlreadyExists = true
		return res, nil
	}

	written, err := r.writePart(ctx, partPath, body)
	if err != nil {
		return res, err
	}

	res.Size = written
	if next := req.ChunkNumber + 1; next < req.TotalChunks {
		res.NextChunk = &next
	}

	chunksReceived.Inc()
	r.stats.AddUploadedBytes(written)
	r.tracker.Record(req, written)

	logger.Ctx(ctx).Info().
		Str("part", partPath).
		Int("chunk", req.ChunkNumber).
		Int("total_chunks", req.TotalChunks).
		Int64("size", written).
		Msg("chunk written")
	return res, nil
}

// writePart creates the part file and stream-copies body into it under
// the chunk-copy permit, syncing before success is reported. Any
// failure removes the partial part before returning so a client retry
// of the same index starts clean.
func (r *Receiver) writePart(ctx context.Context, partPath string, body io.Reader) (int64, error) {
	release, err := r.admission.AcquireCopy(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	f, err := os.Create(partPath)
	if err != nil {
		return 0, fmt.Errorf("create part %s: %w", partPath, err)
	}

	buf := utils.GetBuffer(copyBufferSize)
	written, err := io.CopyBuffer(f, body, buf)
	utils.PutBuffer(buf)
	if err != nil {
		f.Close()
		r.discardPart(partPath)
		return 0, fmt.Errorf("write part %s: %w", partPath, err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		r.discardPart(partPath)
		return 0, fmt.Errorf("sync part %s: %w", partPath, err)
	}
	if err := f.Close(); err != nil {
		r.discardPart(partPath)
		return 0, fmt.Errorf("close part %s: %w", partPath, err)
	}
	return written, nil
}

func (r *Receiver) discardPart(partPath string) {
	if err := os.Remove(partPath); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Str("part", partPath).Msg("failed to remove partial part")
	}
}
