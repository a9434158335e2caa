// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"sync"
	"time"

	"github.com/berthd/berth/pkg/types"
)

// rateAlpha is the EWMA smoothing factor for the transfer rate.
const rateAlpha = 0.2

type progressEntry struct {
	progress  types.UploadProgress
	updatedAt time.Time
}

// ProgressTracker holds in-memory transfer-progress snapshots keyed by
// logical file key. Entries are updated on every chunk write, cleared
// when the merge completes, and expired by the janitor when stale.
type ProgressTracker struct {
	mu      sync.Mutex
	entries map[string]*progressEntry
	now     func() time.Time
}

func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		entries: make(map[string]*progressEntry),
		now:     time.Now,
	}
}

// Record folds one successful chunk write into the snapshot for the
// request's key. Speed is EWMA-smoothed bytes per second; estimated
// time is the remaining bytes at that speed.
func (t *ProgressTracker) Record(req types.ChunkRequest, written int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := req.Key.LockKey()
	e, ok := t.entries[key]
	if !ok {
		e = &progressEntry{
			progress: types.UploadProgress{
				Filename:    req.Key.Filename,
				Module:      req.Key.Module,
				TotalChunks: req.TotalChunks,
				TotalSize:   req.TotalSize,
			},
			updatedAt: now,
		}
		t.entries[key] = e
	}

	p := &e.progress
	p.UploadedChunks++
	p.UploadedSize += written
	if req.TotalSize > 0 {
		p.TotalSize = req.TotalSize
	}
	if req.TotalChunks > 0 {
		p.TotalChunks = req.TotalChunks
	}

	if dt := now.Sub(e.updatedAt).Seconds(); dt > 0 {
		inst := float64(written) / dt
		if p.Speed == 0 {
			p.Speed = inst
		} else {
			p.Speed = rateAlpha*inst + (1-rateAlpha)*p.Speed
		}
	}
	if p.Speed > 0 && p.TotalSize > p.UploadedSize {
		p.EstimatedTime = float64(p.TotalSize-p.UploadedSize) / p.Speed
	} else {
		p.EstimatedTime = 0
	}
	e.updatedAt = now
}

// Get returns the snapshot for (module, filename) if one exists.
func (t *ProgressTracker) Get(module, filename string) (types.UploadProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := types.FileKey{Module: module, Filename: filename}.LockKey()
	if e, ok := t.entries[key]; ok {
		return e.progress, true
	}
	return types.UploadProgress{}, false
}

// Remove clears the entry for key, called when a merge completes.
func (t *ProgressTracker) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}

// CleanupExpired drops entries not updated within maxAge and returns
// how many were removed.
func (t *ProgressTracker) CleanupExpired(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cleaned := 0
	for k, e := range t.entries {
		if now.Sub(e.updatedAt) >= maxAge {
			delete(t.entries, k)
			cleaned++
		}
	}
	return cleaned
}

// Len returns the number of tracked transfers.
func (t *ProgressTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
