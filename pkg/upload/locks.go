// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/berthd/berth/pkg/logger"
)

// FileLock is a context-aware mutual exclusion handle for one logical
// file. Handles own their liveness: a handle checked out of the
// registry stays valid and exclusive until unlocked even if its
// registry slot has since been evicted. Callers must hold one handle
// across their entire critical section and never re-fetch mid-merge.
type FileLock struct {
	ch chan struct{}
}

func newFileLock() *FileLock {
	return &FileLock{ch: make(chan struct{}, 1)}
}

// Lock blocks until the lock is held or ctx is done.
func (l *FileLock) Lock(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryLock acquires the lock without blocking.
func (l *FileLock) TryLock() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (l *FileLock) Unlock() {
	select {
	case <-l.ch:
	default:
		panic("upload: unlock of unlocked FileLock")
	}
}

type lockEntry struct {
	lock        *FileLock
	lastUsed    time.Time
	accessCount uint64
}

// LockRegistry is a size- and age-bounded map from logical file key to
// FileLock. The registry map is a lookup relation only, never the sole
// owner of a lock's liveness.
type LockRegistry struct {
	mu         sync.Mutex // guards entries; held only for lookup/insert
	entries    map[string]*lockEntry
	maxEntries int
	now        func() time.Time
}

// DefaultMaxLocks bounds registry memory under churn from many
// distinct filenames.
const DefaultMaxLocks = 10000

func NewLockRegistry(maxEntries int) *LockRegistry {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxLocks
	}
	r := &LockRegistry{
		entries:    make(map[string]*lockEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
	return r
}

// Get returns the lock handle for key, creating one if absent, and
// marks it just-used. When the registry is full, the least-recently
// used 20% of entries are discarded before the insert. Discarding a
// slot never invalidates a handle already checked out; a later Get for
// the same key mints a fresh handle.
func (r *LockRegistry) Get(key string) *FileLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		if len(r.entries) >= r.maxEntries {
			r.evictLocked()
		}
		entry = &lockEntry{lock: newFileLock()}
		r.entries[key] = entry
	}
	entry.lastUsed = r.now()
	entry.accessCount++
	lockRegistrySize.Set(float64(len(r.entries)))
	return entry.lock
}

// evictLocked drops the oldest entries, retaining the most recently
// used 80% of capacity. Caller holds the registry mutex.
func (r *LockRegistry) evictLocked() {
	type keyed struct {
		key   string
		entry *lockEntry
	}
	all := make([]keyed, 0, len(r.entries))
	for k, e := range r.entries {
		all = append(all, keyed{key: k, entry: e})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].entry.lastUsed.Before(all[j].entry.lastUsed)
	})

	retain := r.maxEntries * 8 / 10
	drop := len(all) - retain
	for _, ke := range all[:drop] {
		delete(r.entries, ke.key)
	}
	logger.Info().
		Int("dropped", drop).
		Int("remaining", len(r.entries)).
		Msg("file lock registry eviction")
}

// CleanupIdle removes entries idle past maxAge and returns how many
// were dropped. Held locks are not special-cased: dropping the slot
// does not touch the handle a merge may be holding.
func (r *LockRegistry) CleanupIdle(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cleaned := 0
	for k, e := range r.entries {
		if now.Sub(e.lastUsed) >= maxAge {
			delete(r.entries, k)
			cleaned++
		}
	}
	lockRegistrySize.Set(float64(len(r.entries)))
	return cleaned
}

// Len returns the current number of registry slots.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
