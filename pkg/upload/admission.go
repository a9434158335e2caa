// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Admission bounds concurrent upload work with two permit pools: a
// global pool covering every upload-handling request for its whole
// duration, and a smaller merge pool since merges are more I/O-heavy
// per operation. A third, optional pool throttles the stream-copy
// sections of chunk writes.
//
// Acquisition blocks until a permit frees or the request context is
// done; there is no separate acquisition timeout. A disconnected
// client releases its slot through context cancellation.
type Admission struct {
	global *semaphore.Weighted
	merge  *semaphore.Weighted
	copy   *semaphore.Weighted

	globalLimit int64
	active      atomic.Int64
}

// NewAdmission builds the permit pools. mergeLimit or copyLimit of 0
// disables the corresponding pool: merges then fall back to the global
// pool, and chunk copies run ungated.
func NewAdmission(globalLimit, mergeLimit, copyLimit int64) *Admission {
	a := &Admission{
		global:      semaphore.NewWeighted(globalLimit),
		globalLimit: globalLimit,
	}
	if mergeLimit > 0 {
		a.merge = semaphore.NewWeighted(mergeLimit)
	}
	if copyLimit > 0 {
		a.copy = semaphore.NewWeighted(copyLimit)
	}
	return a
}

// AcquireUpload takes a global permit. The returned release function
// must be called exactly once, on every path out of the operation.
func (a *Admission) AcquireUpload(ctx context.Context) (func(), error) {
	if err := a.global.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: acquire upload permit: %v", ErrUnavailable, err)
	}
	a.track()
	return func() {
		a.untrack()
		a.global.Release(1)
	}, nil
}

// AcquireMerge takes a merge permit, falling back to the global pool
// when no dedicated merge pool was configured.
func (a *Admission) AcquireMerge(ctx context.Context) (func(), error) {
	pool := a.merge
	if pool == nil {
		pool = a.global
	}
	if err := pool.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: acquire merge permit: %v", ErrUnavailable, err)
	}
	a.track()
	return func() {
		a.untrack()
		pool.Release(1)
	}, nil
}

// AcquireCopy takes a chunk-copy permit. When the copy pool is not
// configured the returned release is a no-op and acquisition never
// blocks.
func (a *Admission) AcquireCopy(ctx context.Context) (func(), error) {
	if a.copy == nil {
		return func() {}, nil
	}
	if err := a.copy.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: acquire copy permit: %v", ErrUnavailable, err)
	}
	return func() { a.copy.Release(1) }, nil
}

// ActiveUploads returns the number of operations currently holding an
// upload or merge permit. Advisory only, never used for correctness.
func (a *Admission) ActiveUploads() int64 {
	return a.active.Load()
}

// AvailablePermits estimates how many global permits are free, for the
// health surface.
func (a *Admission) AvailablePermits() int64 {
	free := a.globalLimit - a.active.Load()
	if free < 0 {
		return 0
	}
	return free
}

func (a *Admission) track() {
	a.active.Add(1)
	activeUploads.Inc()
}

func (a *Admission) untrack() {
	a.active.Add(-1)
	activeUploads.Dec()
}
