// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"math/bits"
	"sync"
)

// Copy buffer size classes (powers of 2), 32KB through 4MB. Chunk and
// merge copies pick a class sized to the transfer instead of allocating
// per request.
const (
	minPoolSize   = 1 << 15
	maxPoolSize   = 1 << 22
	numPoolLevels = 8
)

var bufferPools [numPoolLevels]sync.Pool

func init() {
	for i := range bufferPools {
		size := minPoolSize << i
		bufferPools[i] = sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
}

// poolIndex returns the pool level for a given size, or -1 when the
// size exceeds the largest class.
func poolIndex(size int) int {
	if size <= minPoolSize {
		return 0
	}
	if size > maxPoolSize {
		return -1
	}
	idx := bits.Len(uint(size-1)) - 15
	if idx < 0 {
		return 0
	}
	if idx >= numPoolLevels {
		return -1
	}
	return idx
}

// GetBuffer returns a byte slice of at least the requested size, pulled
// from the pool when a class fits. Return it with PutBuffer when done.
func GetBuffer(size int) []byte {
	idx := poolIndex(size)
	if idx < 0 {
		return make([]byte, size)
	}
	bufPtr := bufferPools[idx].Get().(*[]byte)
	return (*bufPtr)[:size]
}

// PutBuffer returns a buffer to its pool. Buffers that did not come
// from GetBuffer, or are larger than the biggest class, are left to
// the GC.
func PutBuffer(buf []byte) {
	c := cap(buf)
	idx := poolIndex(c)
	if idx < 0 {
		return
	}
	if c != minPoolSize<<idx {
		return
	}
	buf = buf[:c]
	bufferPools[idx].Put(&buf)
}
