// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import "sync/atomic"

// Stats carries the process-wide request counters read by the health
// and stats endpoints. All fields are independent atomics; there is no
// locking and no correctness depends on them.
type Stats struct {
	requests      atomic.Int64
	errors        atomic.Int64
	bytesUploaded atomic.Int64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) RecordRequest() {
	s.requests.Add(1)
}

func (s *Stats) RecordError() {
	s.errors.Add(1)
}

func (s *Stats) AddUploadedBytes(n int64) {
	s.bytesUploaded.Add(n)
	bytesReceived.Add(float64(n))
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Requests      int64 `json:"total_requests"`
	Errors        int64 `json:"total_errors"`
	BytesUploaded int64 `json:"total_uploaded"`
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Requests:      s.requests.Load(),
		Errors:        s.errors.Load(),
		BytesUploaded: s.bytesUploaded.Load(),
	}
}
