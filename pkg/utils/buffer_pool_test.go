// Copyright 2025 Berth Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBuffer_SizeClasses(t *testing.T) {
	tests := []struct {
		size    int
		wantCap int
	}{
		{1, minPoolSize},
		{minPoolSize, minPoolSize},
		{minPoolSize + 1, minPoolSize << 1},
		{256 * 1024, 256 * 1024},
		{maxPoolSize, maxPoolSize},
	}

	for _, tt := range tests {
		buf := GetBuffer(tt.size)
		assert.Len(t, buf, tt.size)
		assert.Equal(t, tt.wantCap, cap(buf), "size %d", tt.size)
		PutBuffer(buf)
	}
}

func TestGetBuffer_OverMaxAllocatesExact(t *testing.T) {
	size := maxPoolSize + 1
	buf := GetBuffer(size)
	assert.Len(t, buf, size)
	// Not pooled; PutBuffer must tolerate it.
	PutBuffer(buf)
}

func TestJitter_WithinBounds(t *testing.T) {
	base := time.Minute
	for i := 0; i < 100; i++ {
		d := Jitter(base, 0.1)
		assert.GreaterOrEqual(t, d, 54*time.Second)
		assert.LessOrEqual(t, d, 66*time.Second)
	}
}

func TestJitter_ZeroFraction(t *testing.T) {
	assert.Equal(t, time.Minute, Jitter(time.Minute, 0))
}

func TestJitteredTicker_TicksAndStops(t *testing.T) {
	ch, stop := JitteredTicker(10*time.Millisecond, 0.1)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a tick")
	}

	stop()
	for range ch {
		// Drain until the ticker goroutine closes the channel.
	}
}

func TestParseMinFreeSpace(t *testing.T) {
	percent, err := ParseMinFreeSpace("5")
	require.NoError(t, err)
	assert.Equal(t, AsPercent, percent.Type)

	low, _ := percent.IsLow(0, 2.0)
	assert.True(t, low)
	low, _ = percent.IsLow(0, 50.0)
	assert.False(t, low)

	abs, err := ParseMinFreeSpace("10GB")
	require.NoError(t, err)
	assert.Equal(t, AsBytes, abs.Type)

	low, _ = abs.IsLow(1<<20, 90)
	assert.True(t, low)

	_, err = ParseMinFreeSpace("200")
	assert.Error(t, err)

	_, err = ParseMinFreeSpace("garbage")
	assert.Error(t, err)
}
